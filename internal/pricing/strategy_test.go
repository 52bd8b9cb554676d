package pricing

import (
	"errors"
	"testing"
)

func TestParseStrategy_Valid(t *testing.T) {
	tests := []struct {
		spec string
		want Strategy
	}{
		{"fixed:1", FixedAmount{Amount: 1}},
		{"fixed:500", FixedAmount{Amount: 500}},
		{"percent:10", Percentage{Amount: 10}},
		{"percent:99", Percentage{Amount: 99}},
		{"gentle", GentlemansMatch{}},
		{"clean", CleanNumbers{}},
		{"humanized:5", Humanized{MaxPinch: 5}},
		{"humanized", Humanized{MaxPinch: 3}}, // default pinch
	}
	for _, tc := range tests {
		got, err := ParseStrategy(tc.spec)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.spec, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %#v, got %#v", tc.spec, tc.want, got)
		}
	}
}

func TestParseStrategy_Invalid(t *testing.T) {
	tests := []string{
		"",
		"FIXED:1",       // case-sensitive
		"fixed",         // amount required
		"fixed:0",
		"percent",       // amount required
		"percent:0",
		"percent:100",   // would zero every price
		"gentle:2",      // no amount allowed
		"clean:5",       // no amount allowed
		"humanized:0",
		"humanized:11",
		"fixed:-1",
		"random",
	}
	for _, spec := range tests {
		if _, err := ParseStrategy(spec); err == nil {
			t.Errorf("expected error for strategy spec %q", spec)
		} else if !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("%q: expected ErrInvalidStrategy, got %v", spec, err)
		}
	}
}

func TestParseStrategy_RoundTripsThroughString(t *testing.T) {
	for _, spec := range []string{"fixed:3", "percent:15", "gentle", "clean", "humanized:4"} {
		s, err := ParseStrategy(spec)
		if err != nil {
			t.Fatalf("%q: %v", spec, err)
		}
		if s.String() != spec {
			t.Errorf("expected String()=%q, got %q", spec, s.String())
		}
	}
}

func TestParseFloorPolicy(t *testing.T) {
	for _, spec := range []string{"none", "vendor", "doman"} {
		p, err := ParseFloorPolicy(spec)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", spec, err)
		}
		if string(p) != spec {
			t.Errorf("%q: got %q", spec, p)
		}
	}

	for _, spec := range []string{"", "Vendor", "doman-enclave", "2x"} {
		if _, err := ParseFloorPolicy(spec); !errors.Is(err, ErrInvalidFloor) {
			t.Errorf("%q: expected ErrInvalidFloor, got %v", spec, err)
		}
	}
}
