// Package pricing implements the undercut price calculator: a small family
// of strategies that derive a competitive listing price from the cheapest
// relevant competing offer, plus the floor checks that can veto the result.
//
// All prices are gil (int64). Every formula is defined in integer
// arithmetic with floor division — this is deliberate and matches the
// marketplace, which has no fractional prices. Functions here are pure;
// no state is retained between calls.
package pricing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Strategy is the tagged variant selecting how the undercut is computed.
// The concrete types are FixedAmount, Percentage, GentlemansMatch,
// CleanNumbers and Humanized.
type Strategy interface {
	isStrategy()
	String() string
}

// FixedAmount subtracts a fixed gil amount from the reference offer.
type FixedAmount struct {
	Amount int64
}

// Percentage subtracts a percentage of the reference offer's price.
type Percentage struct {
	Amount int64
}

// GentlemansMatch copies the reference offer's price exactly — no undercut.
type GentlemansMatch struct{}

// CleanNumbers undercuts by one gil, then rounds down to a "clean" number.
// The rounding interval scales with the price tier.
type CleanNumbers struct{}

// Humanized randomly picks one of the other strategies per evaluation:
// a random fixed pinch of 1..MaxPinch gil, a gentleman's match, or clean
// numbers. Makes repeated repricing runs look less mechanical.
type Humanized struct {
	MaxPinch int64 // upper bound for the random pinch, 1..10
}

func (FixedAmount) isStrategy()     {}
func (Percentage) isStrategy()      {}
func (GentlemansMatch) isStrategy() {}
func (CleanNumbers) isStrategy()    {}
func (Humanized) isStrategy()       {}

func (s FixedAmount) String() string   { return fmt.Sprintf("fixed:%d", s.Amount) }
func (s Percentage) String() string    { return fmt.Sprintf("percent:%d", s.Amount) }
func (GentlemansMatch) String() string { return "gentle" }
func (CleanNumbers) String() string    { return "clean" }
func (s Humanized) String() string     { return fmt.Sprintf("humanized:%d", s.MaxPinch) }

var (
	ErrInvalidStrategy = errors.New("pricing: invalid strategy spec")
	ErrInvalidFloor    = errors.New("pricing: invalid floor policy")
)

// strategyRegex matches: {name} or {name}:{amount}
// Examples: "gentle", "fixed:1", "percent:10", "humanized:3"
var strategyRegex = regexp.MustCompile(`^([a-z]+)(?::([0-9]+))?$`)

// ParseStrategy parses a strategy spec string as used in config files and
// API requests.
//
//	fixed:N      — undercut by N gil (N >= 1)
//	percent:N    — undercut by N percent (1 <= N <= 99)
//	gentle       — match the reference price exactly
//	clean        — undercut then round down to a clean number
//	humanized:N  — random strategy per evaluation, max pinch N (1..10, default 3)
func ParseStrategy(spec string) (Strategy, error) {
	matches := strategyRegex.FindStringSubmatch(spec)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, spec)
	}

	name := matches[1]
	var amount int64 = -1
	if matches[2] != "" {
		// Regex guarantees digits; range still needs checking per strategy.
		n, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, spec)
		}
		amount = n
	}

	switch name {
	case "fixed":
		if amount < 1 {
			return nil, fmt.Errorf("%w: fixed amount must be >= 1 in %q", ErrInvalidStrategy, spec)
		}
		return FixedAmount{Amount: amount}, nil
	case "percent":
		if amount < 1 || amount > 99 {
			return nil, fmt.Errorf("%w: percent must be 1..99 in %q", ErrInvalidStrategy, spec)
		}
		return Percentage{Amount: amount}, nil
	case "gentle":
		if amount >= 0 {
			return nil, fmt.Errorf("%w: gentle takes no amount in %q", ErrInvalidStrategy, spec)
		}
		return GentlemansMatch{}, nil
	case "clean":
		if amount >= 0 {
			return nil, fmt.Errorf("%w: clean takes no amount in %q", ErrInvalidStrategy, spec)
		}
		return CleanNumbers{}, nil
	case "humanized":
		if amount < 0 {
			amount = 3
		}
		if amount < 1 || amount > 10 {
			return nil, fmt.Errorf("%w: humanized max pinch must be 1..10 in %q", ErrInvalidStrategy, spec)
		}
		return Humanized{MaxPinch: amount}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, spec)
	}
}

// FloorPolicy selects the price floor applied after the undercut.
type FloorPolicy string

const (
	// NoFloor disables the floor check.
	NoFloor FloorPolicy = "none"

	// VendorFloor rejects prices below the item's vendor sell price.
	VendorFloor FloorPolicy = "vendor"

	// DomanEnclaveFloor rejects prices below twice the vendor sell price
	// (the Doman Enclave buyback rate).
	DomanEnclaveFloor FloorPolicy = "doman"
)

// ParseFloorPolicy parses a floor policy name: "none", "vendor" or "doman".
func ParseFloorPolicy(spec string) (FloorPolicy, error) {
	switch FloorPolicy(spec) {
	case NoFloor, VendorFloor, DomanEnclaveFloor:
		return FloorPolicy(spec), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFloor, spec)
	}
}
