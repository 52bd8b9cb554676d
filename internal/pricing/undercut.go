package pricing

import "math/rand"

// Rand returns a uniform random int64 in [0, n). Injectable so Humanized
// evaluations are deterministic under test.
type Rand func(n int64) int64

// DefaultRand is the production randomness source.
func DefaultRand(n int64) int64 { return rand.Int63n(n) }

// Undercut computes the price to list at, given the cheapest relevant
// competing offer. The result is always at least 1 gil. rng is only
// consulted by the Humanized strategy; pass DefaultRand outside tests.
// A nil strategy matches the reference price (same as GentlemansMatch).
func Undercut(price int64, strat Strategy, rng Rand) int64 {
	switch s := strat.(type) {
	case FixedAmount:
		return max(price-s.Amount, 1)
	case Percentage:
		// Integer floor division, not a rounded percentage.
		return max((100-s.Amount)*price/100, 1)
	case CleanNumbers:
		return cleanNumber(price)
	case Humanized:
		return humanized(price, s, rng)
	default: // GentlemansMatch or nil
		return price
	}
}

// cleanNumber undercuts by one gil and rounds down to a multiple of a
// tier-dependent interval. Prices at or below 50 gil just drop by one —
// rounding there would wipe out most of the price.
func cleanNumber(price int64) int64 {
	if price <= 50 {
		return max(price-1, 1)
	}

	q := price - 1
	var interval int64
	switch {
	case q > 100000:
		interval = 100
	case q > 10000:
		interval = 50
	case q > 1000:
		interval = 25
	case q > 500:
		interval = 10
	default:
		interval = 5
	}

	return max(q/interval*interval, 1)
}

// humanized rolls one of: random fixed pinch, gentleman's match, clean
// numbers. The pinch amount is uniform in 1..MaxPinch.
func humanized(price int64, s Humanized, rng Rand) int64 {
	if rng == nil {
		rng = DefaultRand
	}
	maxPinch := s.MaxPinch
	if maxPinch < 1 {
		maxPinch = 1
	}

	switch rng(3) {
	case 0:
		return Undercut(price, FixedAmount{Amount: 1 + rng(maxPinch)}, rng)
	case 1:
		return Undercut(price, GentlemansMatch{}, rng)
	default:
		return Undercut(price, CleanNumbers{}, rng)
	}
}
