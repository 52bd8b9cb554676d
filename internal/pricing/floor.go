package pricing

import "github.com/shopspring/decimal"

// Verdict is the floor validator's decision for a candidate price.
type Verdict int

const (
	// VerdictOK passes the candidate price through unchanged.
	VerdictOK Verdict = iota

	// VerdictBelowFloor rejects the price under the vendor/Doman floor.
	VerdictBelowFloor

	// VerdictBelowMinimum rejects the price under the minimum listing price.
	VerdictBelowMinimum
)

// ValidateFloor checks a candidate price against the floor policy and the
// minimum listing price. Order is significant: a floor-policy failure
// short-circuits and the minimum-price check is skipped.
//
// vendorPrice is the item's vendor sell value; a zero vendor price
// disables the policy floor even when one is configured. A zero
// minimumPrice disables the minimum check.
func ValidateFloor(price int64, policy FloorPolicy, vendorPrice, minimumPrice int64) Verdict {
	if policy != NoFloor {
		floor := vendorPrice
		if policy == DomanEnclaveFloor {
			floor = vendorPrice * 2
		}
		if floor > 0 && price < floor {
			return VerdictBelowFloor
		}
	}

	if price > 0 && minimumPrice > 0 && price < minimumPrice {
		return VerdictBelowMinimum
	}

	return VerdictOK
}

// ExceedsMaxCut reports whether dropping from oldPrice to newPrice cuts the
// price by more than maxPercent. A non-positive maxPercent, an unknown
// oldPrice, or a price increase never trips the cap. Exact decimal
// comparison — no float rounding at the boundary.
func ExceedsMaxCut(oldPrice, newPrice int64, maxPercent float64) bool {
	if maxPercent <= 0 || oldPrice <= 0 || newPrice >= oldPrice {
		return false
	}
	cut := decimal.NewFromInt(oldPrice - newPrice).
		Div(decimal.NewFromInt(oldPrice)).
		Mul(decimal.NewFromInt(100))
	return cut.GreaterThan(decimal.NewFromFloat(maxPercent))
}
