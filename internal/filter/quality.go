// Package filter narrows one page of competing offers down to the
// reference offer the calculator should undercut: first by quality
// variant, then by skipping suspected bait listings via a bounded
// price-gap scan.
package filter

import "github.com/pinchworks/repricer/internal/model"

// QualityStart returns the index of the first offer the evaluation should
// consider. When a high-quality price is wanted and the item has an HQ
// variant, that is the first HQ offer; otherwise the cheapest offer
// outright. Returns len(offers) when no offer matches.
func QualityStart(offers []model.Offer, wantHQ, canBeHQ bool) int {
	if wantHQ && canBeHQ {
		for i, o := range offers {
			if o.HighQuality {
				return i
			}
		}
		return len(offers)
	}

	if len(offers) > 0 {
		return 0
	}
	return len(offers)
}
