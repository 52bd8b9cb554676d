package filter

import "github.com/pinchworks/repricer/internal/model"

// Cliff is one detected price cliff: everything at or below SkippedPrice
// is treated as bait, and AcceptedPrice becomes the next candidate tier.
type Cliff struct {
	SkippedPrice  int64
	AcceptedPrice int64
}

// Detector finds bait listings by scanning for price cliffs between
// adjacent offers within a bounded lookahead window. A cliff exists when
// the gap between two neighbours, as a percentage of the higher price,
// exceeds ThresholdPercent.
//
// A single fixed-window pass bounds cost and catches the low-then-normal
// bait pattern without a statistical model. The window end is computed
// once from the starting index and is NOT extended when a cliff advances
// the start — a late cliff near the edge of the original window can be
// missed after an earlier skip. Intentional: the scan answers "is the
// front of this page bait", not "where is every cliff".
type Detector struct {
	// ThresholdPercent is the adjacent-gap percentage above which a cliff
	// is declared. Example: 50 flags a 40-gil offer when the next is 100
	// gil (60% gap).
	ThresholdPercent float64

	// Window is how many offers past the starting one to examine, 1..9.
	Window int
}

// NewDetector builds a detector, clamping the window into its 1..9 range.
func NewDetector(thresholdPercent float64, window int) Detector {
	if window < 1 {
		window = 1
	}
	if window > 9 {
		window = 9
	}
	return Detector{ThresholdPercent: thresholdPercent, Window: window}
}

// Scan walks offers[start:] within the window and returns the first index
// past all detected cliffs, plus the cliffs themselves for notification.
// Every cliff's accepted side is a real offer, so a scan of a non-empty
// range always lands on one; a start at or past the page end is returned
// unchanged.
func (d Detector) Scan(offers []model.Offer, start int) (int, []Cliff) {
	searchEnd := min(len(offers), start+1+d.Window)

	i := start
	var cliffs []Cliff
	for j := start; j+1 < searchEnd; j++ {
		cur := offers[j].UnitPrice
		next := offers[j+1].UnitPrice

		var gapPercent float64
		if next > 0 {
			gapPercent = float64(next-cur) / float64(next) * 100
		}

		if gapPercent > d.ThresholdPercent {
			cliffs = append(cliffs, Cliff{SkippedPrice: cur, AcceptedPrice: next})
			i = j + 1 // skip everything at and below the cliff
		}
	}

	return i, cliffs
}
