// Package model defines the core domain types shared across the repricer.
// Prices are gil and always int64 — the undercut formulas are defined in
// integer arithmetic, so there is nothing fractional to represent.
// Percentages derived for reporting use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pinchworks/repricer/internal/pricing"
)

// Offer is one competing listing on the market board. Immutable once
// received from the data source.
type Offer struct {
	SellerID    int64 `json:"seller_id"`
	UnitPrice   int64 `json:"unit_price"`
	HighQuality bool  `json:"high_quality"`
}

// OfferBatch is one page of competing offers for a single item, at most
// PageSize entries. Offers are sorted by unit price ascending — guaranteed
// by the data source and not re-validated here.
type OfferBatch struct {
	ItemID  int64   `json:"item_id"`
	BatchID int64   `json:"batch_id"`
	Offers  []Offer `json:"offers"`
}

// PageSize is the number of offers the market delivers per batch.
const PageSize = 10

// Outcome classifies an evaluation result. Exactly one outcome applies to
// any evaluation; sentinel outcomes are never paired with a positive price.
type Outcome string

const (
	// OutcomePriced means a valid listing price was computed.
	OutcomePriced Outcome = "priced"

	// OutcomeNoOffers means the batch was empty after quality/outlier
	// filtering, or was a duplicate of an already-settled batch. Transient:
	// a later page of the same query may still settle it.
	OutcomeNoOffers Outcome = "no_offers"

	// OutcomeBelowFloor means the undercut price fell under the configured
	// vendor or Doman Enclave floor. Terminal for the query.
	OutcomeBelowFloor Outcome = "below_floor"

	// OutcomeBelowMinimum means the undercut price fell under the configured
	// minimum listing price. Terminal for the query.
	OutcomeBelowMinimum Outcome = "below_minimum"

	// OutcomeAboveMaxCut means the undercut from the item's current listed
	// price exceeded the safety cap. Applied by the service layer after
	// settlement, only when the caller supplied the current price.
	OutcomeAboveMaxCut Outcome = "above_max_cut"
)

// EvaluationResult is the value produced by one batch evaluation: either a
// positive price (Outcome == OutcomePriced) or a sentinel outcome with a
// zero price.
type EvaluationResult struct {
	Outcome Outcome `json:"outcome"`
	Price   int64   `json:"price,omitempty"`
}

// Priced builds a successful result. price must be positive.
func Priced(price int64) EvaluationResult {
	return EvaluationResult{Outcome: OutcomePriced, Price: price}
}

// NoOffers builds the transient empty/duplicate sentinel.
func NoOffers() EvaluationResult {
	return EvaluationResult{Outcome: OutcomeNoOffers}
}

// BelowFloor builds the price-floor failure sentinel.
func BelowFloor() EvaluationResult {
	return EvaluationResult{Outcome: OutcomeBelowFloor}
}

// BelowMinimum builds the minimum-listing-price failure sentinel.
func BelowMinimum() EvaluationResult {
	return EvaluationResult{Outcome: OutcomeBelowMinimum}
}

// IsPriced reports whether the result carries a usable price.
func (r EvaluationResult) IsPriced() bool {
	return r.Outcome == OutcomePriced
}

// Settles reports whether this result ends the query. A priced offer is
// conclusive even when it fails a floor check; only a no-offers outcome
// leaves the query open for further pages.
func (r EvaluationResult) Settles() bool {
	return r.Outcome != OutcomeNoOffers
}

// EvaluationConfig is the full pricing configuration for one evaluation.
// Supplied fresh per call; the engine never retains or mutates it.
type EvaluationConfig struct {
	WantHighQuality         bool                `json:"want_high_quality"`
	Strategy                pricing.Strategy    `json:"-"`
	UndercutSelf            bool                `json:"undercut_self"`
	FloorPolicy             pricing.FloorPolicy `json:"floor_policy"`
	MinimumPrice            int64               `json:"minimum_price"`
	OutlierDetection        bool                `json:"outlier_detection"`
	OutlierThresholdPercent float64             `json:"outlier_threshold_percent"`
	OutlierSearchWindow     int                 `json:"outlier_search_window"` // 1..9
	MaxCutPercent           float64             `json:"max_cut_percent"`       // 0 disables
}

// Item is one catalog row, mirroring the game's item sheet. Rows are
// seeded into the store by the companion client.
type Item struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	CanBeHQ     bool   `json:"can_be_hq" db:"can_be_hq"`
	VendorPrice int64  `json:"vendor_price" db:"vendor_price"`
}

// Retainer is one of the seller's own vendors. Offers from an owned
// retainer are never undercut unless the configuration says so.
type Retainer struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Enabled bool   `json:"enabled" db:"enabled"`
}

// EvaluationRecord is an immutable ledger row describing one settled
// evaluation. Once inserted, records are never modified or deleted.
type EvaluationRecord struct {
	ID             string          `json:"id" db:"id"`
	ItemID         int64           `json:"item_id" db:"item_id"`
	ItemName       string          `json:"item_name" db:"item_name"`
	RetainerID     int64           `json:"retainer_id" db:"retainer_id"`
	RetainerName   string          `json:"retainer_name" db:"retainer_name"`
	BatchID        int64           `json:"batch_id" db:"batch_id"`
	Outcome        Outcome         `json:"outcome" db:"outcome"`
	ReferencePrice int64           `json:"reference_price" db:"reference_price"` // price before repricing, 0 if unknown
	NewPrice       int64           `json:"new_price" db:"new_price"`             // 0 for sentinel outcomes
	CutPercent     decimal.Decimal `json:"cut_percent" db:"cut_percent"`         // positive = price cut
	OutlierSkips   int             `json:"outlier_skips" db:"outlier_skips"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// RunSummary aggregates the evaluation ledger over a time range.
type RunSummary struct {
	Total         int             `json:"total"`
	ByOutcome     map[Outcome]int `json:"by_outcome"`
	AvgCutPercent decimal.Decimal `json:"avg_cut_percent"` // over priced outcomes with a known reference
}

// CutPercent returns the percentage change from oldPrice down to newPrice.
// Positive values are cuts, negative values are increases. Returns zero
// when oldPrice is not positive.
func CutPercent(oldPrice, newPrice int64) decimal.Decimal {
	if oldPrice <= 0 {
		return decimal.Zero
	}
	diff := decimal.NewFromInt(oldPrice - newPrice)
	return diff.Div(decimal.NewFromInt(oldPrice)).Mul(decimal.NewFromInt(100)).Round(2)
}
