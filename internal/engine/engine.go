// Package engine implements the listing-evaluation state machine. One
// engine tracks one query cycle against the market board: it is armed when
// a price query goes out, consumes the offer pages the market sends back,
// and settles on the first page that yields a priced reference offer.
//
// Pages that produce no usable offer (empty after filtering, or a
// re-delivery of an already-settled page) are transient: the engine stays
// armed because the matching offer may be on a later page. HQ offers in
// particular have been observed thirty-plus positions deep. A page that
// does yield a priced offer settles the query even when the price then
// fails a floor check — a real competing price is conclusive, an absent
// one is not.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinchworks/repricer/internal/filter"
	"github.com/pinchworks/repricer/internal/model"
	"github.com/pinchworks/repricer/internal/pricing"
)

// SellerRegistry answers whether a competing offer belongs to one of the
// seller's own retainers. Used to avoid undercutting yourself.
type SellerRegistry interface {
	IsOwnListing(ctx context.Context, sellerID int64) (bool, error)
}

// ItemCatalog resolves item metadata. Lookups are expected to succeed for
// any currently-listed item; a failure is a broken precondition and
// surfaces as a hard error, never a silent default.
type ItemCatalog interface {
	CanBeHighQuality(ctx context.Context, itemID int64) (bool, error)
	VendorPrice(ctx context.Context, itemID int64) (int64, error)
}

// Notifier receives informational events during an evaluation. They have
// no effect on control flow. May be nil.
type Notifier interface {
	OutlierSkipped(itemID, skippedPrice, acceptedPrice int64)
	DuplicateBatch(batchID int64)
}

// Engine orchestrates quality filtering, outlier detection, undercut
// calculation and floor validation per incoming batch. All transitions
// happen synchronously inside Arm/HandleBatch; the mutex serializes
// access for hosts that dispatch from multiple goroutines.
type Engine struct {
	registry SellerRegistry
	catalog  ItemCatalog
	notifier Notifier
	rng      pricing.Rand

	mu sync.Mutex

	// Request state for the in-flight query cycle.
	armed  bool
	wantHQ bool // filter wants an HQ reference price
	itemHQ bool // the item being repriced is itself HQ

	// Dedup id of the last settled batch. Updated only on settlement, so a
	// later page of a still-open query is never mistaken for a duplicate
	// of an earlier no-offers page.
	lastSettled    int64
	haveSettlement bool
}

// New creates an engine. notifier may be nil; rng may be nil to use the
// production randomness source.
func New(registry SellerRegistry, catalog ItemCatalog, notifier Notifier, rng pricing.Rand) *Engine {
	if rng == nil {
		rng = pricing.DefaultRand
	}
	return &Engine{
		registry: registry,
		catalog:  catalog,
		notifier: notifier,
		rng:      rng,
	}
}

// Arm signals that a price query was just issued and the next batches are
// ours. Re-arming while already armed simply re-records the cycle flags.
func (e *Engine) Arm(wantHQ, itemHQ bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed = true
	e.wantHQ = wantHQ
	e.itemHQ = itemHQ
}

// Reset abandons the current query cycle without settling it.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed = false
}

// Armed reports whether the engine is expecting batches.
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// HandleBatch evaluates one page of competing offers under cfg.
//
// handled is false when the engine is idle (the batch is not from our
// query) or when a collaborator lookup failed; in the latter case err is
// non-nil. Otherwise the result is either a settlement (priced, below
// floor, below minimum — the engine disarms) or the transient NoOffers
// (the engine stays armed for the next page).
func (e *Engine) HandleBatch(ctx context.Context, cfg model.EvaluationConfig, batch model.OfferBatch) (res model.EvaluationResult, handled bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.armed {
		return model.EvaluationResult{}, false, nil
	}

	// Quality filter: find the first offer matching the HQ filter. The
	// catalog is only consulted when an HQ price is actually wanted.
	canBeHQ := false
	if e.wantHQ {
		canBeHQ, err = e.catalog.CanBeHighQuality(ctx, batch.ItemID)
		if err != nil {
			return model.EvaluationResult{}, false, fmt.Errorf("engine: resolve item %d: %w", batch.ItemID, err)
		}
	}
	i := filter.QualityStart(batch.Offers, e.wantHQ, canBeHQ)

	// Outlier detection applies only to normal-quality pricing: bait
	// listings are a normal-quality market phenomenon. The skip keys off
	// the request flags, not off whether an HQ offer was actually found
	// in this page.
	if cfg.OutlierDetection && !(e.wantHQ && e.itemHQ) {
		det := filter.NewDetector(cfg.OutlierThresholdPercent, cfg.OutlierSearchWindow)
		var cliffs []filter.Cliff
		i, cliffs = det.Scan(batch.Offers, i)
		if e.notifier != nil {
			for _, c := range cliffs {
				e.notifier.OutlierSkipped(batch.ItemID, c.SkippedPrice, c.AcceptedPrice)
			}
		}
	}

	// Transient outcomes: nothing usable on this page, or the market
	// re-delivered a page we already settled. Stay armed; the query may
	// still resolve on a later page. lastSettled is deliberately not
	// touched here.
	if i >= len(batch.Offers) {
		return model.NoOffers(), true, nil
	}
	if e.haveSettlement && batch.BatchID == e.lastSettled {
		if e.notifier != nil {
			e.notifier.DuplicateBatch(batch.BatchID)
		}
		return model.NoOffers(), true, nil
	}

	ref := batch.Offers[i]

	// Own-listing check: keep our own price rather than undercutting it.
	own := false
	if !cfg.UndercutSelf {
		own, err = e.registry.IsOwnListing(ctx, ref.SellerID)
		if err != nil {
			return model.EvaluationResult{}, false, fmt.Errorf("engine: resolve seller %d: %w", ref.SellerID, err)
		}
	}

	price := ref.UnitPrice
	if !own {
		price = pricing.Undercut(ref.UnitPrice, cfg.Strategy, e.rng)
	}

	var vendorPrice int64
	if cfg.FloorPolicy != pricing.NoFloor {
		vendorPrice, err = e.catalog.VendorPrice(ctx, batch.ItemID)
		if err != nil {
			return model.EvaluationResult{}, false, fmt.Errorf("engine: vendor price for item %d: %w", batch.ItemID, err)
		}
	}

	switch pricing.ValidateFloor(price, cfg.FloorPolicy, vendorPrice, cfg.MinimumPrice) {
	case pricing.VerdictBelowFloor:
		res = model.BelowFloor()
	case pricing.VerdictBelowMinimum:
		res = model.BelowMinimum()
	default:
		res = model.Priced(price)
	}

	// Settlement: terminal for this query even when the price failed a
	// floor check — it reflects a real priced offer, not an absent one.
	e.lastSettled = batch.BatchID
	e.haveSettlement = true
	e.armed = false

	return res, true, nil
}
