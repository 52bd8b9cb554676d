// Package service provides the HTTP handlers driving the repricing
// engine: arming a query cycle, feeding offer pages, and reading the
// catalog, retainer registry and evaluation ledger.
//
// Gil prices are int64 throughout — the undercut formulas are integer
// arithmetic. Derived percentages use shopspring/decimal, never float64.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pinchworks/repricer/internal/engine"
	"github.com/pinchworks/repricer/internal/metrics"
	"github.com/pinchworks/repricer/internal/model"
	"github.com/pinchworks/repricer/internal/pricing"
	"github.com/pinchworks/repricer/internal/store"
)

// Service handles repricing operations. Uses a mutex for serialized batch
// evaluation (single-instance): the engine tracks one query cycle at a
// time, so interleaved offer pages would corrupt the cycle state.
type Service struct {
	store    store.Store
	engine   *engine.Engine
	defaults model.EvaluationConfig
	notifier *broadcastNotifier
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts

	mu    sync.Mutex
	cycle *cycleContext // nil while idle
}

// cycleContext is what the service remembers about the in-flight query
// cycle, beyond the flags the engine itself tracks.
type cycleContext struct {
	item         model.Item
	retainer     model.Retainer
	wantHQ       bool
	currentPrice int64 // listed price before repricing; 0 when unknown
}

// NewService creates a new repricing service. defaults is the pricing
// configuration applied to offer batches that carry no override.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, defaults model.EvaluationConfig, hub *WSHub) *Service {
	s := &Service{
		store:    st,
		defaults: defaults,
		notifier: &broadcastNotifier{hub: hub},
		wsHub:    hub,
	}
	s.engine = engine.New(&storeRegistry{st: st}, &storeCatalog{st: st}, s.notifier, nil)
	return s
}

// --- Engine collaborators backed by the store ---

// storeRegistry resolves seller identity against the retainer registry.
type storeRegistry struct {
	st store.Store
}

func (r *storeRegistry) IsOwnListing(ctx context.Context, sellerID int64) (bool, error) {
	retainers, err := r.st.ListRetainers(ctx)
	if err != nil {
		return false, fmt.Errorf("list retainers: %w", err)
	}
	for _, ret := range retainers {
		if ret.ID == sellerID {
			return true, nil
		}
	}
	return false, nil
}

// storeCatalog resolves item metadata from the catalog.
type storeCatalog struct {
	st store.Store
}

func (c *storeCatalog) CanBeHighQuality(ctx context.Context, itemID int64) (bool, error) {
	item, err := c.st.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.CanBeHQ, nil
}

func (c *storeCatalog) VendorPrice(ctx context.Context, itemID int64) (int64, error) {
	item, err := c.st.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.VendorPrice, nil
}

// broadcastNotifier forwards engine events to metrics and the WebSocket
// hub, and counts outlier skips for the evaluation record. It keeps its
// own lock because the engine invokes it while the service mutex is held.
type broadcastNotifier struct {
	hub *WSHub

	mu    sync.Mutex
	skips int
}

func (n *broadcastNotifier) OutlierSkipped(itemID, skippedPrice, acceptedPrice int64) {
	metrics.OutliersSkipped.Inc()

	n.mu.Lock()
	n.skips++
	n.mu.Unlock()

	slog.Info("outlier skipped",
		"item", itemID,
		"skipped_price", skippedPrice,
		"accepted_price", acceptedPrice,
	)

	if n.hub != nil {
		n.hub.Broadcast(WSMessage{
			Type:          "outlier_skipped",
			ItemID:        itemID,
			SkippedPrice:  skippedPrice,
			AcceptedPrice: acceptedPrice,
			Text:          fmt.Sprintf("outlier detected: skipping %d gil, using %d gil instead", skippedPrice, acceptedPrice),
		})
	}
}

func (n *broadcastNotifier) DuplicateBatch(batchID int64) {
	metrics.BatchesDuplicate.Inc()
	slog.Debug("duplicate batch dismissed", "batch", batchID)
}

// take returns the outlier skip count accumulated since the last call.
func (n *broadcastNotifier) take() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	skips := n.skips
	n.skips = 0
	return skips
}

// --- Request/Response types ---

// ArmRequest is the JSON body for POST /api/v1/arm: a price query was
// issued for an item and the next offer pages belong to it.
type ArmRequest struct {
	RetainerID   int64 `json:"retainer_id"`
	ItemID       int64 `json:"item_id"`
	WantHQ       bool  `json:"want_hq"`  // filter wants an HQ reference price
	ItemHQ       bool  `json:"item_hq"`  // the listing being repriced is itself HQ
	CurrentPrice int64 `json:"current_price,omitempty"` // listed price before repricing
}

// ArmResponse is returned from POST /api/v1/arm.
type ArmResponse struct {
	Armed        bool   `json:"armed"`
	ItemName     string `json:"item_name"`
	RetainerName string `json:"retainer_name"`
}

// OffersRequest is the JSON body for POST /api/v1/offers: one page of
// competing offers, optionally with per-request pricing overrides.
type OffersRequest struct {
	ItemID      int64         `json:"item_id"`
	BatchID     int64         `json:"batch_id"`
	Offers      []model.Offer `json:"offers"`
	Strategy    string        `json:"strategy,omitempty"`     // e.g. "fixed:1", "percent:5", "humanized:3"
	FloorPolicy string        `json:"floor_policy,omitempty"` // "none", "vendor", "doman"
}

// OffersResponse is returned from POST /api/v1/offers.
type OffersResponse struct {
	Handled      bool          `json:"handled"`
	Outcome      model.Outcome `json:"outcome,omitempty"`
	Price        int64         `json:"price,omitempty"`
	OutlierSkips int           `json:"outlier_skips,omitempty"`
	Settled      bool          `json:"settled"`
}

// --- HTTP Handlers ---

// Arm handles POST /api/v1/arm.
func (s *Service) Arm(w http.ResponseWriter, r *http.Request) {
	var req ArmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	retainer, err := s.store.GetRetainer(ctx, req.RetainerID)
	if err != nil {
		writeError(w, "retainer not found", http.StatusNotFound)
		return
	}
	if !retainer.Enabled {
		writeError(w, "retainer is disabled for repricing", http.StatusConflict)
		return
	}

	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	s.cycle = &cycleContext{
		item:         *item,
		retainer:     *retainer,
		wantHQ:       req.WantHQ,
		currentPrice: req.CurrentPrice,
	}
	s.notifier.take() // reset skip counter for the new cycle
	s.engine.Arm(req.WantHQ, req.ItemHQ)
	s.mu.Unlock()

	slog.Info("cycle armed",
		"item", item.ID,
		"item_name", item.Name,
		"retainer", retainer.Name,
		"want_hq", req.WantHQ,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ArmResponse{
		Armed:        true,
		ItemName:     item.Name,
		RetainerName: retainer.Name,
	})
}

// Offers handles POST /api/v1/offers.
// Evaluates one page of competing offers against the armed query cycle;
// on settlement it records the evaluation and broadcasts the result.
func (s *Service) Offers(w http.ResponseWriter, r *http.Request) {
	var req OffersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Offers) > model.PageSize {
		writeError(w, fmt.Sprintf("a batch carries at most %d offers", model.PageSize), http.StatusBadRequest)
		return
	}

	cfg := s.defaults
	if req.Strategy != "" {
		strat, err := pricing.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg.Strategy = strat
	}
	if req.FloorPolicy != "" {
		policy, err := pricing.ParseFloorPolicy(req.FloorPolicy)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg.FloorPolicy = policy
	}

	ctx := r.Context()
	start := time.Now()

	// Serialize evaluation: one query cycle at a time.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cycle != nil {
		cfg.WantHighQuality = s.cycle.wantHQ
	}

	batch := model.OfferBatch{
		ItemID:  req.ItemID,
		BatchID: req.BatchID,
		Offers:  req.Offers,
	}

	res, handled, err := s.engine.HandleBatch(ctx, cfg, batch)
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, "evaluation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if !handled {
		metrics.BatchesIgnored.Inc()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OffersResponse{Handled: false})
		return
	}

	skips := s.notifier.take()

	if !res.Settles() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OffersResponse{
			Handled:      true,
			Outcome:      res.Outcome,
			OutlierSkips: skips,
		})
		return
	}

	// Settlement. Apply the max-cut safety cap when the caller supplied
	// the price currently listed: a priced result that would cut too deep
	// is downgraded rather than emitted.
	cyc := s.cycle
	s.cycle = nil

	var currentPrice int64
	if cyc != nil {
		currentPrice = cyc.currentPrice
	}
	if res.IsPriced() && pricing.ExceedsMaxCut(currentPrice, res.Price, cfg.MaxCutPercent) {
		res = model.EvaluationResult{Outcome: model.OutcomeAboveMaxCut}
	}

	metrics.EvaluationsTotal.WithLabelValues(string(res.Outcome)).Inc()

	rec := &model.EvaluationRecord{
		ID:             uuid.New().String(),
		ItemID:         batch.ItemID,
		BatchID:        batch.BatchID,
		Outcome:        res.Outcome,
		ReferencePrice: currentPrice,
		NewPrice:       res.Price,
		OutlierSkips:   skips,
		Timestamp:      time.Now().UTC(),
	}
	if cyc != nil {
		rec.ItemName = cyc.item.Name
		rec.RetainerID = cyc.retainer.ID
		rec.RetainerName = cyc.retainer.Name
	}
	if res.IsPriced() && currentPrice > 0 {
		rec.CutPercent = model.CutPercent(currentPrice, res.Price)
	}

	if err := s.store.InsertEvaluation(ctx, rec); err != nil {
		writeError(w, "failed to record evaluation", http.StatusInternalServerError)
		return
	}

	slog.Info("evaluation settled",
		"id", rec.ID,
		"item", rec.ItemID,
		"item_name", rec.ItemName,
		"retainer", rec.RetainerName,
		"batch", rec.BatchID,
		"outcome", rec.Outcome,
		"new_price", rec.NewPrice,
		"outlier_skips", skips,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "evaluation_settled",
			ItemID:       rec.ItemID,
			ItemName:     rec.ItemName,
			RetainerName: rec.RetainerName,
			Outcome:      string(rec.Outcome),
			NewPrice:     rec.NewPrice,
			Text:         settlementText(rec),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OffersResponse{
		Handled:      true,
		Outcome:      res.Outcome,
		Price:        res.Price,
		OutlierSkips: skips,
		Settled:      true,
	})
}

// settlementText renders the human-readable chat line for a settlement.
func settlementText(rec *model.EvaluationRecord) string {
	name := rec.ItemName
	if name == "" {
		name = fmt.Sprintf("item %d", rec.ItemID)
	}
	switch rec.Outcome {
	case model.OutcomePriced:
		return fmt.Sprintf("%s: new price %d gil", name, rec.NewPrice)
	case model.OutcomeBelowFloor:
		return fmt.Sprintf("%s: undercut would fall below the price floor, listing unchanged", name)
	case model.OutcomeBelowMinimum:
		return fmt.Sprintf("%s: undercut would fall below the minimum listing price, listing unchanged", name)
	case model.OutcomeAboveMaxCut:
		return fmt.Sprintf("%s: undercut exceeds the maximum allowed cut, listing unchanged", name)
	default:
		return fmt.Sprintf("%s: no usable offers", name)
	}
}

// Reset handles POST /api/v1/reset: the client abandoned the query cycle.
func (s *Service) Reset(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.engine.Reset()
	s.cycle = nil
	s.notifier.take()
	s.mu.Unlock()

	slog.Info("cycle reset")
	w.WriteHeader(http.StatusNoContent)
}

// UpsertItem handles PUT /api/v1/items: seed or update a catalog row.
func (s *Service) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var item model.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if item.ID <= 0 || item.Name == "" {
		writeError(w, "item id and name are required", http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertItem(r.Context(), &item); err != nil {
		writeError(w, "failed to store item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// ListItems handles GET /api/v1/items.
func (s *Service) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context())
	if err != nil {
		writeError(w, "failed to list items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Item{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// UpsertRetainer handles PUT /api/v1/retainers.
func (s *Service) UpsertRetainer(w http.ResponseWriter, r *http.Request) {
	var ret model.Retainer
	if err := json.NewDecoder(r.Body).Decode(&ret); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ret.ID <= 0 || ret.Name == "" {
		writeError(w, "retainer id and name are required", http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertRetainer(r.Context(), &ret); err != nil {
		writeError(w, "failed to store retainer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ret)
}

// ListRetainers handles GET /api/v1/retainers.
func (s *Service) ListRetainers(w http.ResponseWriter, r *http.Request) {
	retainers, err := s.store.ListRetainers(r.Context())
	if err != nil {
		writeError(w, "failed to list retainers", http.StatusInternalServerError)
		return
	}
	if retainers == nil {
		retainers = []model.Retainer{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(retainers)
}

// ListEvaluations handles GET /api/v1/evaluations?item=<id> and
// GET /api/v1/evaluations?retainer=<id>.
func (s *Service) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records []model.EvaluationRecord
		err     error
	)
	switch {
	case r.URL.Query().Get("item") != "":
		var itemID int64
		itemID, err = strconv.ParseInt(r.URL.Query().Get("item"), 10, 64)
		if err != nil {
			writeError(w, "invalid item id", http.StatusBadRequest)
			return
		}
		records, err = s.store.ListEvaluationsByItem(ctx, itemID)
	case r.URL.Query().Get("retainer") != "":
		var retainerID int64
		retainerID, err = strconv.ParseInt(r.URL.Query().Get("retainer"), 10, 64)
		if err != nil {
			writeError(w, "invalid retainer id", http.StatusBadRequest)
			return
		}
		records, err = s.store.ListEvaluationsByRetainer(ctx, retainerID)
	default:
		writeError(w, "item or retainer query parameter is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, "failed to list evaluations", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.EvaluationRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetSummary handles GET /api/v1/summary?since=<RFC3339>.
// Defaults to the last 24 hours when since is absent.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	summary, err := s.store.Summary(r.Context(), since)
	if err != nil {
		writeError(w, "failed to build summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// Routes mounts all service handlers on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/arm", s.Arm)
	r.Post("/offers", s.Offers)
	r.Post("/reset", s.Reset)
	r.Put("/items", s.UpsertItem)
	r.Get("/items", s.ListItems)
	r.Put("/retainers", s.UpsertRetainer)
	r.Get("/retainers", s.ListRetainers)
	r.Get("/evaluations", s.ListEvaluations)
	r.Get("/summary", s.GetSummary)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
