package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pinchworks/repricer/internal/model"
	"github.com/pinchworks/repricer/internal/pricing"
	"github.com/pinchworks/repricer/internal/service"
	"github.com/pinchworks/repricer/internal/store"
)

// newTestEnv creates a test Service with in-memory store and chi router.
// The catalog holds item 1 (HQ-capable, vendor price 500) and the seller
// owns retainer 7.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()

	ctx := context.Background()
	if err := ms.UpsertItem(ctx, &model.Item{ID: 1, Name: "Grade 2 Tincture", CanBeHQ: true, VendorPrice: 500}); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	if err := ms.UpsertRetainer(ctx, &model.Retainer{ID: 7, Name: "Pinchley", Enabled: true}); err != nil {
		t.Fatalf("failed to seed retainer: %v", err)
	}
	if err := ms.UpsertRetainer(ctx, &model.Retainer{ID: 8, Name: "Idler", Enabled: false}); err != nil {
		t.Fatalf("failed to seed retainer: %v", err)
	}

	defaults := model.EvaluationConfig{
		Strategy:                pricing.FixedAmount{Amount: 1},
		FloorPolicy:             pricing.NoFloor,
		OutlierDetection:        true,
		OutlierThresholdPercent: 50,
		OutlierSearchWindow:     3,
		MaxCutPercent:           50,
	}

	svc := service.NewService(ms, defaults, nil)
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	return ms, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doArm(t *testing.T, router chi.Router, req service.ArmRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, "POST", "/api/v1/arm", req)
}

func doOffers(t *testing.T, router chi.Router, req service.OffersRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, "POST", "/api/v1/offers", req)
}

// offers builds an offer page with distinct third-party seller ids.
func offers(prices ...int64) []model.Offer {
	out := make([]model.Offer, len(prices))
	for i, p := range prices {
		out[i] = model.Offer{SellerID: int64(900 + i), UnitPrice: p}
	}
	return out
}

// --- Arm ---

func TestArm_Valid(t *testing.T) {
	_, router := newTestEnv(t)

	w := doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.ArmResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Armed {
		t.Error("expected armed=true")
	}
	if resp.ItemName != "Grade 2 Tincture" {
		t.Errorf("unexpected item name: %s", resp.ItemName)
	}
	if resp.RetainerName != "Pinchley" {
		t.Errorf("unexpected retainer name: %s", resp.RetainerName)
	}
}

func TestArm_UnknownRetainer(t *testing.T) {
	_, router := newTestEnv(t)

	w := doArm(t, router, service.ArmRequest{RetainerID: 99, ItemID: 1})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestArm_DisabledRetainer(t *testing.T) {
	_, router := newTestEnv(t)

	w := doArm(t, router, service.ArmRequest{RetainerID: 8, ItemID: 1})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for disabled retainer, got %d", w.Code)
	}
}

func TestArm_UnknownItem(t *testing.T) {
	_, router := newTestEnv(t)

	w := doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 99})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Offers ---

func TestOffers_IgnoredWhenIdle(t *testing.T) {
	_, router := newTestEnv(t)

	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(100)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Handled {
		t.Error("batch should be ignored while idle")
	}
}

func TestOffers_SettlesAndRecords(t *testing.T) {
	ms, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1, CurrentPrice: 150})

	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(100, 120)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Handled || !resp.Settled {
		t.Fatalf("expected a handled settlement, got %+v", resp)
	}
	if resp.Outcome != model.OutcomePriced {
		t.Errorf("expected priced outcome, got %s", resp.Outcome)
	}
	if resp.Price != 99 {
		t.Errorf("expected price 99, got %d", resp.Price)
	}

	records, err := ms.ListEvaluationsByItem(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to list evaluations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 evaluation record, got %d", len(records))
	}

	rec := records[0]
	if rec.ID == "" {
		t.Error("expected non-empty record id")
	}
	if rec.RetainerID != 7 || rec.RetainerName != "Pinchley" {
		t.Errorf("unexpected retainer on record: %d %s", rec.RetainerID, rec.RetainerName)
	}
	if rec.NewPrice != 99 || rec.ReferencePrice != 150 {
		t.Errorf("unexpected prices on record: new=%d ref=%d", rec.NewPrice, rec.ReferencePrice)
	}
	// 150 → 99 is a 34% cut.
	if rec.CutPercent.String() != "34" {
		t.Errorf("expected cut percent 34, got %s", rec.CutPercent)
	}
	if rec.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestOffers_EmptyPageStaysArmed(t *testing.T) {
	_, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10})
	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Handled || resp.Settled {
		t.Fatalf("empty page should be handled but not settle, got %+v", resp)
	}
	if resp.Outcome != model.OutcomeNoOffers {
		t.Errorf("expected no_offers, got %s", resp.Outcome)
	}

	// The next page still belongs to the same cycle.
	w = doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 11, Offers: offers(200)})
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Settled || resp.Price != 199 {
		t.Errorf("expected settlement at 199, got %+v", resp)
	}
}

func TestOffers_StrategyOverride(t *testing.T) {
	_, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	w := doOffers(t, router, service.OffersRequest{
		ItemID: 1, BatchID: 10, Offers: offers(200), Strategy: "percent:10",
	})
	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Price != 180 {
		t.Errorf("expected price 180 under percent:10, got %d", resp.Price)
	}
}

func TestOffers_InvalidStrategy(t *testing.T) {
	_, router := newTestEnv(t)

	w := doOffers(t, router, service.OffersRequest{
		ItemID: 1, BatchID: 10, Offers: offers(100), Strategy: "fixed:0",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid strategy, got %d", w.Code)
	}
}

func TestOffers_OversizedBatch(t *testing.T) {
	_, router := newTestEnv(t)

	w := doOffers(t, router, service.OffersRequest{
		ItemID: 1, BatchID: 10,
		Offers: offers(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized batch, got %d", w.Code)
	}
}

func TestOffers_FloorFailureSettles(t *testing.T) {
	ms, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	// Vendor price 500: an undercut to 99 falls below the floor.
	w := doOffers(t, router, service.OffersRequest{
		ItemID: 1, BatchID: 10, Offers: offers(100), FloorPolicy: "vendor",
	})
	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Settled {
		t.Fatal("floor failure should settle the cycle")
	}
	if resp.Outcome != model.OutcomeBelowFloor {
		t.Errorf("expected below_floor, got %s", resp.Outcome)
	}
	if resp.Price != 0 {
		t.Errorf("sentinel outcome must not carry a price, got %d", resp.Price)
	}

	records, _ := ms.ListEvaluationsByItem(context.Background(), 1)
	if len(records) != 1 || records[0].Outcome != model.OutcomeBelowFloor {
		t.Errorf("expected one below_floor record, got %+v", records)
	}
}

func TestOffers_MaxCutCap(t *testing.T) {
	ms, router := newTestEnv(t)

	// Listed at 1000; undercutting to 99 is a 90% cut, over the 50% cap.
	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1, CurrentPrice: 1000})

	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(100)})
	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Outcome != model.OutcomeAboveMaxCut {
		t.Errorf("expected above_max_cut, got %s", resp.Outcome)
	}
	if resp.Price != 0 {
		t.Errorf("capped result must not carry a price, got %d", resp.Price)
	}

	records, _ := ms.ListEvaluationsByItem(context.Background(), 1)
	if len(records) != 1 || records[0].Outcome != model.OutcomeAboveMaxCut {
		t.Errorf("expected one above_max_cut record, got %+v", records)
	}
}

func TestOffers_OwnListingKeepsPrice(t *testing.T) {
	_, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	// The cheapest offer belongs to retainer 7 — our own listing.
	page := offers(100, 120)
	page[0].SellerID = 7
	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: page})

	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Price != 100 {
		t.Errorf("own listing should keep its price, got %d", resp.Price)
	}
}

func TestOffers_OutlierSkipsReported(t *testing.T) {
	ms, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	// 9 → 100 is a 91% gap: the bait listing is skipped.
	w := doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(9, 100, 105)})

	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Price != 99 {
		t.Errorf("expected undercut of the accepted offer, got %d", resp.Price)
	}
	if resp.OutlierSkips != 1 {
		t.Errorf("expected 1 outlier skip, got %d", resp.OutlierSkips)
	}

	records, _ := ms.ListEvaluationsByItem(context.Background(), 1)
	if len(records) != 1 || records[0].OutlierSkips != 1 {
		t.Errorf("expected the skip count on the record, got %+v", records)
	}
}

// --- Reset ---

func TestReset_AbandonsCycle(t *testing.T) {
	_, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1})

	w := doJSON(t, router, "POST", "/api/v1/reset", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(100)})
	var resp service.OffersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Handled {
		t.Error("batches after reset should be ignored")
	}
}

// --- Reads ---

func TestListRetainers(t *testing.T) {
	_, router := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/retainers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var retainers []model.Retainer
	json.Unmarshal(w.Body.Bytes(), &retainers)
	if len(retainers) != 2 {
		t.Errorf("expected 2 retainers, got %d", len(retainers))
	}
}

func TestListEvaluations_RequiresFilter(t *testing.T) {
	_, router := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/v1/evaluations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a filter, got %d", w.Code)
	}
}

func TestGetSummary_AfterSettlement(t *testing.T) {
	_, router := newTestEnv(t)

	doArm(t, router, service.ArmRequest{RetainerID: 7, ItemID: 1, CurrentPrice: 150})
	doOffers(t, router, service.OffersRequest{ItemID: 1, BatchID: 10, Offers: offers(100)})

	req := httptest.NewRequest("GET", "/api/v1/summary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var summary model.RunSummary
	json.Unmarshal(w.Body.Bytes(), &summary)

	if summary.Total != 1 {
		t.Errorf("expected 1 evaluation in summary, got %d", summary.Total)
	}
	if summary.ByOutcome[model.OutcomePriced] != 1 {
		t.Errorf("expected 1 priced outcome, got %+v", summary.ByOutcome)
	}
	if summary.AvgCutPercent.String() != "34" {
		t.Errorf("expected average cut 34, got %s", summary.AvgCutPercent)
	}
}

func TestUpsertItem_Validation(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "PUT", "/api/v1/items", model.Item{ID: 0, Name: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing id/name, got %d", w.Code)
	}

	w = doJSON(t, router, "PUT", "/api/v1/items", model.Item{ID: 2, Name: "Dark Matter", VendorPrice: 12})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
