package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pinchworks/repricer/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[int64]*model.Item
	retainers map[int64]*model.Retainer
	ledger    []model.EvaluationRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[int64]*model.Item),
		retainers: make(map[int64]*model.Retainer),
	}
}

func (s *MemoryStore) UpsertItem(_ context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *item
	s.items[item.ID] = &copy
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, id int64) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d not found", id)
	}
	copy := *item
	return &copy, nil
}

func (s *MemoryStore) ListItems(_ context.Context) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	return items, nil
}

func (s *MemoryStore) UpsertRetainer(_ context.Context, r *model.Retainer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *r
	s.retainers[r.ID] = &copy
	return nil
}

func (s *MemoryStore) GetRetainer(_ context.Context, id int64) (*model.Retainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.retainers[id]
	if !ok {
		return nil, fmt.Errorf("retainer %d not found", id)
	}
	copy := *r
	return &copy, nil
}

func (s *MemoryStore) ListRetainers(_ context.Context) ([]model.Retainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	retainers := make([]model.Retainer, 0, len(s.retainers))
	for _, r := range s.retainers {
		retainers = append(retainers, *r)
	}
	return retainers, nil
}

func (s *MemoryStore) InsertEvaluation(_ context.Context, rec *model.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *rec)
	return nil
}

func (s *MemoryStore) ListEvaluationsByItem(_ context.Context, itemID int64) ([]model.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.EvaluationRecord
	for _, rec := range s.ledger {
		if rec.ItemID == itemID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListEvaluationsByRetainer(_ context.Context, retainerID int64) ([]model.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.EvaluationRecord
	for _, rec := range s.ledger {
		if rec.RetainerID == retainerID {
			result = append(result, rec)
		}
	}
	return result, nil
}

// Summary aggregates the ledger since a cutoff. The average cut is taken
// over priced outcomes that had a known reference price — sentinel
// outcomes have no meaningful cut.
func (s *MemoryStore) Summary(_ context.Context, since time.Time) (*model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &model.RunSummary{
		ByOutcome:     make(map[model.Outcome]int),
		AvgCutPercent: decimal.Zero,
	}

	cutSum := decimal.Zero
	cutCount := 0

	for _, rec := range s.ledger {
		if rec.Timestamp.Before(since) {
			continue
		}
		summary.Total++
		summary.ByOutcome[rec.Outcome]++

		if rec.Outcome == model.OutcomePriced && rec.ReferencePrice > 0 {
			cutSum = cutSum.Add(rec.CutPercent)
			cutCount++
		}
	}

	if cutCount > 0 {
		summary.AvgCutPercent = cutSum.Div(decimal.NewFromInt(int64(cutCount))).Round(2)
	}

	return summary, nil
}
