package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pinchworks/repricer/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the catalog and retainer lookups that run on every evaluation.
// Writes go to the primary store and refresh or invalidate the cache;
// ledger operations pass through uncached.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) UpsertItem(ctx context.Context, item *model.Item) error {
	if err := s.primary.UpsertItem(ctx, item); err != nil {
		return err
	}
	s.cacheJSON(ctx, itemKey(item.ID), item)
	return nil
}

func (s *CachedStore) UpsertRetainer(ctx context.Context, r *model.Retainer) error {
	if err := s.primary.UpsertRetainer(ctx, r); err != nil {
		return err
	}
	s.cacheJSON(ctx, retainerKey(r.ID), r)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	data, err := s.rdb.Get(ctx, itemKey(id)).Bytes()
	if err == nil {
		var item model.Item
		if json.Unmarshal(data, &item) == nil {
			return &item, nil
		}
	}

	// Cache miss: read from primary.
	item, err := s.primary.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, itemKey(id), item)
	return item, nil
}

func (s *CachedStore) GetRetainer(ctx context.Context, id int64) (*model.Retainer, error) {
	data, err := s.rdb.Get(ctx, retainerKey(id)).Bytes()
	if err == nil {
		var r model.Retainer
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetRetainer(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, retainerKey(id), r)
	return r, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListItems(ctx context.Context) ([]model.Item, error) {
	return s.primary.ListItems(ctx)
}

func (s *CachedStore) ListRetainers(ctx context.Context) ([]model.Retainer, error) {
	return s.primary.ListRetainers(ctx)
}

func (s *CachedStore) InsertEvaluation(ctx context.Context, rec *model.EvaluationRecord) error {
	return s.primary.InsertEvaluation(ctx, rec)
}

func (s *CachedStore) ListEvaluationsByItem(ctx context.Context, itemID int64) ([]model.EvaluationRecord, error) {
	return s.primary.ListEvaluationsByItem(ctx, itemID)
}

func (s *CachedStore) ListEvaluationsByRetainer(ctx context.Context, retainerID int64) ([]model.EvaluationRecord, error) {
	return s.primary.ListEvaluationsByRetainer(ctx, retainerID)
}

func (s *CachedStore) Summary(ctx context.Context, since time.Time) (*model.RunSummary, error) {
	return s.primary.Summary(ctx, since)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func itemKey(id int64) string     { return fmt.Sprintf("item:%d", id) }
func retainerKey(id int64) string { return fmt.Sprintf("retainer:%d", id) }
