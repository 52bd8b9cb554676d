// Package store defines persistence for the repricer: the item catalog,
// the seller's retainer registry, and the append-only evaluation ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/pinchworks/repricer/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for catalog lookups, which sit
// on the hot path of every evaluation.
type Store interface {
	// --- Item catalog ---

	// UpsertItem creates or replaces a catalog row.
	UpsertItem(ctx context.Context, item *model.Item) error

	// GetItem retrieves a catalog row by item id.
	GetItem(ctx context.Context, id int64) (*model.Item, error)

	// ListItems returns the full catalog.
	ListItems(ctx context.Context) ([]model.Item, error)

	// --- Retainer registry ---

	// UpsertRetainer creates or replaces one of the seller's retainers.
	UpsertRetainer(ctx context.Context, r *model.Retainer) error

	// GetRetainer retrieves a retainer by id.
	GetRetainer(ctx context.Context, id int64) (*model.Retainer, error)

	// ListRetainers returns all known retainers.
	ListRetainers(ctx context.Context) ([]model.Retainer, error)

	// --- Evaluation ledger (append-only) ---

	// InsertEvaluation appends an immutable evaluation record.
	InsertEvaluation(ctx context.Context, rec *model.EvaluationRecord) error

	// ListEvaluationsByItem returns all evaluations for an item.
	ListEvaluationsByItem(ctx context.Context, itemID int64) ([]model.EvaluationRecord, error)

	// ListEvaluationsByRetainer returns all evaluations for a retainer.
	ListEvaluationsByRetainer(ctx context.Context, retainerID int64) ([]model.EvaluationRecord, error)

	// Summary aggregates outcomes and the average price cut since a time.
	Summary(ctx context.Context, since time.Time) (*model.RunSummary, error)
}
