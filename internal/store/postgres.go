package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pinchworks/repricer/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Cut percentages are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertItem(ctx context.Context, item *model.Item) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, name, can_be_hq, vendor_price)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, can_be_hq = EXCLUDED.can_be_hq, vendor_price = EXCLUDED.vendor_price`,
		item.ID, item.Name, item.CanBeHQ, item.VendorPrice,
	)
	return err
}

func (s *PostgresStore) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	var item model.Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, can_be_hq, vendor_price FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.CanBeHQ, &item.VendorPrice)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, can_be_hq, vendor_price FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.CanBeHQ, &item.VendorPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpsertRetainer(ctx context.Context, r *model.Retainer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO retainers (id, name, enabled)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, enabled = EXCLUDED.enabled`,
		r.ID, r.Name, r.Enabled,
	)
	return err
}

func (s *PostgresStore) GetRetainer(ctx context.Context, id int64) (*model.Retainer, error) {
	var r model.Retainer
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, enabled FROM retainers WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Enabled)
	if err != nil {
		return nil, fmt.Errorf("get retainer %d: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRetainers(ctx context.Context) ([]model.Retainer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, enabled FROM retainers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var retainers []model.Retainer
	for rows.Next() {
		var r model.Retainer
		if err := rows.Scan(&r.ID, &r.Name, &r.Enabled); err != nil {
			return nil, err
		}
		retainers = append(retainers, r)
	}
	return retainers, rows.Err()
}

func (s *PostgresStore) InsertEvaluation(ctx context.Context, rec *model.EvaluationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluations
		   (id, item_id, item_name, retainer_id, retainer_name, batch_id,
		    outcome, reference_price, new_price, cut_percent, outlier_skips, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::NUMERIC, $11, $12)`,
		rec.ID, rec.ItemID, rec.ItemName, rec.RetainerID, rec.RetainerName, rec.BatchID,
		string(rec.Outcome), rec.ReferencePrice, rec.NewPrice,
		rec.CutPercent.String(), rec.OutlierSkips, rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEvaluationsByItem(ctx context.Context, itemID int64) ([]model.EvaluationRecord, error) {
	rows, err := s.pool.Query(ctx, evaluationSelect+` WHERE item_id = $1 ORDER BY timestamp`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvaluations(rows)
}

func (s *PostgresStore) ListEvaluationsByRetainer(ctx context.Context, retainerID int64) ([]model.EvaluationRecord, error) {
	rows, err := s.pool.Query(ctx, evaluationSelect+` WHERE retainer_id = $1 ORDER BY timestamp`, retainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvaluations(rows)
}

func (s *PostgresStore) Summary(ctx context.Context, since time.Time) (*model.RunSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome, COUNT(*),
		        COALESCE(AVG(cut_percent) FILTER (WHERE outcome = 'priced' AND reference_price > 0), 0)::TEXT
		 FROM evaluations
		 WHERE timestamp >= $1
		 GROUP BY outcome`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &model.RunSummary{
		ByOutcome:     make(map[model.Outcome]int),
		AvgCutPercent: decimal.Zero,
	}

	for rows.Next() {
		var outcome string
		var count int
		var avgCutS string
		if err := rows.Scan(&outcome, &count, &avgCutS); err != nil {
			return nil, err
		}
		summary.Total += count
		summary.ByOutcome[model.Outcome(outcome)] = count

		if model.Outcome(outcome) == model.OutcomePriced {
			avg, _ := decimal.NewFromString(avgCutS)
			summary.AvgCutPercent = avg.Round(2)
		}
	}

	return summary, rows.Err()
}

const evaluationSelect = `SELECT id, item_id, item_name, retainer_id, retainer_name, batch_id,
       outcome, reference_price, new_price, cut_percent::TEXT, outlier_skips, timestamp
 FROM evaluations`

// pgxRows is the slice of pgx.Rows that scanEvaluations needs.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvaluations(rows pgxRows) ([]model.EvaluationRecord, error) {
	var records []model.EvaluationRecord
	for rows.Next() {
		var rec model.EvaluationRecord
		var outcome, cutS string

		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.ItemName, &rec.RetainerID, &rec.RetainerName,
			&rec.BatchID, &outcome, &rec.ReferencePrice, &rec.NewPrice,
			&cutS, &rec.OutlierSkips, &rec.Timestamp); err != nil {
			return nil, err
		}

		rec.Outcome = model.Outcome(outcome)
		rec.CutPercent, _ = decimal.NewFromString(cutS)

		records = append(records, rec)
	}
	return records, rows.Err()
}
