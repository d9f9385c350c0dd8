package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/ports"
)

// PlanStore implements ports.PlanStore using SQLite.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new SQLite plan store.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

// List returns all plans ordered by price.
func (s *PlanStore) List(ctx context.Context) ([]catalog.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, interval, COALESCE(features, ''), is_active, created_at, updated_at
		FROM plans
		ORDER BY price ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []catalog.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, id string) (catalog.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, interval, COALESCE(features, ''), is_active, created_at, updated_at
		FROM plans
		WHERE id = ?
	`, id)
	return scanPlan(row)
}

// Create stores a new plan.
func (s *PlanStore) Create(ctx context.Context, p catalog.Plan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, price, interval, features, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Price, string(p.Interval), string(features), p.IsActive, p.CreatedAt, p.UpdatedAt)

	if isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Update replaces a plan record.
func (s *PlanStore) Update(ctx context.Context, p catalog.Plan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET name = ?, price = ?, interval = ?, features = ?, is_active = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Name, p.Price, string(p.Interval), string(features), p.IsActive, p.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a plan. Organizations naming it fall back to their stored
// base price.
func (s *PlanStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (catalog.Plan, error) {
	var p catalog.Plan
	var interval, featuresJSON string

	err := row.Scan(&p.ID, &p.Name, &p.Price, &interval, &featuresJSON, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Plan{}, ErrNotFound
	}
	if err != nil {
		return catalog.Plan{}, err
	}

	p.Interval = catalog.Interval(interval)
	if featuresJSON != "" {
		if err := json.Unmarshal([]byte(featuresJSON), &p.Features); err != nil {
			return catalog.Plan{}, err
		}
	}
	return p, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure interface compliance.
var _ ports.PlanStore = (*PlanStore)(nil)
