package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/ports"
)

// AddonStore implements ports.AddonStore using SQLite.
type AddonStore struct {
	db *DB
}

// NewAddonStore creates a new SQLite add-on store.
func NewAddonStore(db *DB) *AddonStore {
	return &AddonStore{db: db}
}

// List returns all catalog add-ons ordered by category, then name.
func (s *AddonStore) List(ctx context.Context) ([]catalog.Addon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, interval,
		       COALESCE(icon, ''), COALESCE(category, ''), is_active,
		       created_at, updated_at
		FROM addons
		ORDER BY category ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []catalog.Addon
	for rows.Next() {
		a, err := scanAddon(rows)
		if err != nil {
			return nil, err
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

// Get retrieves an add-on by ID.
func (s *AddonStore) Get(ctx context.Context, id string) (catalog.Addon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, interval,
		       COALESCE(icon, ''), COALESCE(category, ''), is_active,
		       created_at, updated_at
		FROM addons
		WHERE id = ?
	`, id)
	return scanAddon(row)
}

// Create stores a new add-on.
func (s *AddonStore) Create(ctx context.Context, a catalog.Addon) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addons (id, name, description, price, interval, icon, category,
		                    is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, nullString(a.Description), a.Price, string(a.Interval),
		nullString(a.Icon), nullString(a.Category), a.IsActive, a.CreatedAt, a.UpdatedAt)

	if isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Update replaces an add-on record. Ledger snapshots taken earlier are not
// touched; they only matter once the catalog entry is gone.
func (s *AddonStore) Update(ctx context.Context, a catalog.Addon) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE addons
		SET name = ?, description = ?, price = ?, interval = ?, icon = ?,
		    category = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, a.Name, nullString(a.Description), a.Price, string(a.Interval),
		nullString(a.Icon), nullString(a.Category), a.IsActive, a.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes an add-on from the catalog.
func (s *AddonStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM addons WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func scanAddon(row rowScanner) (catalog.Addon, error) {
	var a catalog.Addon
	var interval string

	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Price, &interval,
		&a.Icon, &a.Category, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Addon{}, ErrNotFound
	}
	if err != nil {
		return catalog.Addon{}, err
	}

	a.Interval = catalog.Interval(interval)
	return a, nil
}

// Ensure interface compliance.
var _ ports.AddonStore = (*AddonStore)(nil)
