package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// OrganizationStore implements ports.OrganizationStore using SQLite.
// The add-on ledger is stored as a JSON column on the organization row;
// ledger mutations always rewrite the whole array.
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new SQLite organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// List returns all organizations sorted by name.
func (s *OrganizationStore) List(ctx context.Context) ([]ledger.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, plan, base_price, COALESCE(add_ons, ''), status, created_at, updated_at
		FROM organizations
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []ledger.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (ledger.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan, base_price, COALESCE(add_ons, ''), status, created_at, updated_at
		FROM organizations
		WHERE id = ?
	`, id)
	return scanOrganization(row)
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org ledger.Organization) error {
	addons, err := marshalEntries(org.Addons)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, plan, base_price, add_ons, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, org.ID, org.Name, org.Plan, org.BasePrice, addons, org.Status, org.CreatedAt, org.UpdatedAt)

	if isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Update replaces an organization record, including its ledger.
func (s *OrganizationStore) Update(ctx context.Context, org ledger.Organization) error {
	addons, err := marshalEntries(org.Addons)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET name = ?, plan = ?, base_price = ?, add_ons = ?, status = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, org.Name, org.Plan, org.BasePrice, addons, org.Status, org.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// entryRecord is the stored shape of one ledger entry.
type entryRecord struct {
	AddonID   string    `json:"addon_id"`
	Quantity  int64     `json:"quantity"`
	AddedDate time.Time `json:"added_date"`
	Name      string    `json:"name,omitempty"`
	Price     *int64    `json:"price,omitempty"`
}

func marshalEntries(entries []ledger.Entry) (string, error) {
	records := make([]entryRecord, 0, len(entries))
	for _, e := range entries {
		rec := entryRecord{AddonID: e.AddonID, Quantity: e.Quantity, AddedDate: e.AddedDate}
		if e.Snapshot != nil {
			rec.Name = e.Snapshot.Name
			price := e.Snapshot.Price
			rec.Price = &price
		}
		records = append(records, rec)
	}
	out, err := json.Marshal(records)
	return string(out), err
}

func unmarshalEntries(data string) ([]ledger.Entry, error) {
	if data == "" {
		return nil, nil
	}
	var records []entryRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, err
	}

	var entries []ledger.Entry
	for _, rec := range records {
		e := ledger.Entry{AddonID: rec.AddonID, Quantity: rec.Quantity, AddedDate: rec.AddedDate}
		if rec.Price != nil {
			e.Snapshot = &catalog.Snapshot{Name: rec.Name, Price: *rec.Price}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func scanOrganization(row rowScanner) (ledger.Organization, error) {
	var org ledger.Organization
	var addonsJSON string

	err := row.Scan(&org.ID, &org.Name, &org.Plan, &org.BasePrice, &addonsJSON,
		&org.Status, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Organization{}, ErrNotFound
	}
	if err != nil {
		return ledger.Organization{}, err
	}

	org.Addons, err = unmarshalEntries(addonsJSON)
	if err != nil {
		return ledger.Organization{}, err
	}
	return org, nil
}

// Ensure interface compliance.
var _ ports.OrganizationStore = (*OrganizationStore)(nil)
