package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/ports"
)

// InvoiceStore implements ports.InvoiceStore using SQLite.
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates a new SQLite invoice store.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, organization_id, organization_name, invoice_number,
			amount, status, type, due_date, paid_at, items, notes,
			is_shared, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.OrganizationID, inv.OrganizationName, inv.InvoiceNumber,
		inv.Amount, string(inv.Status), string(inv.Type), inv.DueDate,
		nullTime(inv.PaidAt), string(itemsJSON), nullString(inv.Notes),
		inv.IsShared, inv.CreatedAt,
	)

	if isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, organization_name, invoice_number,
		       amount, status, type, due_date, paid_at, COALESCE(items, ''),
		       COALESCE(notes, ''), is_shared, created_at
		FROM invoices
		WHERE id = ?
	`, id)
	return scanInvoice(row)
}

// List returns invoices matching a filter, newest first. The search term
// matches organization name or invoice number, case-insensitively.
func (s *InvoiceStore) List(ctx context.Context, f ports.InvoiceFilter) ([]invoice.Invoice, error) {
	query := `
		SELECT id, organization_id, organization_name, invoice_number,
		       amount, status, type, due_date, paid_at, COALESCE(items, ''),
		       COALESCE(notes, ''), is_shared, created_at
		FROM invoices
		WHERE 1 = 1
	`
	var args []interface{}

	if f.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, f.OrganizationID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		query += " AND (organization_name LIKE ? OR invoice_number LIKE ?)"
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateStatus updates invoice status and payment timestamp. Items and amount
// are immutable after creation.
func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, status invoice.Status, paidAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, paid_at = ?
		WHERE id = ?
	`, string(status), nullTime(paidAt), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetShared toggles organization-visible sharing.
func (s *InvoiceStore) SetShared(ctx context.Context, id string, shared bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET is_shared = ?
		WHERE id = ?
	`, shared, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func scanInvoice(row rowScanner) (invoice.Invoice, error) {
	var inv invoice.Invoice
	var status, invType, itemsJSON string
	var paidAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.OrganizationName, &inv.InvoiceNumber,
		&inv.Amount, &status, &invType, &inv.DueDate, &paidAt, &itemsJSON,
		&inv.Notes, &inv.IsShared, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return invoice.Invoice{}, ErrNotFound
	}
	if err != nil {
		return invoice.Invoice{}, err
	}

	inv.Status = invoice.Status(status)
	inv.Type = invoice.Type(invType)
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &inv.Items); err != nil {
			return invoice.Invoice{}, err
		}
	}
	return inv, nil
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)
