package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no order exists for the given identifier.
var ErrNotFound = errors.New("order not found")

// Store persists orders in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const orderColumns = `id, code, billing_name, billing_email, subtotal, tax, status,
	membership_id, user_id, transaction_id, notes, created_at, updated_at`

// Create inserts a new pending order. ID and code are generated when absent.
func (s *Store) Create(ctx context.Context, o Order) (Order, error) {
	if s == nil || s.Pool == nil {
		return Order{}, errors.New("order store not configured")
	}
	if strings.TrimSpace(o.ID) == "" {
		o.ID = uuid.NewString()
	}
	if strings.TrimSpace(o.Code) == "" {
		o.Code = NewCode()
	}
	o.Status = StatusPending

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO orders (id, code, billing_name, billing_email, subtotal, tax, status, membership_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+orderColumns,
		o.ID, o.Code, o.BillingName, o.BillingEmail, o.Subtotal, o.Tax, o.Status, o.MembershipID, o.UserID,
	)
	return scanOrder(row)
}

// GetByID loads an order by its identifier.
func (s *Store) GetByID(ctx context.Context, id string) (Order, error) {
	if s == nil || s.Pool == nil {
		return Order{}, errors.New("order store not configured")
	}
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return Order{}, ErrNotFound
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, strings.TrimSpace(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// MarkSuccess applies the completion transition. The WHERE status = 'pending'
// guard makes the transition a compare-and-set: the returned bool reports
// whether this call applied it. A false return with no error means the order
// was already terminal.
func (s *Store) MarkSuccess(ctx context.Context, id, transactionID, notes string) (bool, error) {
	if s == nil || s.Pool == nil {
		return false, errors.New("order store not configured")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status = 'success', transaction_id = $2, notes = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, transactionID, notes,
	)
	if err != nil {
		return false, fmt.Errorf("mark success: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed applies the failure transition under the same pending-only guard.
func (s *Store) MarkFailed(ctx context.Context, id, notes string) (bool, error) {
	if s == nil || s.Pool == nil {
		return false, errors.New("order store not configured")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status = 'failed', notes = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, notes,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.Code, &o.BillingName, &o.BillingEmail, &o.Subtotal, &o.Tax, &o.Status,
		&o.MembershipID, &o.UserID, &o.TransactionID, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
