// internal/repository/order_repo.go
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mpesa-gateway/internal/domain"
)

// OrderRepository adapts the merchant order store to domain.OrderGateway.
//
// Expected schema:
//
//	orders(id bigint pk, tenant_id bigint, status text, total numeric,
//	       billing_phone text, transaction_id text, tracking_id text,
//	       payment_method text, updated_at timestamptz)
//	order_notes(id bigserial pk, order_id bigint, note text,
//	            created_at timestamptz default now())
type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, tenant_id, status, total, billing_phone,
	COALESCE(transaction_id, ''), COALESCE(tracking_id, ''), payment_method
`

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *OrderRepository) FindByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tracking_id = $1 ORDER BY id LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, trackingID))
}

// UpdateStatus writes the new status and its note in one transaction so a
// crash cannot leave a transition without its audit trail.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status)); err != nil {
		return err
	}
	if note != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`,
			id, note); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepository) SetTransactionID(ctx context.Context, id int64, transactionID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders SET transaction_id = $2, updated_at = now() WHERE id = $1`,
		id, transactionID)
	return err
}

func (r *OrderRepository) SetTrackingID(ctx context.Context, id int64, trackingID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders SET tracking_id = $2, updated_at = now() WHERE id = $1`,
		id, trackingID)
	return err
}

func (r *OrderRepository) SetBillingPhone(ctx context.Context, id int64, phone string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders SET billing_phone = $2, updated_at = now() WHERE id = $1`,
		id, phone)
	return err
}

func (r *OrderRepository) AddNote(ctx context.Context, id int64, note string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`,
		id, note)
	return err
}

func (r *OrderRepository) LatestNote(ctx context.Context, id int64) (string, error) {
	var note string
	err := r.db.QueryRow(ctx,
		`SELECT note FROM order_notes WHERE order_id = $1 ORDER BY id DESC LIMIT 1`,
		id).Scan(&note)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return note, err
}

func (r *OrderRepository) scanOne(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	var status string
	err := row.Scan(
		&order.ID,
		&order.TenantID,
		&status,
		&order.Total,
		&order.BillingPhone,
		&order.TransactionID,
		&order.TrackingID,
		&order.PaymentMethod,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}
