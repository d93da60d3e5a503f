package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markholt/go-storefront-api/internal/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error)
	ResolveInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.PaymentStatus, transactionID string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error
}

type pgPaymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &pgPaymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, method, status, transaction_id, amount, created_at, updated_at`

func scanPayment(row pgx.Row, p *model.Payment) error {
	return row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Status, &p.TransactionID,
		&p.Amount, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *pgPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	payment.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, order_id, method, status, transaction_id, amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`,
		payment.ID, payment.OrderID, payment.Method, payment.Status,
		payment.TransactionID, payment.Amount,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p := &model.Payment{}
	err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *pgPaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Payment, error) {
	p := &model.Payment{}
	err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	return p, nil
}

// ResolveInTx moves a payment out of pending exactly once. False means the
// payment was already resolved by a concurrent call; the caller re-reads
// and returns the stored outcome instead of rolling again.
func (r *pgPaymentRepo) ResolveInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.PaymentStatus, transactionID string) (bool, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE payments SET status = $2, transaction_id = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, status, transactionID, model.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("resolve payment: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgPaymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
