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

type DiscountRepository interface {
	Create(ctx context.Context, discount *model.Discount) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Discount, error)
	GetByCode(ctx context.Context, code string) (*model.Discount, error)
	List(ctx context.Context, limit, offset int, isActive *bool) ([]model.Discount, int, error)
	Update(ctx context.Context, discount *model.Discount) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	IncrementUsage(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

type pgDiscountRepo struct{ pool *pgxpool.Pool }

func NewDiscountRepository(pool *pgxpool.Pool) DiscountRepository {
	return &pgDiscountRepo{pool: pool}
}

const discountColumns = `id, code, description, discount_type, discount_value, min_order_amount,
	max_discount_amount, usage_limit, used_count, valid_from, valid_until, is_active, created_at, updated_at`

func scanDiscount(row pgx.Row, d *model.Discount) error {
	return row.Scan(
		&d.ID, &d.Code, &d.Description, &d.Type, &d.Value, &d.MinOrderAmount,
		&d.MaxDiscountAmount, &d.UsageLimit, &d.UsedCount, &d.ValidFrom,
		&d.ValidUntil, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
}

func (r *pgDiscountRepo) Create(ctx context.Context, discount *model.Discount) error {
	discount.ID = uuid.New()
	query := `INSERT INTO discounts (id, code, description, discount_type, discount_value, min_order_amount,
			  max_discount_amount, usage_limit, valid_from, valid_until, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW(), NOW())
			  RETURNING used_count, is_active, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		discount.ID, discount.Code, discount.Description, discount.Type, discount.Value,
		discount.MinOrderAmount, discount.MaxDiscountAmount, discount.UsageLimit,
		discount.ValidFrom, discount.ValidUntil,
	).Scan(&discount.UsedCount, &discount.IsActive, &discount.CreatedAt, &discount.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create discount: %w", err)
	}
	return nil
}

func (r *pgDiscountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	d := &model.Discount{}
	err := scanDiscount(r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id), d)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return d, nil
}

// GetByCode matches codes case-sensitively.
func (r *pgDiscountRepo) GetByCode(ctx context.Context, code string) (*model.Discount, error) {
	d := &model.Discount{}
	err := scanDiscount(r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE code = $1`, code), d)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discount by code: %w", err)
	}
	return d, nil
}

func (r *pgDiscountRepo) List(ctx context.Context, limit, offset int, isActive *bool) ([]model.Discount, int, error) {
	var total int
	countQ := `SELECT COUNT(*) FROM discounts WHERE ($1::boolean IS NULL OR is_active = $1)`
	if err := r.pool.QueryRow(ctx, countQ, isActive).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discounts: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts
		 WHERE ($1::boolean IS NULL OR is_active = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, isActive, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var discounts []model.Discount
	for rows.Next() {
		var d model.Discount
		if err := scanDiscount(rows, &d); err != nil {
			return nil, 0, fmt.Errorf("scan discount: %w", err)
		}
		discounts = append(discounts, d)
	}
	return discounts, total, nil
}

func (r *pgDiscountRepo) Update(ctx context.Context, discount *model.Discount) error {
	query := `UPDATE discounts SET description=$2, discount_value=$3, min_order_amount=$4,
			  max_discount_amount=$5, usage_limit=$6, valid_from=$7, valid_until=$8, is_active=$9, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		discount.ID, discount.Description, discount.Value, discount.MinOrderAmount,
		discount.MaxDiscountAmount, discount.UsageLimit, discount.ValidFrom,
		discount.ValidUntil, discount.IsActive,
	).Scan(&discount.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update discount: %w", err)
	}
	return nil
}

func (r *pgDiscountRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE discounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate discount: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// IncrementUsage bumps used_count inside the order transaction. The guard
// re-checks the limit so two concurrent checkouts cannot push a code past
// its usage_limit; false means the code lost the race.
func (r *pgDiscountRepo) IncrementUsage(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE discounts SET used_count = used_count + 1, updated_at = NOW()
		 WHERE id = $1 AND is_active = TRUE
		 AND (usage_limit IS NULL OR used_count < usage_limit)`, id)
	if err != nil {
		return false, fmt.Errorf("increment discount usage: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
