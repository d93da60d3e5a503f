package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

var (
	ErrDiscountNotFound   = errors.New("discount not found")
	ErrDiscountCodeExists = errors.New("discount code already exists")
)

// DiscountQuote is the result of evaluating a code against an order
// amount. Evaluation is read-only; used_count moves only via ApplyInTx.
type DiscountQuote struct {
	Valid          bool
	Reason         string
	Discount       *model.Discount
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

type DiscountService struct {
	discountRepo repository.DiscountRepository
	now          func() time.Time
}

func NewDiscountService(discountRepo repository.DiscountRepository) *DiscountService {
	return &DiscountService{discountRepo: discountRepo, now: time.Now}
}

// Evaluate decides whether a code applies to the given amount and computes
// the discount. It never mutates used_count, so it is safe for the
// pre-checkout dry-run endpoint.
func (s *DiscountService) Evaluate(ctx context.Context, code string, orderAmount decimal.Decimal) (*DiscountQuote, error) {
	discount, err := s.discountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}

	now := s.now()
	switch {
	case discount == nil:
		return &DiscountQuote{Reason: "discount code not found"}, nil
	case !discount.IsActive:
		return &DiscountQuote{Reason: "discount code is not active"}, nil
	case discount.ValidFrom != nil && now.Before(*discount.ValidFrom):
		return &DiscountQuote{Reason: "discount code is not yet valid"}, nil
	case discount.ValidUntil != nil && now.After(*discount.ValidUntil):
		return &DiscountQuote{Reason: "discount code has expired"}, nil
	case discount.UsageLimit != nil && discount.UsedCount >= *discount.UsageLimit:
		return &DiscountQuote{Reason: "discount code usage limit reached"}, nil
	case orderAmount.LessThan(discount.MinOrderAmount):
		return &DiscountQuote{
			Reason: fmt.Sprintf("minimum order amount of %s required", discount.MinOrderAmount.StringFixed(2)),
		}, nil
	}

	amount := computeDiscountAmount(discount, orderAmount)
	final := orderAmount.Sub(amount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return &DiscountQuote{
		Valid:          true,
		Discount:       discount,
		DiscountAmount: amount,
		FinalAmount:    final,
	}, nil
}

// computeDiscountAmount applies the type rules: percentage discounts are
// capped by max_discount_amount, fixed discounts are taken at face value
// even past the order total (the final amount is floored at zero by the
// caller).
func computeDiscountAmount(d *model.Discount, orderAmount decimal.Decimal) decimal.Decimal {
	if d.Type == model.DiscountPercentage {
		amount := orderAmount.Mul(d.Value).Div(decimal.NewFromInt(100))
		if d.MaxDiscountAmount != nil && amount.GreaterThan(*d.MaxDiscountAmount) {
			amount = *d.MaxDiscountAmount
		}
		return amount
	}
	return d.Value
}

// ApplyInTx consumes one use of the code inside the order transaction.
// A false return means the usage limit was exhausted between evaluation
// and commit; the order proceeds without the discount.
func (s *DiscountService) ApplyInTx(ctx context.Context, tx pgx.Tx, discountID uuid.UUID) (bool, error) {
	return s.discountRepo.IncrementUsage(ctx, tx, discountID)
}

// --- Admin CRUD ---

func (s *DiscountService) Create(ctx context.Context, req dto.CreateDiscountRequest) (*model.Discount, error) {
	existing, err := s.discountRepo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("check discount code: %w", err)
	}
	if existing != nil {
		return nil, ErrDiscountCodeExists
	}

	discount := &model.Discount{
		Code:              req.Code,
		Description:       req.Description,
		Type:              model.DiscountType(req.Type),
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
	}
	if err := s.discountRepo.Create(ctx, discount); err != nil {
		return nil, fmt.Errorf("create discount: %w", err)
	}
	return discount, nil
}

func (s *DiscountService) List(ctx context.Context, limit, offset int, isActive *bool) ([]model.Discount, int, error) {
	return s.discountRepo.List(ctx, limit, offset, isActive)
}

func (s *DiscountService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateDiscountRequest) (*model.Discount, error) {
	discount, err := s.discountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}
	if discount == nil {
		return nil, ErrDiscountNotFound
	}

	if req.Description != nil {
		discount.Description = *req.Description
	}
	if req.Value != nil {
		discount.Value = *req.Value
	}
	if req.MinOrderAmount != nil {
		discount.MinOrderAmount = *req.MinOrderAmount
	}
	if req.MaxDiscountAmount != nil {
		discount.MaxDiscountAmount = req.MaxDiscountAmount
	}
	if req.UsageLimit != nil {
		discount.UsageLimit = req.UsageLimit
	}
	if req.ValidFrom != nil {
		discount.ValidFrom = req.ValidFrom
	}
	if req.ValidUntil != nil {
		discount.ValidUntil = req.ValidUntil
	}
	if req.IsActive != nil {
		discount.IsActive = *req.IsActive
	}

	if err := s.discountRepo.Update(ctx, discount); err != nil {
		return nil, fmt.Errorf("update discount: %w", err)
	}
	return discount, nil
}

func (s *DiscountService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.discountRepo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDiscountNotFound
		}
		return fmt.Errorf("deactivate discount: %w", err)
	}
	return nil
}
