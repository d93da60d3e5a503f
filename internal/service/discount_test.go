package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
)

type mockDiscountRepo struct {
	discounts map[uuid.UUID]*model.Discount
}

func newMockDiscountRepo() *mockDiscountRepo {
	return &mockDiscountRepo{discounts: make(map[uuid.UUID]*model.Discount)}
}

func (m *mockDiscountRepo) Create(_ context.Context, d *model.Discount) error {
	d.ID = uuid.New()
	d.IsActive = true
	d.CreatedAt = time.Now()
	m.discounts[d.ID] = d
	return nil
}

func (m *mockDiscountRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Discount, error) {
	return m.discounts[id], nil
}

func (m *mockDiscountRepo) GetByCode(_ context.Context, code string) (*model.Discount, error) {
	for _, d := range m.discounts {
		if d.Code == code {
			return d, nil
		}
	}
	return nil, nil
}

func (m *mockDiscountRepo) List(_ context.Context, _, _ int, isActive *bool) ([]model.Discount, int, error) {
	var out []model.Discount
	for _, d := range m.discounts {
		if isActive == nil || d.IsActive == *isActive {
			out = append(out, *d)
		}
	}
	return out, len(out), nil
}

func (m *mockDiscountRepo) Update(_ context.Context, d *model.Discount) error {
	m.discounts[d.ID] = d
	return nil
}

func (m *mockDiscountRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	d, ok := m.discounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	d.IsActive = false
	return nil
}

func (m *mockDiscountRepo) IncrementUsage(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	d, ok := m.discounts[id]
	if !ok || !d.IsActive {
		return false, nil
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return false, nil
	}
	d.UsedCount++
	return true, nil
}

func seedDiscount(repo *mockDiscountRepo, d *model.Discount) *model.Discount {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	repo.discounts[d.ID] = d
	return d
}

func TestDiscountService_Evaluate_Percentage(t *testing.T) {
	repo := newMockDiscountRepo()
	seedDiscount(repo, &model.Discount{
		Code: "SAVE10", Type: model.DiscountPercentage,
		Value: decimal.NewFromInt(10), IsActive: true,
	})
	svc := NewDiscountService(repo)

	quote, err := svc.Evaluate(context.Background(), "SAVE10", decimal.NewFromInt(200))
	require.NoError(t, err)
	require.True(t, quote.Valid)
	assert.True(t, quote.DiscountAmount.Equal(decimal.NewFromInt(20)), "got %s", quote.DiscountAmount)
	assert.True(t, quote.FinalAmount.Equal(decimal.NewFromInt(180)), "got %s", quote.FinalAmount)
}

func TestDiscountService_Evaluate_PercentageCapped(t *testing.T) {
	repo := newMockDiscountRepo()
	maxAmount := decimal.NewFromInt(15)
	seedDiscount(repo, &model.Discount{
		Code: "SAVE10", Type: model.DiscountPercentage,
		Value: decimal.NewFromInt(10), MaxDiscountAmount: &maxAmount, IsActive: true,
	})
	svc := NewDiscountService(repo)

	quote, err := svc.Evaluate(context.Background(), "SAVE10", decimal.NewFromInt(200))
	require.NoError(t, err)
	require.True(t, quote.Valid)
	assert.True(t, quote.DiscountAmount.Equal(maxAmount))
	assert.True(t, quote.FinalAmount.Equal(decimal.NewFromInt(185)))
}

func TestDiscountService_Evaluate_FixedFlooredAtZero(t *testing.T) {
	repo := newMockDiscountRepo()
	seedDiscount(repo, &model.Discount{
		Code: "FLAT50", Type: model.DiscountFixed,
		Value: decimal.NewFromInt(50), IsActive: true,
	})
	svc := NewDiscountService(repo)

	quote, err := svc.Evaluate(context.Background(), "FLAT50", decimal.NewFromInt(30))
	require.NoError(t, err)
	require.True(t, quote.Valid)
	assert.True(t, quote.DiscountAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, quote.FinalAmount.IsZero())
}

func TestDiscountService_Evaluate_BelowMinimum(t *testing.T) {
	repo := newMockDiscountRepo()
	seedDiscount(repo, &model.Discount{
		Code: "BIG", Type: model.DiscountPercentage,
		Value: decimal.NewFromInt(10), MinOrderAmount: decimal.NewFromInt(100), IsActive: true,
	})
	svc := NewDiscountService(repo)

	quote, err := svc.Evaluate(context.Background(), "BIG", decimal.NewFromInt(99))
	require.NoError(t, err)
	assert.False(t, quote.Valid)
	assert.Contains(t, quote.Reason, "minimum order amount")
}

func TestDiscountService_Evaluate_Expired(t *testing.T) {
	repo := newMockDiscountRepo()
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDiscount(repo, &model.Discount{
		Code: "OLD", Type: model.DiscountFixed,
		Value: decimal.NewFromInt(5), ValidUntil: &until, IsActive: true,
	})
	svc := NewDiscountService(repo)
	svc.now = func() time.Time { return until.Add(time.Hour) }

	quote, err := svc.Evaluate(context.Background(), "OLD", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.False(t, quote.Valid)
	assert.Equal(t, "discount code has expired", quote.Reason)
}

func TestDiscountService_Evaluate_UsageLimitReached(t *testing.T) {
	repo := newMockDiscountRepo()
	limit := 3
	seedDiscount(repo, &model.Discount{
		Code: "LIM", Type: model.DiscountFixed,
		Value: decimal.NewFromInt(5), UsageLimit: &limit, UsedCount: 3, IsActive: true,
	})
	svc := NewDiscountService(repo)

	quote, err := svc.Evaluate(context.Background(), "LIM", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.False(t, quote.Valid)
	assert.Equal(t, "discount code usage limit reached", quote.Reason)
}

func TestDiscountService_Evaluate_DoesNotConsumeUsage(t *testing.T) {
	repo := newMockDiscountRepo()
	d := seedDiscount(repo, &model.Discount{
		Code: "DRY", Type: model.DiscountFixed,
		Value: decimal.NewFromInt(5), IsActive: true,
	})
	svc := NewDiscountService(repo)

	for i := 0; i < 3; i++ {
		_, err := svc.Evaluate(context.Background(), "DRY", decimal.NewFromInt(50))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, d.UsedCount)
}

func TestDiscountService_Evaluate_UnknownCode(t *testing.T) {
	svc := NewDiscountService(newMockDiscountRepo())

	quote, err := svc.Evaluate(context.Background(), "NOPE", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.False(t, quote.Valid)
	assert.Equal(t, "discount code not found", quote.Reason)
}

func TestDiscountService_Create_DuplicateCode(t *testing.T) {
	repo := newMockDiscountRepo()
	seedDiscount(repo, &model.Discount{Code: "TAKEN", Type: model.DiscountFixed, Value: decimal.NewFromInt(5), IsActive: true})
	svc := NewDiscountService(repo)

	_, err := svc.Create(context.Background(), dto.CreateDiscountRequest{
		Code: "TAKEN", Type: "fixed", Value: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ErrDiscountCodeExists)
}

func TestDiscountService_ApplyInTx_RespectsLimit(t *testing.T) {
	repo := newMockDiscountRepo()
	limit := 1
	d := seedDiscount(repo, &model.Discount{
		Code: "ONCE", Type: model.DiscountFixed,
		Value: decimal.NewFromInt(5), UsageLimit: &limit, IsActive: true,
	})
	svc := NewDiscountService(repo)

	applied, err := svc.ApplyInTx(context.Background(), nil, d.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ApplyInTx(context.Background(), nil, d.ID)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, d.UsedCount)
}
