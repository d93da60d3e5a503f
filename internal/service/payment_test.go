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

	"github.com/markholt/go-storefront-api/internal/gateway"
	"github.com/markholt/go-storefront-api/internal/model"
)

type mockPaymentRepo struct {
	payments map[uuid.UUID]*model.Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[uuid.UUID]*model.Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *model.Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	return nil
}

func (m *mockPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	if p, ok := m.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *mockPaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*model.Payment, error) {
	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepo) ResolveInTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status model.PaymentStatus, transactionID string) (bool, error) {
	p, ok := m.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.TransactionID = transactionID
	return true, nil
}

func (m *mockPaymentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.PaymentStatus) error {
	if p, ok := m.payments[id]; ok {
		p.Status = status
	}
	return nil
}

// stubGateway always answers the same way, so tests are deterministic.
type stubGateway struct{ approve bool }

func (g stubGateway) Authorize(context.Context, decimal.Decimal) (gateway.Outcome, error) {
	return gateway.Outcome{Approved: g.approve}, nil
}

func seedOrder(repo *mockOrderRepo, userID uuid.UUID, status model.OrderStatus, final decimal.Decimal) *model.Order {
	order := &model.Order{
		ID: uuid.New(), OrderNumber: "ORD-1-001", UserID: userID,
		Status: status, TotalAmount: final, FinalAmount: final,
	}
	repo.orders[order.ID] = order
	return order
}

func TestPaymentService_Create_AmountFromOrder(t *testing.T) {
	orderRepo := newMockOrderRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(180))

	svc := NewPaymentService(newMockPaymentRepo(), orderRepo, stubGateway{approve: true}, nil)
	payment, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
}

func TestPaymentService_Create_Duplicate(t *testing.T) {
	orderRepo := newMockOrderRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(50))

	svc := NewPaymentService(newMockPaymentRepo(), orderRepo, stubGateway{approve: true}, nil)
	_, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), userID, order.ID, "paypal")
	assert.ErrorIs(t, err, ErrPaymentExists)
}

func TestPaymentService_Create_NotOwner(t *testing.T) {
	orderRepo := newMockOrderRepo()
	order := seedOrder(orderRepo, uuid.New(), model.OrderStatusPending, decimal.NewFromInt(50))

	svc := NewPaymentService(newMockPaymentRepo(), orderRepo, stubGateway{approve: true}, nil)
	_, err := svc.Create(context.Background(), uuid.New(), order.ID, "card")
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestPaymentService_Process_Approved(t *testing.T) {
	orderRepo := newMockOrderRepo()
	paymentRepo := newMockPaymentRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(75))

	svc := NewPaymentService(paymentRepo, orderRepo, stubGateway{approve: true}, nil)
	payment, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	processed, err := svc.Process(context.Background(), payment.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, processed.Status)
	assert.Regexp(t, `^TXN-[0-9A-F]{8}$`, processed.TransactionID)
	assert.Equal(t, model.OrderStatusConfirmed, orderRepo.orders[order.ID].Status)
}

func TestPaymentService_Process_Declined(t *testing.T) {
	orderRepo := newMockOrderRepo()
	paymentRepo := newMockPaymentRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(75))

	svc := NewPaymentService(paymentRepo, orderRepo, stubGateway{approve: false}, nil)
	payment, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	processed, err := svc.Process(context.Background(), payment.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusFailed, processed.Status)
	assert.Equal(t, model.OrderStatusPending, orderRepo.orders[order.ID].Status)
}

func TestPaymentService_Process_Idempotent(t *testing.T) {
	orderRepo := newMockOrderRepo()
	paymentRepo := newMockPaymentRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(75))

	svc := NewPaymentService(paymentRepo, orderRepo, stubGateway{approve: true}, nil)
	payment, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	first, err := svc.Process(context.Background(), payment.ID, userID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, first.Status)

	// A second Process with a declining gateway must return the stored
	// outcome, not re-authorize.
	svc = NewPaymentService(paymentRepo, orderRepo, stubGateway{approve: false}, nil)
	second, err := svc.Process(context.Background(), payment.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
}

func TestPaymentService_Refund_OnlyCompleted(t *testing.T) {
	orderRepo := newMockOrderRepo()
	paymentRepo := newMockPaymentRepo()
	userID := uuid.New()
	order := seedOrder(orderRepo, userID, model.OrderStatusPending, decimal.NewFromInt(75))

	svc := NewPaymentService(paymentRepo, orderRepo, stubGateway{approve: true}, nil)
	payment, err := svc.Create(context.Background(), userID, order.ID, "card")
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)

	_, err = svc.Process(context.Background(), payment.ID, userID)
	require.NoError(t, err)

	refunded, err := svc.Refund(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)
}
