package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/markholt/go-storefront-api/internal/gateway"
	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentExists        = errors.New("payment already exists for this order")
	ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")
)

type PaymentService struct {
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	gateway     gateway.Gateway
	amqpCh      *amqp.Channel
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	gw gateway.Gateway,
	amqpCh *amqp.Channel,
) *PaymentService {
	return &PaymentService{paymentRepo: paymentRepo, orderRepo: orderRepo, gateway: gw, amqpCh: amqpCh}
}

// Create opens a pending payment for the caller's order. The amount is
// always the order's final amount; the client does not get to pick it.
func (s *PaymentService) Create(ctx context.Context, userID, orderID uuid.UUID, method string) (*model.Payment, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}
	if existing != nil {
		return nil, ErrPaymentExists
	}

	payment := &model.Payment{
		OrderID: orderID,
		Method:  method,
		Status:  model.PaymentStatusPending,
		Amount:  order.FinalAmount,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return payment, nil
}

// Process resolves a pending payment through the gateway. It is idempotent
// per payment id: a payment that already reached completed or failed is
// returned as stored, never re-authorized.
func (s *PaymentService) Process(ctx context.Context, paymentID, userID uuid.UUID) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	order, err := s.ownedOrder(ctx, payment.OrderID, userID)
	if err != nil {
		return nil, err
	}

	if payment.Status.Resolved() {
		return payment, nil
	}

	outcome, err := s.gateway.Authorize(ctx, payment.Amount)
	if err != nil {
		return nil, fmt.Errorf("authorize payment: %w", err)
	}

	status := model.PaymentStatusFailed
	if outcome.Approved {
		status = model.PaymentStatusCompleted
	}
	transactionID := newTransactionID()

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	resolved, err := s.paymentRepo.ResolveInTx(ctx, tx, payment.ID, status, transactionID)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// Lost the race to a concurrent Process; hand back the stored
		// outcome instead of our roll.
		return s.paymentRepo.GetByID(ctx, payment.ID)
	}

	if outcome.Approved {
		if err := s.orderRepo.UpdateStatusInTx(ctx, tx, order.ID, model.OrderStatusConfirmed); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	payment.Status = status
	payment.TransactionID = transactionID

	kind := model.EventPaymentFailed
	if outcome.Approved {
		kind = model.EventPaymentCompleted
	}
	s.publishEvent(ctx, model.NotificationEvent{
		EventID:     uuid.New(),
		Kind:        kind,
		UserID:      order.UserID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      payment.Amount.StringFixed(2),
	})

	return payment, nil
}

func (s *PaymentService) GetByOrderID(ctx context.Context, userID, orderID uuid.UUID) (*model.Payment, error) {
	if _, err := s.ownedOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// Refund is admin-only and purely a status flip; the simulated gateway has
// no money to move back.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, ErrPaymentNotRefundable
	}

	if err := s.paymentRepo.UpdateStatus(ctx, paymentID, model.PaymentStatusRefunded); err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	payment.Status = model.PaymentStatusRefunded
	return payment, nil
}

func (s *PaymentService) ownedOrder(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *PaymentService) publishEvent(ctx context.Context, event model.NotificationEvent) {
	if s.amqpCh == nil {
		return
	}
	body, _ := json.Marshal(event)
	_ = s.amqpCh.PublishWithContext(ctx, "", notificationsQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}

func newTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}
