package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

var (
	ErrCartEmpty           = errors.New("cart is empty")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAccessDenied   = errors.New("access denied")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in its current status")
	ErrInvalidStatusChange = errors.New("invalid order status transition")
	ErrCheckoutInProgress  = errors.New("another checkout is already in progress")
)

const (
	notificationsQueueName = "notifications"
	checkoutLockKeyPrefix  = "checkout_lock:"
)

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	discountSvc *DiscountService
	redisClient *redis.Client
	amqpCh      *amqp.Channel
	lockTTL     time.Duration
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	discountSvc *DiscountService,
	redisClient *redis.Client,
	amqpCh *amqp.Channel,
	lockTTL time.Duration,
) *OrderService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &OrderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		discountSvc: discountSvc,
		redisClient: redisClient,
		amqpCh:      amqpCh,
		lockTTL:     lockTTL,
	}
}

// CreateOrder builds an order from the user's cart. Stock re-checks, the
// discount usage bump, the order insert, and the cart clear all ride one
// transaction: a failure at any step leaves stock, discounts, and the cart
// untouched.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest) (*model.Order, error) {
	unlock, err := s.acquireCheckoutLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	if cartWithItems == nil || len(cartWithItems.Items) == 0 {
		return nil, ErrCartEmpty
	}

	// Totals come from the snapshot prices captured at add-time, not the
	// live catalog.
	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(cartWithItems.Items))
	for _, ci := range cartWithItems.Items {
		subtotal := ci.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
		total = total.Add(subtotal)
		items = append(items, model.OrderItem{
			ProductID:   ci.ProductID,
			ProductName: ci.ProductName,
			Quantity:    ci.Quantity,
			Price:       ci.Price,
			Subtotal:    subtotal,
		})
	}

	// An invalid or expired code does not fail the order; the customer is
	// charged the full amount. Deliberate policy carried over from the
	// storefront's checkout behavior.
	var quote *DiscountQuote
	if req.DiscountCode != "" {
		quote, err = s.discountSvc.Evaluate(ctx, req.DiscountCode, total)
		if err != nil {
			return nil, fmt.Errorf("evaluate discount: %w", err)
		}
		if !quote.Valid {
			quote = nil
		}
	}

	order := &model.Order{
		OrderNumber:     generateOrderNumber(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		TotalAmount:     total,
		DiscountAmount:  decimal.Zero,
		FinalAmount:     total,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Items:           items,
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range order.Items {
		if err := s.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if quote != nil {
		applied, err := s.discountSvc.ApplyInTx(ctx, tx, quote.Discount.ID)
		if err != nil {
			return nil, fmt.Errorf("apply discount: %w", err)
		}
		// Losing the usage-limit race downgrades to no discount, same as
		// an invalid code.
		if applied {
			order.DiscountAmount = quote.DiscountAmount
			order.FinalAmount = quote.FinalAmount
			order.DiscountCode = quote.Discount.Code
		}
	}

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := s.cartRepo.ClearCartInTx(ctx, tx, cart.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}

	s.publishEvent(ctx, model.NotificationEvent{
		EventID:     uuid.New(),
		Kind:        model.EventOrderCreated,
		UserID:      userID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.FinalAmount.StringFixed(2),
	})

	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
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

func (s *OrderService) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]model.Order, int, error) {
	return s.orderRepo.ListByUser(ctx, userID, status, limit, offset)
}

func (s *OrderService) ListAll(ctx context.Context, status string, limit, offset int) ([]model.Order, int, error) {
	return s.orderRepo.ListAll(ctx, status, limit, offset)
}

// Cancel restores each line's quantity onto product stock and flips the
// order to cancelled, all in one transaction. Discount used_count is not
// given back; a redeemed code stays redeemed even when the order dies.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.GetByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return nil, ErrOrderNotCancellable
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range order.Items {
		if err := s.productRepo.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	cancelled, err := s.orderRepo.CancelInTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// Raced with a status change; the rollback undoes the restore.
		return nil, ErrOrderNotCancellable
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	order.Status = model.OrderStatusCancelled
	s.publishEvent(ctx, model.NotificationEvent{
		EventID:     uuid.New(),
		Kind:        model.EventOrderCancelled,
		UserID:      order.UserID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
	return order, nil
}

// UpdateStatus drives the forward edges of the order state machine
// (admin-only). Cancellation goes through Cancel so stock is restored.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !order.Status.CanTransition(status) {
		return nil, ErrInvalidStatusChange
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	order.Status = status

	if status == model.OrderStatusShipped {
		s.publishEvent(ctx, model.NotificationEvent{
			EventID:     uuid.New(),
			Kind:        model.EventOrderShipped,
			UserID:      order.UserID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		})
	}
	return order, nil
}

// acquireCheckoutLock allows at most one in-flight order build per user,
// shielding stock and discount counters from double-submitted checkouts.
func (s *OrderService) acquireCheckoutLock(ctx context.Context, userID uuid.UUID) (func(), error) {
	if s.redisClient == nil {
		return func() {}, nil
	}
	key := checkoutLockKeyPrefix + userID.String()
	ok, err := s.redisClient.SetNX(ctx, key, "1", s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	return func() { s.redisClient.Del(context.WithoutCancel(ctx), key) }, nil
}

// publishEvent is fire-and-forget: a broker hiccup never rolls back an
// order or payment.
func (s *OrderService) publishEvent(ctx context.Context, event model.NotificationEvent) {
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

// generateOrderNumber produces the human-facing identifier, e.g.
// ORD-1735689600000-042.
func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%03d", time.Now().UnixMilli(), rand.Intn(1000))
}
