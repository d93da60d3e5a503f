package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	ImageURL      string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem.Price is the snapshot captured when the item was added; it is
// never re-read from the catalog, so later price changes do not affect
// carts or historical orders.
type CartItem struct {
	ID          uuid.UUID
	CartID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Discount struct {
	ID                uuid.UUID
	Code              string
	Description       string
	Type              DiscountType
	Value             decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	UsedCount         int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the allowed forward edge set of the order state
// machine. Cancellation is handled separately because it restores stock.
var orderTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusConfirmed,
	OrderStatusConfirmed:  OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// CanTransition reports whether an order may move from one status to the
// next via a plain status update.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return orderTransitions[s] == next
}

// Cancellable reports whether an order in this status may still be
// cancelled. Anything past confirmed has already shipped or is being
// picked, so it is out of reach.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          uuid.UUID
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	DiscountAmount  decimal.Decimal
	FinalAmount     decimal.Decimal
	DiscountCode    string
	ShippingAddress string
	BillingAddress  string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem freezes product name and unit price at checkout time.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
	CreatedAt   time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Resolved reports whether the payment outcome is final. Processing a
// resolved payment returns the stored result instead of re-rolling it.
func (s PaymentStatus) Resolved() bool {
	return s != PaymentStatusPending
}

type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Method        string
	Status        PaymentStatus
	TransactionID string
	Amount        decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      string
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// Event kinds carried on the notification queue.
const (
	EventOrderCreated     = "order.created"
	EventOrderCancelled   = "order.cancelled"
	EventOrderShipped     = "order.shipped"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// NotificationEvent is the message published to RabbitMQ after an order or
// payment state change. EventID keys the consumer-side idempotency check.
type NotificationEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Kind        string    `json:"kind"`
	UserID      uuid.UUID `json:"user_id"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Amount      string    `json:"amount,omitempty"`
}
