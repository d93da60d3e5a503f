package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

const (
	notificationsQueueName = "notifications"
	dlxExchange            = "notifications.dlx"
	dlqQueueName           = "notifications.dlq"
	idempotencyTTL         = 24 * time.Hour
)

// NotificationWorker turns order and payment events into notification rows.
// Delivery is at-least-once, so each event id is checked against Redis
// before writing.
type NotificationWorker struct {
	channel          *amqp.Channel
	notificationRepo repository.NotificationRepository
	redisClient      *redis.Client
	log              *slog.Logger
	done             chan struct{}
}

func NewNotificationWorker(
	ch *amqp.Channel,
	notificationRepo repository.NotificationRepository,
	redisClient *redis.Client,
	log *slog.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		channel:          ch,
		notificationRepo: notificationRepo,
		redisClient:      redisClient,
		log:              log,
		done:             make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, notificationsQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(notificationsQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": notificationsQueueName,
	}); err != nil {
		return fmt.Errorf("declare notifications queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(notificationsQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started")
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.NotificationEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("unmarshal notification event", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("event_id", event.EventID, "kind", event.Kind, "user_id", event.UserID)

	idempotencyKey := "event_processed:" + event.EventID.String()
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("event already processed, skipping")
		_ = msg.Ack(false)
		return
	}

	title, message, ok := renderNotification(event)
	if !ok {
		log.Error("unknown event kind")
		_ = msg.Nack(false, false) // → DLQ
		return
	}

	if err := w.notificationRepo.Create(ctx, &model.Notification{
		UserID:  event.UserID,
		Kind:    event.Kind,
		Title:   title,
		Message: message,
	}); err != nil {
		log.Error("store notification", "error", err)
		_ = msg.Nack(false, false) // → DLQ
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("notification delivered")
}

func renderNotification(event model.NotificationEvent) (title, message string, ok bool) {
	switch event.Kind {
	case model.EventOrderCreated:
		return "Order placed",
			fmt.Sprintf("Your order %s has been placed. Total: $%s.", event.OrderNumber, event.Amount), true
	case model.EventOrderCancelled:
		return "Order cancelled",
			fmt.Sprintf("Your order %s has been cancelled.", event.OrderNumber), true
	case model.EventOrderShipped:
		return "Order shipped",
			fmt.Sprintf("Your order %s is on its way.", event.OrderNumber), true
	case model.EventPaymentCompleted:
		return "Payment received",
			fmt.Sprintf("Payment of $%s for order %s was successful.", event.Amount, event.OrderNumber), true
	case model.EventPaymentFailed:
		return "Payment failed",
			fmt.Sprintf("Payment for order %s was declined. Please try again.", event.OrderNumber), true
	}
	return "", "", false
}
