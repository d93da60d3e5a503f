package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/markholt/go-storefront-api/internal/model"
)

func TestRenderNotification(t *testing.T) {
	event := model.NotificationEvent{
		EventID:     uuid.New(),
		UserID:      uuid.New(),
		OrderNumber: "ORD-1735689600000-042",
		Amount:      "180.00",
	}

	tests := []struct {
		kind    string
		title   string
		message string
	}{
		{model.EventOrderCreated, "Order placed", "Your order ORD-1735689600000-042 has been placed. Total: $180.00."},
		{model.EventOrderCancelled, "Order cancelled", "Your order ORD-1735689600000-042 has been cancelled."},
		{model.EventOrderShipped, "Order shipped", "Your order ORD-1735689600000-042 is on its way."},
		{model.EventPaymentCompleted, "Payment received", "Payment of $180.00 for order ORD-1735689600000-042 was successful."},
		{model.EventPaymentFailed, "Payment failed", "Payment for order ORD-1735689600000-042 was declined. Please try again."},
	}

	for _, tt := range tests {
		event.Kind = tt.kind
		title, message, ok := renderNotification(event)
		assert.True(t, ok, tt.kind)
		assert.Equal(t, tt.title, title)
		assert.Equal(t, tt.message, message)
	}
}

func TestRenderNotification_UnknownKind(t *testing.T) {
	_, _, ok := renderNotification(model.NotificationEvent{Kind: "order.exploded"})
	assert.False(t, ok)
}
