package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransition(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransition(OrderStatusConfirmed))
	assert.True(t, OrderStatusConfirmed.CanTransition(OrderStatusProcessing))
	assert.True(t, OrderStatusProcessing.CanTransition(OrderStatusShipped))
	assert.True(t, OrderStatusShipped.CanTransition(OrderStatusDelivered))

	assert.False(t, OrderStatusPending.CanTransition(OrderStatusShipped))
	assert.False(t, OrderStatusDelivered.CanTransition(OrderStatusPending))
	assert.False(t, OrderStatusCancelled.CanTransition(OrderStatusConfirmed))
}

func TestOrderStatus_Cancellable(t *testing.T) {
	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusConfirmed.Cancellable())
	assert.False(t, OrderStatusProcessing.Cancellable())
	assert.False(t, OrderStatusShipped.Cancellable())
	assert.False(t, OrderStatusDelivered.Cancellable())
	assert.False(t, OrderStatusCancelled.Cancellable())
}

func TestPaymentStatus_Resolved(t *testing.T) {
	assert.False(t, PaymentStatusPending.Resolved())
	assert.True(t, PaymentStatusCompleted.Resolved())
	assert.True(t, PaymentStatusFailed.Resolved())
	assert.True(t, PaymentStatusRefunded.Resolved())
}
