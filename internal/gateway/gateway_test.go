package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_AlwaysApprove(t *testing.T) {
	gw := NewSimulated(1.0, 42)
	for i := 0; i < 100; i++ {
		outcome, err := gw.Authorize(context.Background(), decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.True(t, outcome.Approved)
	}
}

func TestSimulated_NeverApprove(t *testing.T) {
	gw := NewSimulated(0, 42)
	for i := 0; i < 100; i++ {
		outcome, err := gw.Authorize(context.Background(), decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.False(t, outcome.Approved)
	}
}

func TestNewSimulated_ClampsRate(t *testing.T) {
	assert.Equal(t, 1.0, NewSimulated(3.5, 1).successRate)
	assert.Equal(t, 0.0, NewSimulated(-1, 1).successRate)
}
