package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StepAddressSelection, StepPaymentMethodSelection))
	assert.True(t, CanTransitionTo(StepReview, StepAddressSelection))
	assert.True(t, CanTransitionTo(StepAwaitingPayment, StepFailedRetryable))
	assert.True(t, CanTransitionTo(StepFailedRetryable, StepAwaitingPayment))

	assert.False(t, CanTransitionTo(StepSubmitting, StepAddressSelection))
	assert.False(t, CanTransitionTo(StepFailedRetryable, StepSubmitting))
	assert.False(t, CanTransitionTo(StepVerifying, StepFailedRetryable))
	assert.False(t, CanTransitionTo(StepComplete, StepReview))
	assert.False(t, CanTransitionTo(StepVerificationFailed, StepVerifying))
}

func TestCheckoutStep_Classification(t *testing.T) {
	assert.True(t, StepComplete.IsTerminal())
	assert.True(t, StepVerificationFailed.IsTerminal())
	assert.False(t, StepFailedRetryable.IsTerminal())

	assert.True(t, StepReview.IsNavigable())
	assert.False(t, StepSubmitting.IsNavigable())

	assert.True(t, StepVerifying.InFlight())
	assert.False(t, StepFailedRetryable.InFlight())
}

func TestPendingOrderFromOrder(t *testing.T) {
	order := &Order{
		ID:                "ord-1",
		Total:             decimal.NewFromInt(1620),
		PaymentMethod:     PaymentMethodOnline,
		PaymentStatus:     PaymentStatusPending,
		OrderStatus:       OrderStatusPending,
		ProviderSessionID: "sess-1",
	}

	pending, ok := PendingOrderFromOrder(order, "INR")
	require.True(t, ok)
	assert.Equal(t, "ord-1", pending.Order.ID)
	assert.Equal(t, "sess-1", pending.Session.ID)
	assert.Equal(t, int64(162000), pending.Session.Amount)

	order.PaymentStatus = PaymentStatusPaid
	_, ok = PendingOrderFromOrder(order, "INR")
	assert.False(t, ok)
}

func TestNormalizeCouponCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCouponCode("  save10 "))
}
