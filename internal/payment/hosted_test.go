package payment

import (
	"context"
	"testing"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSession = d.ProviderSession{ID: "sess-1", Amount: 162000, Currency: "INR"}

func waitOutcome(t *testing.T, a *Attempt) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o, err := a.Wait(ctx)
	require.NoError(t, err)
	return o
}

func TestHostedBridge_SuccessCallback(t *testing.T) {
	b := NewHostedBridge("key_test", time.Minute)
	a := b.Open(context.Background(), testSession, Prefill{Name: "Asha"})

	assert.Equal(t, "key_test", a.Options().KeyID)
	assert.Equal(t, int64(162000), a.Options().Amount)
	assert.Equal(t, "Asha", a.Options().Prefill.Name)

	err := b.Deliver(context.Background(), Callback{
		SessionID:         "sess-1",
		ProviderPaymentID: "pay-1",
		ProviderSignature: "sig",
	})
	require.NoError(t, err)

	o := waitOutcome(t, a)
	assert.True(t, o.Success)
	assert.Equal(t, SignedFields{ProviderOrderID: "sess-1", ProviderPaymentID: "pay-1", ProviderSignature: "sig"}, o.Fields)
}

func TestHostedBridge_FailureCallback(t *testing.T) {
	b := NewHostedBridge("key_test", time.Minute)
	a := b.Open(context.Background(), testSession, Prefill{})

	require.NoError(t, b.Deliver(context.Background(), Callback{SessionID: "sess-1", Error: "card declined"}))

	o := waitOutcome(t, a)
	assert.False(t, o.Success)
	assert.Equal(t, "card declined", o.Reason)
}

func TestHostedBridge_DismissedWindowIsFailure(t *testing.T) {
	b := NewHostedBridge("key_test", time.Minute)
	a := b.Open(context.Background(), testSession, Prefill{})

	require.NoError(t, b.Deliver(context.Background(), Callback{SessionID: "sess-1"}))

	o := waitOutcome(t, a)
	assert.False(t, o.Success)
	assert.Equal(t, ReasonNotCompleted, o.Reason)
}

func TestHostedBridge_CannotOpenFailsImmediately(t *testing.T) {
	b := NewHostedBridge("", time.Minute)
	a := b.Open(context.Background(), testSession, Prefill{})

	select {
	case <-a.Done():
	default:
		t.Fatal("attempt should already be resolved")
	}
	o := waitOutcome(t, a)
	assert.Equal(t, ReasonUnavailable, o.Reason)
	assert.Equal(t, 0, b.OpenAttempts())
}

func TestHostedBridge_WindowExpires(t *testing.T) {
	b := NewHostedBridge("key_test", 20*time.Millisecond)
	a := b.Open(context.Background(), testSession, Prefill{})

	o := waitOutcome(t, a)
	assert.Equal(t, ReasonWindowClosed, o.Reason)
	assert.Eventually(t, func() bool { return b.OpenAttempts() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHostedBridge_ReopenSupersedesPreviousAttempt(t *testing.T) {
	b := NewHostedBridge("key_test", time.Minute)
	first := b.Open(context.Background(), testSession, Prefill{})
	second := b.Open(context.Background(), testSession, Prefill{})

	assert.Equal(t, ReasonSuperseded, waitOutcome(t, first).Reason)

	require.NoError(t, b.Deliver(context.Background(), Callback{SessionID: "sess-1", ProviderPaymentID: "p", ProviderSignature: "s"}))
	assert.True(t, waitOutcome(t, second).Success)
}

func TestHostedBridge_UnknownAndDuplicateCallbacks(t *testing.T) {
	b := NewHostedBridge("key_test", time.Minute)

	assert.ErrorIs(t, b.Deliver(context.Background(), Callback{SessionID: "nope"}), ErrUnknownSession)

	a := b.Open(context.Background(), testSession, Prefill{})
	a.Resolve(Failed("closed"))
	assert.ErrorIs(t, b.Deliver(context.Background(), Callback{SessionID: "sess-1", Error: "late"}), ErrAlreadyResolved)
}

func TestAttempt_WaitHonoursContext(t *testing.T) {
	a := NewAttempt(testSession, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
