package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/pkg/logger"
)

var (
	ErrUnknownSession  = errors.New("no open payment attempt for session")
	ErrAlreadyResolved = errors.New("payment attempt already resolved")
)

// Callback is the provider's terminal callback as relayed by the browser.
type Callback struct {
	SessionID         string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	ProviderSignature string `json:"providerSignature"`
	Error             string `json:"error"`
}

func (cb Callback) outcome() Outcome {
	if cb.Error != "" {
		return Failed(cb.Error)
	}
	if cb.ProviderPaymentID == "" || cb.ProviderSignature == "" {
		return Failed(ReasonNotCompleted)
	}
	return Succeeded(SignedFields{
		ProviderOrderID:   cb.SessionID,
		ProviderPaymentID: cb.ProviderPaymentID,
		ProviderSignature: cb.ProviderSignature,
	})
}

// HostedBridge hands the browser what it needs to open the provider's hosted checkout and routes
// the relayed callback back to the attempt waiting on it.
type HostedBridge struct {
	keyID  string
	window time.Duration

	mu   sync.Mutex
	open map[string]*Attempt
}

func NewHostedBridge(keyID string, window time.Duration) *HostedBridge {
	return &HostedBridge{
		keyID:  keyID,
		window: window,
		open:   make(map[string]*Attempt),
	}
}

func (b *HostedBridge) Open(ctx context.Context, session d.ProviderSession, prefill Prefill) *Attempt {
	a := NewAttempt(session, Options{
		KeyID:     b.keyID,
		SessionID: session.ID,
		Amount:    session.Amount,
		Currency:  session.Currency,
		Prefill:   prefill,
	})

	if b.keyID == "" || !session.Valid() {
		logger.Ctx(ctx).Error().Str("session_id", session.ID).Msg("payment window could not be opened")
		a.Resolve(Failed(ReasonUnavailable))
		return a
	}

	b.mu.Lock()
	if prev, ok := b.open[session.ID]; ok {
		prev.Resolve(Failed(ReasonSuperseded))
	}
	b.open[session.ID] = a
	b.mu.Unlock()

	go b.expire(a)
	return a
}

func (b *HostedBridge) expire(a *Attempt) {
	timer := time.NewTimer(b.window)
	defer timer.Stop()
	select {
	case <-timer.C:
		if a.Resolve(Failed(ReasonWindowClosed)) {
			logger.L().Info().Str("session_id", a.session.ID).Msg("payment window expired")
		}
	case <-a.Done():
	}
	b.forget(a)
}

func (b *HostedBridge) forget(a *Attempt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[a.session.ID] == a {
		delete(b.open, a.session.ID)
	}
}

// Deliver resolves the attempt the callback belongs to.
func (b *HostedBridge) Deliver(ctx context.Context, cb Callback) error {
	b.mu.Lock()
	a, ok := b.open[cb.SessionID]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	outcome := cb.outcome()
	if !a.Resolve(outcome) {
		return ErrAlreadyResolved
	}
	logger.Ctx(ctx).Info().
		Str("session_id", cb.SessionID).
		Bool("success", outcome.Success).
		Str("reason", outcome.Reason).
		Msg("payment callback delivered")
	return nil
}

// OpenAttempts is the number of attempts still waiting on a callback.
func (b *HostedBridge) OpenAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}
