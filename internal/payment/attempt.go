package payment

import (
	"context"
	"sync"

	d "github.com/fjod/helmet-storefront/domain"
)

// SignedFields are returned by the provider on success and are only meaningful to the backend's
// verification endpoint.
type SignedFields struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	ProviderSignature string `json:"providerSignature"`
}

// Outcome is the terminal result of one payment attempt.
type Outcome struct {
	Success bool
	Fields  SignedFields
	Reason  string
}

func Succeeded(f SignedFields) Outcome {
	return Outcome{Success: true, Fields: f}
}

func Failed(reason string) Outcome {
	if reason == "" {
		reason = ReasonNotCompleted
	}
	return Outcome{Reason: reason}
}

const (
	ReasonUnavailable  = "unable to open the payment window, please try again"
	ReasonNotCompleted = "payment was not completed"
	ReasonWindowClosed = "payment window closed before payment completed"
	ReasonSuperseded   = "superseded by a newer payment attempt"
)

type Prefill struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"contact"`
}

// Options is what the browser needs to render the provider's hosted checkout.
type Options struct {
	KeyID     string  `json:"key"`
	SessionID string  `json:"orderId"`
	Amount    int64   `json:"amount"`
	Currency  string  `json:"currency"`
	Prefill   Prefill `json:"prefill"`
}

// Attempt is a single open payment session. It resolves exactly once.
type Attempt struct {
	session d.ProviderSession
	options Options
	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func NewAttempt(session d.ProviderSession, opts Options) *Attempt {
	return &Attempt{session: session, options: opts, done: make(chan struct{})}
}

// Resolve records the outcome. Later calls are ignored and report false.
func (a *Attempt) Resolve(o Outcome) bool {
	resolved := false
	a.once.Do(func() {
		a.outcome = o
		resolved = true
		close(a.done)
	})
	return resolved
}

func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt resolves or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (a *Attempt) Session() d.ProviderSession {
	return a.session
}

func (a *Attempt) Options() Options {
	return a.options
}

// Bridge opens the provider's hosted payment UI. Every call returns a fresh attempt; a bridge that
// cannot open returns an attempt that has already failed.
type Bridge interface {
	Open(ctx context.Context, session d.ProviderSession, prefill Prefill) *Attempt
}
