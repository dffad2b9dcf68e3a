// Package journal keeps an append-only record of checkout step changes. Rows double as an outbox
// for the tracking publisher.
package journal

import (
	"encoding/json"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/google/uuid"
)

const (
	EventStepChanged        = "CheckoutStepChanged"
	EventOrderPlaced        = "CheckoutOrderPlaced"
	EventPaymentFailed      = "CheckoutPaymentFailed"
	EventPaymentReopened    = "CheckoutPaymentReopened"
	EventVerificationFailed = "CheckoutVerificationFailed"
	EventCheckoutCompleted  = "CheckoutCompleted"
)

type Event struct {
	ID          int64
	EventID     string
	EventType   string
	CheckoutKey string
	UserID      string
	OrderID     string
	From        d.CheckoutStep
	To          d.CheckoutStep
	Reason      string
	Payload     json.RawMessage
	OccurredAt  time.Time
	Published   bool
}

type payload struct {
	EventID     string         `json:"event_id"`
	CheckoutKey string         `json:"checkout_key"`
	UserID      string         `json:"user_id,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	From        d.CheckoutStep `json:"from"`
	To          d.CheckoutStep `json:"to"`
	Reason      string         `json:"reason,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

func eventType(t checkout.Transition) string {
	switch {
	case t.To == d.StepComplete:
		return EventCheckoutCompleted
	case t.To == d.StepVerificationFailed:
		return EventVerificationFailed
	case t.From == d.StepAwaitingPayment && t.To == d.StepFailedRetryable:
		return EventPaymentFailed
	case t.From == d.StepSubmitting && t.To == d.StepAwaitingPayment:
		return EventOrderPlaced
	case t.To == d.StepAwaitingPayment:
		return EventPaymentReopened
	default:
		return EventStepChanged
	}
}

// NewEvent turns a transition into a journal row.
func NewEvent(t checkout.Transition) (*Event, error) {
	e := &Event{
		EventID:     uuid.NewString(),
		EventType:   eventType(t),
		CheckoutKey: t.CheckoutKey,
		UserID:      t.UserID,
		OrderID:     t.OrderID,
		From:        t.From,
		To:          t.To,
		Reason:      t.Reason,
		OccurredAt:  t.At.UTC(),
	}
	raw, err := json.Marshal(payload{
		EventID:     e.EventID,
		CheckoutKey: e.CheckoutKey,
		UserID:      e.UserID,
		OrderID:     e.OrderID,
		From:        e.From,
		To:          e.To,
		Reason:      e.Reason,
		OccurredAt:  e.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	e.Payload = raw
	return e, nil
}

// AggregateKey orders events of one order together, falling back to the checkout session.
func (e *Event) AggregateKey() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.CheckoutKey
}
