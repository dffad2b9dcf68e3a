package journal

import (
	"context"
	"time"

	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/fjod/helmet-storefront/pkg/logger"
)

type Appender interface {
	AppendEvent(ctx context.Context, e *Event) error
}

// Recorder writes checkout transitions to the journal. Failures are logged and dropped so they never
// reach the customer.
type Recorder struct {
	repo    Appender
	timeout time.Duration
}

func NewRecorder(repo Appender, timeout time.Duration) *Recorder {
	return &Recorder{repo: repo, timeout: timeout}
}

func (r *Recorder) Observe(ctx context.Context, t checkout.Transition) {
	e, err := NewEvent(t)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("checkout", t.CheckoutKey).Msg("failed to build journal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.AppendEvent(ctx, e); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("checkout", t.CheckoutKey).
			Str("order_id", t.OrderID).
			Str("to", string(t.To)).
			Msg("failed to record checkout transition")
	}
}

var _ checkout.Observer = (*Recorder)(nil)
