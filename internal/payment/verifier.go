package payment

import (
	"context"
	"errors"
	"fmt"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/pkg/logger"
)

const SupportMessage = "payment verification failed, contact support"

var (
	ErrVerificationFailed = errors.New(SupportMessage)
	ErrSessionMismatch    = errors.New("signed fields belong to a different payment session")
)

type VerifyAPI interface {
	VerifyPayment(ctx context.Context, req backend.VerifyPaymentRequest) (*backend.VerifyPaymentResponse, error)
}

// Verifier asks the backend to confirm a payment. It is the only path that marks an order paid and
// it never retries: stale signed fields cannot be re-verified, a new session is needed instead.
type Verifier struct {
	api VerifyAPI
}

func NewVerifier(api VerifyAPI) *Verifier {
	return &Verifier{api: api}
}

func (v *Verifier) Verify(ctx context.Context, orderID, sessionID string, f SignedFields) (*d.Order, error) {
	if f.ProviderOrderID != sessionID {
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, ErrSessionMismatch)
	}

	resp, err := v.api.VerifyPayment(ctx, backend.VerifyPaymentRequest{
		ProviderOrderID:   f.ProviderOrderID,
		ProviderPaymentID: f.ProviderPaymentID,
		ProviderSignature: f.ProviderSignature,
		OrderID:           orderID,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("payment verification call failed")
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	if !resp.Success {
		logger.Ctx(ctx).Error().Str("order_id", orderID).Str("message", resp.Message).Msg("payment verification rejected")
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Message)
	}
	if resp.Order == nil {
		logger.Ctx(ctx).Error().Str("order_id", orderID).Msg("payment verification returned no order")
		return nil, fmt.Errorf("%w: backend returned no order for %s", ErrVerificationFailed, orderID)
	}
	if resp.Order.PaymentStatus != d.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: order %s reported payment status %s", ErrVerificationFailed, orderID, resp.Order.PaymentStatus)
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("payment_id", f.ProviderPaymentID).Msg("payment verified")
	return resp.Order, nil
}
