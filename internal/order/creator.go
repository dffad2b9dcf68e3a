// Package order submits a checkout to the backend and returns the created order together with the
// provider session for online payment.
package order

import (
	"context"
	"errors"
	"fmt"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/pkg/logger"
)

var (
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrAddressRequired = errors.New("a delivery address must be selected")
	ErrInvalidMethod   = errors.New("unsupported payment method")
	ErrMissingSession  = errors.New("online order created without a usable payment session")
)

// RejectedError is returned when the backend refuses the order (stock changed, coupon no longer
// valid, unknown address). Nothing was created.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "order rejected: " + e.Message
}

// MissingSessionError means the order was created but came back without a payable session. The
// order exists; its detail page can open payment later.
type MissingSessionError struct {
	OrderID string
}

func (e *MissingSessionError) Error() string {
	return fmt.Sprintf("%s: order %s", ErrMissingSession, e.OrderID)
}

func (e *MissingSessionError) Unwrap() error {
	return ErrMissingSession
}

type API interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest, idempotencyKey string) (*backend.CreateOrderResponse, error)
}

type Request struct {
	UserID         string
	AddressID      string
	Method         d.PaymentMethod
	CouponCode     string
	IdempotencyKey string
	CartItemCount  int
}

type Result struct {
	Order   *d.Order
	Session *d.ProviderSession
}

type Creator struct {
	api API
}

func NewCreator(api API) *Creator {
	return &Creator{api: api}
}

func (c *Creator) validate(req Request) error {
	switch {
	case req.UserID == "":
		return ErrUnauthenticated
	case req.CartItemCount <= 0:
		return ErrEmptyCart
	case req.AddressID == "":
		return ErrAddressRequired
	case !req.Method.Valid():
		return ErrInvalidMethod
	}
	return nil
}

func (c *Creator) Create(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateOrder(ctx, backend.CreateOrderRequest{
		AddressID:     req.AddressID,
		PaymentMethod: req.Method,
		CouponCode:    d.NormalizeCouponCode(req.CouponCode),
	}, req.IdempotencyKey)
	if err != nil {
		if backend.IsRejection(err) {
			return nil, &RejectedError{Message: backend.Message(err, "Unable to place order")}
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if resp.Order == nil || resp.Order.ID == "" {
		return nil, fmt.Errorf("failed to create order: backend returned no order")
	}

	result := &Result{Order: resp.Order.Clone()}
	if req.Method == d.PaymentMethodOnline {
		if resp.ProviderSession == nil || !resp.ProviderSession.Valid() {
			// the order exists but cannot be paid from here; the order-detail page can still pick it up
			logger.Ctx(ctx).Error().Str("order_id", resp.Order.ID).Msg("online order has no payment session")
			return nil, &MissingSessionError{OrderID: resp.Order.ID}
		}
		session := *resp.ProviderSession
		result.Session = &session
	}

	logger.Ctx(ctx).Info().
		Str("order_id", result.Order.ID).
		Str("payment_method", string(req.Method)).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("order created")
	return result, nil
}
