package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/fjod/helmet-storefront/internal/payment"
)

type Sessions interface {
	Get(ctx context.Context, key string, user d.User) (*checkout.Checkout, error)
	Lookup(key string) (*checkout.Checkout, bool)
	Remove(ctx context.Context, key string)
}

type CallbackDeliverer interface {
	Deliver(ctx context.Context, cb payment.Callback) error
}

type CheckoutHandler struct {
	sessions Sessions
	bridge   CallbackDeliverer
	timeout  time.Duration
}

func NewCheckoutHandler(sessions Sessions, bridge CallbackDeliverer, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		bridge:   bridge,
		timeout:  timeout,
	}
}

type SelectAddressRequestDTO struct {
	AddressID string `json:"addressId"`
}

type SelectPaymentMethodRequestDTO struct {
	PaymentMethod d.PaymentMethod `json:"paymentMethod"`
}

type GoToStepRequestDTO struct {
	Step d.CheckoutStep `json:"step"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) (*checkout.Checkout, bool) {
	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, false
	}
	co, err := h.sessions.Get(r.Context(), s.Key, s.User)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return co, true
}

func (h *CheckoutHandler) reply(w http.ResponseWriter, r *http.Request, snap checkout.Snapshot, err error) {
	if err != nil {
		handleCheckoutError(w, r, err, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Enter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	snap, err := co.Enter(ctx)
	h.reply(w, r, snap, err)
}

// GET /api/v1/checkout/addresses
func (h *CheckoutHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	list, err := co.Addresses(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []d.Address{}
	}
	respondJSON(w, http.StatusOK, list)
}

// POST /api/v1/checkout/addresses
func (h *CheckoutHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var addr d.Address
	if !decodeJSON(w, r, &addr) {
		return
	}
	addr.ID = ""
	snap, err := co.AddAddress(ctx, addr)
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/address
func (h *CheckoutHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var req SelectAddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := co.SelectAddress(ctx, req.AddressID)
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/payment-method
func (h *CheckoutHandler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var req SelectPaymentMethodRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := co.SelectPaymentMethod(r.Context(), req.PaymentMethod)
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/step
func (h *CheckoutHandler) GoTo(w http.ResponseWriter, r *http.Request) {
	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var req GoToStepRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := co.GoTo(r.Context(), req.Step)
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/coupon
func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var req ApplyCouponRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := co.ApplyCoupon(ctx, req.Code)
	h.reply(w, r, snap, err)
}

// DELETE /api/v1/checkout/coupon
func (h *CheckoutHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	snap, err := co.RemoveCoupon(r.Context())
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/submit
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	snap, err := co.Submit(ctx)
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/payment/callback
//
// The browser relays the provider's terminal callback here. The response is the settled checkout.
func (h *CheckoutHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	var cb payment.Callback
	if !decodeJSON(w, r, &cb) {
		return
	}
	if cb.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "providerOrderId is required")
		return
	}

	// a session can only resolve its own payment window
	snap := co.Snapshot()
	if snap.Payment == nil || snap.Payment.SessionID != cb.SessionID {
		respondError(w, http.StatusNotFound, "unknown_payment_session", "no open payment window for this session")
		return
	}

	if err := h.bridge.Deliver(ctx, cb); err != nil {
		switch {
		case errors.Is(err, payment.ErrUnknownSession):
			respondError(w, http.StatusNotFound, "unknown_payment_session", "no open payment window for this session")
		case errors.Is(err, payment.ErrAlreadyResolved):
			respondError(w, http.StatusConflict, "already_resolved", "payment attempt already resolved")
		default:
			handleError(w, r, err)
		}
		return
	}

	snap, err := co.WaitSettled(ctx)
	if err != nil {
		// verification is still running; the browser polls GET /checkout
		respondJSON(w, http.StatusAccepted, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// POST /api/v1/checkout/payment/retry
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	snap, err := co.RetryPayment(r.Context())
	h.reply(w, r, snap, err)
}

// POST /api/v1/checkout/leave
func (h *CheckoutHandler) Leave(w http.ResponseWriter, r *http.Request) {
	co, ok := h.checkout(w, r)
	if !ok {
		return
	}
	if err := co.Leave(r.Context()); err != nil {
		handleCheckoutError(w, r, err, co.Snapshot())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/logout
//
// Drops the session's checkout and cached cart. The identity service clears the token itself.
func (h *CheckoutHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	h.sessions.Remove(r.Context(), s.Key)
	w.WriteHeader(http.StatusNoContent)
}
