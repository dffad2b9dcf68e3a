package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/fjod/helmet-storefront/internal/coupon"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/fjod/helmet-storefront/pkg/logger"
)

const maxRequestBodySize = 1 << 20

type ErrorResponse struct {
	Error    string             `json:"error"`
	Code     string             `json:"code,omitempty"`
	Details  string             `json:"details,omitempty"`
	ReturnTo string             `json:"returnTo,omitempty"`
	Checkout *checkout.Snapshot `json:"checkout,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// classify maps domain and backend errors to an HTTP status, an error code and the message shown to
// the customer.
func classify(err error) (int, string, string) {
	var (
		couponErr *coupon.RejectedError
		orderErr  *order.RejectedError
		apiErr    *backend.APIError
	)
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "authentication required"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusConflict, "empty_cart", "Your cart is empty."
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		return http.StatusConflict, "submission_in_flight", err.Error()
	case errors.Is(err, checkout.ErrLocked), errors.Is(err, checkout.ErrBusy):
		return http.StatusConflict, "checkout_locked", err.Error()
	case errors.Is(err, checkout.ErrNotRetryable):
		return http.StatusConflict, "not_retryable", err.Error()
	case errors.Is(err, checkout.ErrAddressRequired), errors.Is(err, checkout.ErrMethodRequired),
		errors.Is(err, checkout.ErrUnknownAddress), errors.Is(err, coupon.ErrEmptyCode):
		return http.StatusUnprocessableEntity, "invalid_argument", err.Error()
	case errors.Is(err, checkout.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition", err.Error()
	case errors.As(err, &couponErr):
		return http.StatusUnprocessableEntity, "coupon_rejected", couponErr.Message
	case errors.Is(err, order.ErrMissingSession):
		return http.StatusBadGateway, "payment_not_started", "Your order was placed but payment could not be started. You can complete the payment from the order page."
	case errors.As(err, &orderErr):
		return http.StatusUnprocessableEntity, "order_rejected", orderErr.Message
	case errors.Is(err, payment.ErrVerificationFailed):
		return http.StatusPaymentRequired, "verification_failed", payment.SupportMessage
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.As(err, &apiErr) && backend.IsRejection(err):
		return http.StatusUnprocessableEntity, "rejected", apiErr.Message
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "the shop is temporarily unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	respondError(w, status, code, message)
}

// handleCheckoutError is handleError plus the checkout state the browser should render.
func handleCheckoutError(w http.ResponseWriter, r *http.Request, err error, s checkout.Snapshot) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("checkout request failed")
	}
	respondJSON(w, status, ErrorResponse{
		Error:    message,
		Code:     code,
		Checkout: &s,
	})
}
