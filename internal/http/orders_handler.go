package http

import (
	"context"
	"net/http"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/journal"
	"github.com/go-chi/chi/v5"
)

type OrdersAPI interface {
	GetOrder(ctx context.Context, orderID string) (*d.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*d.Order, error)
}

type OrderHistory interface {
	GetOrderEvents(ctx context.Context, orderID string) ([]*journal.Event, error)
}

type OrdersHandler struct {
	orders   OrdersAPI
	history  OrderHistory
	sessions Sessions
	timeout  time.Duration
}

func NewOrdersHandler(orders OrdersAPI, history OrderHistory, sessions Sessions, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		history:  history,
		sessions: sessions,
		timeout:  timeout,
	}
}

type OrderDetailDTO struct {
	Order           *d.Order `json:"order"`
	CanRetryPayment bool     `json:"canRetryPayment"`
	CanCancel       bool     `json:"canCancel"`
}

type OrderEventDTO struct {
	Type       string         `json:"type"`
	From       d.CheckoutStep `json:"from"`
	To         d.CheckoutStep `json:"to"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func orderDetail(o *d.Order) OrderDetailDTO {
	return OrderDetailDTO{
		Order:           o,
		CanRetryPayment: o.AwaitingOnlinePayment(),
		CanCancel:       o.OrderStatus.Cancellable(),
	}
}

func (h *OrdersHandler) loadOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (*d.Order, bool) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return nil, false
	}
	o, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return o, true
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, ok := h.loadOrder(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, orderDetail(o))
}

// GET /api/v1/orders/{order_id}/events
func (h *OrdersHandler) GetOrderEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// the backend only returns orders owned by the caller
	o, ok := h.loadOrder(ctx, w, r)
	if !ok {
		return
	}
	events, err := h.history.GetOrderEvents(ctx, o.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	dtos := make([]OrderEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, OrderEventDTO{
			Type:       e.EventType,
			From:       e.From,
			To:         e.To,
			Reason:     e.Reason,
			OccurredAt: e.OccurredAt,
		})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/orders/{order_id}/retry-payment
//
// Reopens the provider window for the order's existing session; no new order is created.
func (h *OrdersHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	o, ok := h.loadOrder(ctx, w, r)
	if !ok {
		return
	}
	if !o.AwaitingOnlinePayment() {
		respondError(w, http.StatusConflict, "not_retryable", "this order has no payment to retry")
		return
	}

	co, err := h.sessions.Get(ctx, s.Key, s.User)
	if err != nil {
		handleError(w, r, err)
		return
	}
	snap, err := co.ResumeOrder(ctx, o)
	if err != nil {
		handleCheckoutError(w, r, err, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := sessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	o, ok := h.loadOrder(ctx, w, r)
	if !ok {
		return
	}
	if !o.OrderStatus.Cancellable() {
		respondError(w, http.StatusConflict, "not_cancellable", "only pending or confirmed orders can be cancelled")
		return
	}

	cancelled, err := h.orders.CancelOrder(ctx, o.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if co, ok := h.sessions.Lookup(s.Key); ok {
		co.OrderCancelled(ctx, o.ID)
	}
	respondJSON(w, http.StatusOK, orderDetail(cancelled))
}
