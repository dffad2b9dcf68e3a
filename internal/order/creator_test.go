package order

import (
	"context"
	"errors"
	"testing"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	Calls   int
	LastReq backend.CreateOrderRequest
	LastKey string
	Resp    *backend.CreateOrderResponse
	Err     error
}

func (m *MockAPI) CreateOrder(_ context.Context, req backend.CreateOrderRequest, key string) (*backend.CreateOrderResponse, error) {
	m.Calls++
	m.LastReq = req
	m.LastKey = key
	return m.Resp, m.Err
}

func validRequest(method d.PaymentMethod) Request {
	return Request{
		UserID:         "user-1",
		AddressID:      "addr-1",
		Method:         method,
		CouponCode:     " save10",
		IdempotencyKey: "attempt-1",
		CartItemCount:  2,
	}
}

func TestCreate_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"unauthenticated", func(r *Request) { r.UserID = "" }, ErrUnauthenticated},
		{"empty cart", func(r *Request) { r.CartItemCount = 0 }, ErrEmptyCart},
		{"no address", func(r *Request) { r.AddressID = "" }, ErrAddressRequired},
		{"bad method", func(r *Request) { r.Method = "BARTER" }, ErrInvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockAPI{}
			req := validRequest(d.PaymentMethodOnline)
			tt.mutate(&req)

			_, err := NewCreator(api).Create(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, api.Calls)
		})
	}
}

func TestCreate_OnlineReturnsSession(t *testing.T) {
	api := &MockAPI{Resp: &backend.CreateOrderResponse{
		Order:           &d.Order{ID: "ord-1", PaymentStatus: d.PaymentStatusPending},
		ProviderSession: &d.ProviderSession{ID: "sess-1", Amount: 162000},
	}}

	result, err := NewCreator(api).Create(context.Background(), validRequest(d.PaymentMethodOnline))

	require.NoError(t, err)
	assert.Equal(t, "ord-1", result.Order.ID)
	require.NotNil(t, result.Session)
	assert.Equal(t, "sess-1", result.Session.ID)
	assert.Equal(t, "SAVE10", api.LastReq.CouponCode)
	assert.Equal(t, "attempt-1", api.LastKey)
}

func TestCreate_CashOnDeliveryHasNoSession(t *testing.T) {
	api := &MockAPI{Resp: &backend.CreateOrderResponse{
		Order: &d.Order{ID: "ord-2", OrderStatus: d.OrderStatusConfirmed},
	}}

	result, err := NewCreator(api).Create(context.Background(), validRequest(d.PaymentMethodCashOnDelivery))

	require.NoError(t, err)
	assert.Nil(t, result.Session)
	assert.Equal(t, d.PaymentMethodCashOnDelivery, api.LastReq.PaymentMethod)
}

func TestCreate_OnlineWithoutSessionFails(t *testing.T) {
	api := &MockAPI{Resp: &backend.CreateOrderResponse{Order: &d.Order{ID: "ord-3"}}}

	_, err := NewCreator(api).Create(context.Background(), validRequest(d.PaymentMethodOnline))

	assert.ErrorIs(t, err, ErrMissingSession)
	var unpayable *MissingSessionError
	require.ErrorAs(t, err, &unpayable)
	assert.Equal(t, "ord-3", unpayable.OrderID)
}

func TestCreate_BackendRejection(t *testing.T) {
	api := &MockAPI{Err: &backend.APIError{Status: 409, Message: "Only 1 left in stock"}}

	_, err := NewCreator(api).Create(context.Background(), validRequest(d.PaymentMethodOnline))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Only 1 left in stock", rejected.Message)
}

func TestCreate_TransportFailure(t *testing.T) {
	api := &MockAPI{Err: errors.New("timeout")}

	_, err := NewCreator(api).Create(context.Background(), validRequest(d.PaymentMethodOnline))

	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
	assert.ErrorContains(t, err, "failed to create order")
}
