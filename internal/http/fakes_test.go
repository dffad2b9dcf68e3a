package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/appstate"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/fjod/helmet-storefront/internal/coupon"
	"github.com/fjod/helmet-storefront/internal/journal"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeBackend emulates the shop backend's REST API.
type fakeBackend struct {
	mu          sync.Mutex
	cart        []d.CartItem
	orders      map[string]*d.Order
	createCalls int
	keys        []string
	verifyCalls int
	auth        []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cart:   []d.CartItem{{ProductID: "helmet-1", Name: "Full Face Helmet", Quantity: 1, UnitPrice: decimal.NewFromInt(1500)}},
		orders: make(map[string]*d.Order),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.auth = append(f.auth, r.Header.Get("Authorization"))
			f.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"cart": d.Cart{UserID: "user-1", Items: f.cart}})
	})
	r.Post("/cart/items", func(w http.ResponseWriter, r *http.Request) {
		var req backend.AddCartItemRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cart = append(f.cart, d.CartItem{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: decimal.NewFromInt(500)})
		writeJSON(w, http.StatusOK, map[string]any{"cart": d.Cart{Items: f.cart}})
	})
	r.Delete("/cart/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		kept := []d.CartItem{}
		for _, it := range f.cart {
			if it.ProductID != chi.URLParam(r, "id") {
				kept = append(kept, it)
			}
		}
		f.cart = kept
		writeJSON(w, http.StatusOK, map[string]any{"cart": d.Cart{Items: f.cart}})
	})

	r.Get("/addresses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"addresses": []d.Address{{ID: "addr-1", FullName: "Asha", City: "Pune"}}})
	})
	r.Post("/addresses", func(w http.ResponseWriter, r *http.Request) {
		var a d.Address
		_ = json.NewDecoder(r.Body).Decode(&a)
		a.ID = "addr-2"
		writeJSON(w, http.StatusCreated, map[string]any{"address": a})
	})

	r.Post("/coupons/validate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Code != "SAVE10" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid coupon code"})
			return
		}
		writeJSON(w, http.StatusOK, d.CouponResult{
			Code:          "SAVE10",
			Discount:      decimal.NewFromInt(150),
			DiscountType:  d.DiscountTypePercentage,
			DiscountValue: decimal.NewFromInt(10),
		})
	})

	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req backend.CreateOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.createCalls++
		f.keys = append(f.keys, r.Header.Get("Idempotency-Key"))

		id := fmt.Sprintf("ord-%d", f.createCalls)
		o := &d.Order{
			ID:            id,
			UserID:        "user-1",
			Total:         decimal.NewFromInt(1620),
			OrderStatus:   d.OrderStatusPending,
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: d.PaymentStatusPending,
			CouponCode:    req.CouponCode,
		}
		resp := map[string]any{}
		if req.PaymentMethod == d.PaymentMethodOnline {
			o.ProviderSessionID = "sess-" + id
			resp["providerSession"] = d.ProviderSession{ID: o.ProviderSessionID, Amount: 162000, Currency: "INR"}
		} else {
			o.OrderStatus = d.OrderStatusConfirmed
			f.cart = nil
		}
		f.orders[id] = o
		resp["order"] = o
		writeJSON(w, http.StatusCreated, resp)
	})
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o, ok := f.orders[chi.URLParam(r, "id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": o})
	})
	r.Post("/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o, ok := f.orders[chi.URLParam(r, "id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
			return
		}
		o.OrderStatus = d.OrderStatusCancelled
		writeJSON(w, http.StatusOK, map[string]any{"order": o})
	})

	r.Post("/payments/verify", func(w http.ResponseWriter, r *http.Request) {
		var req backend.VerifyPaymentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.verifyCalls++
		if req.ProviderSignature != "good-signature" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "signature mismatch"})
			return
		}
		o := f.orders[req.OrderID]
		o.PaymentStatus = d.PaymentStatusPaid
		o.OrderStatus = d.OrderStatusConfirmed
		f.cart = nil
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
	})
	return r
}

// MockHistory is an in-memory journal: the recorder appends to it and the orders handler reads it.
type MockHistory struct {
	mu     sync.Mutex
	Events []*journal.Event
}

func (m *MockHistory) AppendEvent(_ context.Context, e *journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockHistory) GetOrderEvents(_ context.Context, orderID string) ([]*journal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*journal.Event
	for _, e := range m.Events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type testApp struct {
	backend  *fakeBackend
	bridge   *payment.HostedBridge
	registry *checkout.Registry
	history  *MockHistory
	handler  http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	fb := newFakeBackend()
	srv := httptest.NewServer(fb.routes())
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL, 5*time.Second)
	carts := appstate.NewCartStore(client, appstate.NopCache{})
	bridge := payment.NewHostedBridge("rzp_test_key", time.Minute)
	history := &MockHistory{}
	timeout := 5 * time.Second
	registry := checkout.NewRegistry(carts, checkout.Deps{
		Coupons:   coupon.NewValidator(client),
		Orders:    order.NewCreator(client),
		Addresses: client,
		Bridge:    bridge,
		Verifier:  payment.NewVerifier(client),
		Observer:  journal.NewRecorder(history, time.Second),
		Currency:  "INR",
	})

	return &testApp{
		backend:  fb,
		bridge:   bridge,
		registry: registry,
		history:  history,
		handler: NewRouter(RouterConfig{
			ServiceName:    "storefront-test",
			RequestTimeout: 10 * time.Second,
			Auth:           NewAuthenticator(testSecret, "/login"),
			Limiter:        NewCouponLimiter(3),
			Checkout:       NewCheckoutHandler(registry, bridge, timeout),
			Orders:         NewOrdersHandler(client, history, registry, timeout),
			Cart:           NewCartHandler(carts, timeout),
		}),
	}
}

func signToken(t *testing.T, sub, sid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name:      "Asha",
		Email:     "asha@example.com",
		Phone:     "9999999999",
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

// call sends a request through the router and decodes the JSON response into out when given.
func (a *testApp) call(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}
