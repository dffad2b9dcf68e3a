package checkout

import (
	"context"
	"sync"
	"sync/atomic"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/shopspring/decimal"
)

// MockState implements AppState for testing
type MockState struct {
	mu        sync.Mutex
	user      *d.User
	cart      *d.Cart
	Refreshes atomic.Int32
	RefreshFn func(*d.Cart) *d.Cart
}

func newMockState(items ...d.CartItem) *MockState {
	return &MockState{
		user: &d.User{ID: "user-1", Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
		cart: &d.Cart{UserID: "user-1", Items: items},
	}
}

func (m *MockState) User() (d.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return d.User{}, false
	}
	return *m.user, true
}

func (m *MockState) Cart() *d.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart
}

func (m *MockState) RefreshCart(_ context.Context) (*d.Cart, error) {
	m.Refreshes.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefreshFn != nil {
		m.cart = m.RefreshFn(m.cart)
	}
	return m.cart, nil
}

// MockCouponAPI implements coupon.API for testing
type MockCouponAPI struct {
	Result *d.CouponResult
	Err    error
}

func (m *MockCouponAPI) ValidateCoupon(_ context.Context, code string, _ decimal.Decimal) (*d.CouponResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	r := *m.Result
	r.Code = code
	return &r, nil
}

// MockOrderAPI implements order.API for testing. When Gate is set, CreateOrder blocks until it is
// closed.
type MockOrderAPI struct {
	Calls   atomic.Int32
	Gate    chan struct{}
	Entered chan struct{}
	mu      sync.Mutex
	Keys    []string
	LastReq backend.CreateOrderRequest
	Resp    *backend.CreateOrderResponse
	Err     error
}

func (m *MockOrderAPI) CreateOrder(_ context.Context, req backend.CreateOrderRequest, key string) (*backend.CreateOrderResponse, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.LastReq = req
	m.mu.Unlock()
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Gate != nil {
		<-m.Gate
	}
	return m.Resp, m.Err
}

func (m *MockOrderAPI) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Keys...)
}

// MockVerifyAPI implements payment.VerifyAPI for testing
type MockVerifyAPI struct {
	Calls   atomic.Int32
	LastReq backend.VerifyPaymentRequest
	Resp    *backend.VerifyPaymentResponse
	Err     error
}

func (m *MockVerifyAPI) VerifyPayment(_ context.Context, req backend.VerifyPaymentRequest) (*backend.VerifyPaymentResponse, error) {
	m.Calls.Add(1)
	m.LastReq = req
	return m.Resp, m.Err
}

// MockAddressBook implements AddressBook for testing
type MockAddressBook struct {
	List    []d.Address
	Created []d.Address
}

func (m *MockAddressBook) ListAddresses(_ context.Context) ([]d.Address, error) {
	return m.List, nil
}

func (m *MockAddressBook) CreateAddress(_ context.Context, addr d.Address) (*d.Address, error) {
	addr.ID = "addr-new"
	m.Created = append(m.Created, addr)
	m.List = append(m.List, addr)
	return &addr, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
}

func (o *recordingObserver) Observe(_ context.Context, t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) steps() []d.CheckoutStep {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]d.CheckoutStep, 0, len(o.transitions))
	for _, t := range o.transitions {
		out = append(out, t.To)
	}
	return out
}

var _ OrderCreator = (*order.Creator)(nil)
