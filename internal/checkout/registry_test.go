package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/appstate"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/internal/coupon"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCartAPI implements appstate.CartAPI for testing
type MockCartAPI struct {
	Calls atomic.Int32
}

func (m *MockCartAPI) GetCart(_ context.Context) (*d.Cart, error) {
	m.Calls.Add(1)
	return &d.Cart{Items: []d.CartItem{helmet(1500)}}, nil
}

func (m *MockCartAPI) AddCartItem(_ context.Context, _ backend.AddCartItemRequest) (*d.Cart, error) {
	return &d.Cart{}, nil
}

func (m *MockCartAPI) RemoveCartItem(_ context.Context, _ string) (*d.Cart, error) {
	return &d.Cart{}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *MockCartAPI, *MockOrderAPI) {
	t.Helper()
	carts := &MockCartAPI{}
	orders := &MockOrderAPI{Resp: &backend.CreateOrderResponse{
		Order:           onlineOrder(),
		ProviderSession: &d.ProviderSession{ID: "sess-1", Amount: 162000, Currency: "INR"},
	}}
	r := NewRegistry(appstate.NewCartStore(carts, appstate.NopCache{}), Deps{
		Coupons:   coupon.NewValidator(&MockCouponAPI{}),
		Orders:    order.NewCreator(orders),
		Addresses: &MockAddressBook{List: []d.Address{{ID: "addr-1"}}},
		Bridge:    payment.NewHostedBridge("rzp_test_key", time.Minute),
		Verifier:  payment.NewVerifier(&MockVerifyAPI{}),
		Currency:  "INR",
	})
	return r, carts, orders
}

var asha = d.User{ID: "user-1", Name: "Asha"}

func TestRegistry_GetReturnsSameCheckout(t *testing.T) {
	r, carts, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Checkout, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			co, err := r.Get(ctx, "sid-1", asha)
			assert.NoError(t, err)
			got[i] = co
		}(i)
	}
	wg.Wait()

	for _, co := range got {
		assert.Same(t, got[0], co)
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), carts.Calls.Load())

	other, err := r.Get(ctx, "sid-2", asha)
	require.NoError(t, err)
	assert.NotSame(t, got[0], other)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_NewAccountOnSameSessionStartsFresh(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Get(ctx, "sid-1", asha)
	require.NoError(t, err)
	second, err := r.Get(ctx, "sid-1", d.User{ID: "user-2"})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SweepKeepsCheckoutsAwaitingPayment(t *testing.T) {
	r, _, orders := newTestRegistry(t)
	ctx := context.Background()

	idle, err := r.Get(ctx, "sid-idle", asha)
	require.NoError(t, err)
	_, err = idle.Enter(ctx)
	require.NoError(t, err)

	paying, err := r.Get(ctx, "sid-paying", asha)
	require.NoError(t, err)
	_, err = paying.Enter(ctx)
	require.NoError(t, err)
	_, err = paying.SelectAddress(ctx, "addr-1")
	require.NoError(t, err)
	_, err = paying.SelectPaymentMethod(ctx, d.PaymentMethodOnline)
	require.NoError(t, err)
	s, err := paying.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, d.StepAwaitingPayment, s.Step)
	require.Equal(t, int32(1), orders.Calls.Load())

	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	removed := r.Sweep(ctx, 30*time.Minute)

	assert.Equal(t, 1, removed)
	_, ok := r.Lookup("sid-idle")
	assert.False(t, ok)
	_, ok = r.Lookup("sid-paying")
	assert.True(t, ok)
}

func TestRegistry_Remove(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "sid-1", asha)
	require.NoError(t, err)
	r.Remove(ctx, "sid-1")

	_, ok := r.Lookup("sid-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}
