package checkout

import (
	"context"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/shopspring/decimal"
)

type AppState interface {
	User() (d.User, bool)
	Cart() *d.Cart
	RefreshCart(ctx context.Context) (*d.Cart, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*d.CouponResult, error)
}

type OrderCreator interface {
	Create(ctx context.Context, req order.Request) (*order.Result, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, orderID, sessionID string, f payment.SignedFields) (*d.Order, error)
}

type AddressBook interface {
	ListAddresses(ctx context.Context) ([]d.Address, error)
	CreateAddress(ctx context.Context, addr d.Address) (*d.Address, error)
}

// Transition is one step change of a checkout, reported to the Observer after it happened.
type Transition struct {
	CheckoutKey string
	UserID      string
	OrderID     string
	From        d.CheckoutStep
	To          d.CheckoutStep
	Reason      string
	At          time.Time
}

// Observer receives transitions. It must not block for long and its failures never reach the user.
type Observer interface {
	Observe(ctx context.Context, t Transition)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Transition) {}

type Deps struct {
	Coupons   CouponValidator
	Orders    OrderCreator
	Addresses AddressBook
	Bridge    payment.Bridge
	Verifier  PaymentVerifier
	Observer  Observer
	Currency  string
}
