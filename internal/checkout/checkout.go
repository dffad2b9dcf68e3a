// Package checkout drives one browser session through address, payment method, review, order
// creation and payment. Network calls happen outside the controller's lock; every result is applied
// only if the controller is still in the step that started the call.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	msgOrderFailed   = "We couldn't place your order. Please try again."
	msgEmptyCart     = "Your cart is empty."
	msgPaymentFailed = "Payment was not completed. You can retry the payment."
	msgPayFromOrder  = "Your order was placed but payment could not be started. You can complete the payment from the order page."
)

func confirmationPath(orderID string) string { return "/orders/" + orderID + "/confirmation" }
func orderDetailPath(orderID string) string  { return "/orders/" + orderID }

const cartPath = "/cart"

// reasonResumed marks the transition that adopts an unpaid order from the order-detail page.
const reasonResumed = "order resumed from order detail"

// Snapshot is what the browser renders for the current checkout.
type Snapshot struct {
	Step          d.CheckoutStep   `json:"step"`
	Busy          bool             `json:"busy"`
	Address       *d.Address       `json:"address,omitempty"`
	PaymentMethod d.PaymentMethod  `json:"paymentMethod,omitempty"`
	Coupon        *d.CouponResult  `json:"coupon,omitempty"`
	Quote         d.Quote          `json:"quote"`
	ItemCount     int              `json:"itemCount"`
	Pending       *d.PendingOrder  `json:"pendingOrder,omitempty"`
	Payment       *payment.Options `json:"payment,omitempty"`
	Order         *d.Order         `json:"order,omitempty"`
	Message       string           `json:"message,omitempty"`
	Redirect      string           `json:"redirect,omitempty"`
}

type Checkout struct {
	key       string
	state     AppState
	coupons   CouponValidator
	orders    OrderCreator
	addresses AddressBook
	bridge    payment.Bridge
	verifier  PaymentVerifier
	observer  Observer
	currency  string
	now       func() time.Time

	mu             sync.Mutex
	step           d.CheckoutStep
	address        *d.Address
	method         d.PaymentMethod
	coupon         *d.CouponResult
	pending        *d.PendingOrder
	attempt        *payment.Attempt
	completed      *d.Order
	idempotencyKey string
	inFlight       bool
	message        string
	redirect       string
	settled        *signal
	lastSeen       time.Time
	queued         []Transition
	fire           []*signal
}

// signal is closed once an outstanding payment attempt has settled.
type signal struct {
	once sync.Once
	ch   chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) close() {
	s.once.Do(func() { close(s.ch) })
}

func New(key string, state AppState, deps Deps) *Checkout {
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	c := &Checkout{
		key:       key,
		state:     state,
		coupons:   deps.Coupons,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		bridge:    deps.Bridge,
		verifier:  deps.Verifier,
		observer:  observer,
		currency:  deps.Currency,
		now:       time.Now,
		settled:   newSignal(),
	}
	c.mu.Lock()
	c.resetLocked()
	c.unlock(context.Background())
	return c
}

func (c *Checkout) Key() string {
	return c.key
}

// resetLocked starts a fresh checkout attempt with a new idempotency key.
func (c *Checkout) resetLocked() {
	c.step = d.StepAddressSelection
	c.address = nil
	c.method = ""
	c.coupon = nil
	c.pending = nil
	c.attempt = nil
	c.completed = nil
	c.inFlight = false
	c.message = ""
	c.redirect = ""
	c.idempotencyKey = uuid.NewString()
	c.settleLocked()
	c.lastSeen = c.now()
}

// settleLocked releases WaitSettled callers once the lock is dropped and observers have run.
func (c *Checkout) settleLocked() {
	c.fire = append(c.fire, c.settled)
}

// moveLocked changes the step if the state machine allows it.
func (c *Checkout) moveLocked(to d.CheckoutStep, reason string) error {
	if !d.CanTransitionTo(c.step, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.step, to)
	}
	c.jumpLocked(to, reason)
	return nil
}

// jumpLocked changes the step without consulting the state machine. Used when leaving, resetting or
// adopting an order created elsewhere.
func (c *Checkout) jumpLocked(to d.CheckoutStep, reason string) {
	if c.step == to {
		return
	}
	t := Transition{
		CheckoutKey: c.key,
		From:        c.step,
		To:          to,
		Reason:      reason,
		At:          c.now(),
	}
	if user, ok := c.state.User(); ok {
		t.UserID = user.ID
	}
	if c.pending != nil {
		t.OrderID = c.pending.Order.ID
	} else if c.completed != nil {
		t.OrderID = c.completed.ID
	}
	c.step = to
	c.queued = append(c.queued, t)
}

// unlock releases the mutex, reports queued transitions and then fires settled signals.
func (c *Checkout) unlock(ctx context.Context) {
	queued, fire := c.queued, c.fire
	c.queued, c.fire = nil, nil
	c.mu.Unlock()
	for _, t := range queued {
		c.observer.Observe(ctx, t)
	}
	for _, s := range fire {
		s.close()
	}
}

// snapshotLocked builds the read model. A redirect is handed out once; later snapshots in the same
// step render the page instead of navigating away again.
func (c *Checkout) snapshotLocked() Snapshot {
	s := Snapshot{
		Step:          c.step,
		Busy:          c.inFlight || c.step.InFlight(),
		PaymentMethod: c.method,
		Message:       c.message,
		Redirect:      c.redirect,
	}
	c.redirect = ""
	if c.address != nil {
		a := *c.address
		s.Address = &a
	}
	if c.coupon != nil {
		cp := *c.coupon
		s.Coupon = &cp
	}

	subtotal, discount := decimal.Zero, decimal.Zero
	if cart := c.state.Cart(); cart != nil {
		subtotal = cart.Subtotal()
		s.ItemCount = cart.ItemCount()
	}
	if c.coupon != nil {
		discount = c.coupon.Discount
	}
	s.Quote = d.NewQuote(subtotal, discount)

	if c.pending != nil {
		s.Pending = &d.PendingOrder{Order: c.pending.Order.Clone(), Session: c.pending.Session}
	}
	if c.attempt != nil && c.step == d.StepAwaitingPayment {
		opts := c.attempt.Options()
		s.Payment = &opts
	}
	if c.completed != nil {
		s.Order = c.completed.Clone()
	}
	return s
}

func (c *Checkout) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastSeen is the last time the browser touched this checkout.
func (c *Checkout) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Idle is true when nothing is in flight and the checkout can be dropped safely.
func (c *Checkout) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.inFlight && !c.step.InFlight()
}

// Enter refreshes the cart and opens the checkout page. A finished checkout starts over.
func (c *Checkout) Enter(ctx context.Context) (Snapshot, error) {
	if _, ok := c.state.User(); !ok {
		return Snapshot{}, ErrUnauthenticated
	}
	cart, err := c.state.RefreshCart(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("failed to load cart: %w", err)
	}

	c.mu.Lock()
	c.lastSeen = c.now()
	if c.step == d.StepComplete {
		c.jumpLocked(d.StepAddressSelection, "new checkout")
		c.resetLocked()
	}
	// a pending order is still payable even though the cart may already be empty
	if cart.IsEmpty() && c.pending == nil && c.step.IsNavigable() {
		c.redirect = cartPath
		s := c.snapshotLocked()
		c.unlock(ctx)
		return s, ErrEmptyCart
	}
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// Addresses lists the user's saved delivery addresses.
func (c *Checkout) Addresses(ctx context.Context) ([]d.Address, error) {
	return c.addresses.ListAddresses(ctx)
}

// SelectAddress picks one of the user's saved addresses and moves on to the payment method.
func (c *Checkout) SelectAddress(ctx context.Context, addressID string) (Snapshot, error) {
	if addressID == "" {
		return c.Snapshot(), ErrAddressRequired
	}
	c.mu.Lock()
	c.lastSeen = c.now()
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	c.mu.Unlock()

	list, err := c.addresses.ListAddresses(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("failed to load addresses: %w", err)
	}
	var found *d.Address
	for i := range list {
		if list[i].ID == addressID {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return c.Snapshot(), ErrUnknownAddress
	}
	return c.applyAddress(ctx, found)
}

// AddAddress saves a new address and selects it.
func (c *Checkout) AddAddress(ctx context.Context, addr d.Address) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	c.mu.Unlock()

	created, err := c.addresses.CreateAddress(ctx, addr)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("failed to save address: %w", err)
	}
	return c.applyAddress(ctx, created)
}

func (c *Checkout) applyAddress(ctx context.Context, addr *d.Address) (Snapshot, error) {
	c.mu.Lock()
	// the step may have moved while the backend was answering
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	a := *addr
	c.address = &a
	c.message = ""
	if c.step == d.StepAddressSelection {
		_ = c.moveLocked(d.StepPaymentMethodSelection, "address selected")
	}
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// SelectPaymentMethod records the method and moves on to review.
func (c *Checkout) SelectPaymentMethod(ctx context.Context, method d.PaymentMethod) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	if !method.Valid() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrMethodRequired
	}
	if c.address == nil {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrAddressRequired
	}
	c.method = method
	c.message = ""
	if c.step == d.StepPaymentMethodSelection {
		_ = c.moveLocked(d.StepReview, "payment method selected")
	}
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// GoTo navigates between the pre-submit steps.
func (c *Checkout) GoTo(ctx context.Context, step d.CheckoutStep) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	var err error
	switch {
	case !c.step.IsNavigable():
		err = ErrLocked
	case !step.IsNavigable():
		err = fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.step, step)
	case step != d.StepAddressSelection && c.address == nil:
		err = ErrAddressRequired
	case step == d.StepReview && c.method == "":
		err = ErrMethodRequired
	case step != c.step:
		err = c.moveLocked(step, "navigation")
	}
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, err
}

// ApplyCoupon validates a code against the current cart subtotal. A rejected code leaves any
// previously applied coupon untouched.
func (c *Checkout) ApplyCoupon(ctx context.Context, code string) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	subtotal := decimal.Zero
	if cart := c.state.Cart(); cart != nil {
		subtotal = cart.Subtotal()
	}
	c.mu.Unlock()

	result, err := c.coupons.Validate(ctx, code, subtotal)
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if !c.step.IsNavigable() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrLocked
	}
	c.coupon = result
	s := c.snapshotLocked()
	c.mu.Unlock()
	return s, nil
}

func (c *Checkout) RemoveCoupon(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = c.now()
	if !c.step.IsNavigable() {
		return c.snapshotLocked(), ErrLocked
	}
	c.coupon = nil
	return c.snapshotLocked(), nil
}

// Submit creates the order. Only one submission can be in flight; a second call while the first is
// outstanding returns ErrSubmissionInFlight without touching the backend.
func (c *Checkout) Submit(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	if c.inFlight || c.step == d.StepSubmitting {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrSubmissionInFlight
	}
	if c.step != d.StepReview {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, fmt.Errorf("%w: cannot submit from %s", ErrIllegalTransition, c.step)
	}
	if c.address == nil {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrAddressRequired
	}
	if !c.method.Valid() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrMethodRequired
	}
	user, ok := c.state.User()
	if !ok {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrUnauthenticated
	}
	cart := c.state.Cart()
	if cart.IsEmpty() {
		c.message = msgEmptyCart
		s := c.snapshotLocked()
		s.Redirect = cartPath
		c.mu.Unlock()
		return s, ErrEmptyCart
	}

	req := order.Request{
		UserID:         user.ID,
		AddressID:      c.address.ID,
		Method:         c.method,
		IdempotencyKey: c.idempotencyKey,
		CartItemCount:  cart.ItemCount(),
	}
	if c.coupon != nil {
		req.CouponCode = c.coupon.Code
	}
	c.inFlight = true
	c.message = ""
	_ = c.moveLocked(d.StepSubmitting, "order submitted")
	c.unlock(ctx)

	res, err := c.orders.Create(ctx, req)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		_ = c.moveLocked(d.StepReview, "order creation failed")
		var (
			rejected  *order.RejectedError
			unpayable *order.MissingSessionError
		)
		switch {
		case errors.As(err, &rejected):
			c.message = rejected.Message
			// nothing was created, so the next submission is a new request
			c.idempotencyKey = uuid.NewString()
		case errors.Is(err, order.ErrEmptyCart):
			c.message = msgEmptyCart
		case errors.As(err, &unpayable):
			c.message = msgPayFromOrder
			c.redirect = orderDetailPath(unpayable.OrderID)
		default:
			c.message = msgOrderFailed
		}
		logger.Ctx(ctx).Warn().Err(err).Str("checkout", c.key).Msg("order creation failed")
		s := c.snapshotLocked()
		c.unlock(ctx)
		return s, err
	}

	if c.method == d.PaymentMethodCashOnDelivery {
		c.completed = res.Order.Clone()
		c.redirect = confirmationPath(res.Order.ID)
		_ = c.moveLocked(d.StepComplete, "cash on delivery order placed")
		c.settleLocked()
		s := c.snapshotLocked()
		c.unlock(ctx)
		c.refreshCart(ctx)
		return s, nil
	}

	c.pending = &d.PendingOrder{Order: res.Order.Clone(), Session: *res.Session}
	c.startPaymentLocked(ctx, "payment window opened")
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// RetryPayment reopens the provider UI for the same order and session.
func (c *Checkout) RetryPayment(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()
	if c.step != d.StepFailedRetryable || c.pending == nil {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrNotRetryable
	}
	c.startPaymentLocked(ctx, "payment retried")
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// ResumeOrder adopts an order opened from the order-detail page and reopens its payment session.
// Order and session are reused, never recreated.
func (c *Checkout) ResumeOrder(ctx context.Context, o *d.Order) (Snapshot, error) {
	c.mu.Lock()
	c.lastSeen = c.now()

	if c.pending != nil && c.pending.Order.ID == o.ID {
		switch c.step {
		case d.StepFailedRetryable:
			c.startPaymentLocked(ctx, "payment retried from order detail")
			s := c.snapshotLocked()
			c.unlock(ctx)
			return s, nil
		case d.StepAwaitingPayment:
			s := c.snapshotLocked()
			c.mu.Unlock()
			return s, nil
		case d.StepVerifying:
			s := c.snapshotLocked()
			c.mu.Unlock()
			return s, ErrBusy
		case d.StepVerificationFailed:
			s := c.snapshotLocked()
			c.mu.Unlock()
			return s, ErrNotRetryable
		}
	}
	if c.inFlight || c.step.InFlight() {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrBusy
	}

	pending, ok := d.PendingOrderFromOrder(o, c.currency)
	if !ok {
		s := c.snapshotLocked()
		c.mu.Unlock()
		return s, ErrNotRetryable
	}
	from := c.step
	c.resetLocked()
	c.step = from
	c.pending = pending
	// nothing failed in this checkout; the order's own session is reopened directly
	c.message = ""
	c.jumpLocked(d.StepAwaitingPayment, reasonResumed)
	c.openPaymentLocked(ctx)
	s := c.snapshotLocked()
	c.unlock(ctx)
	return s, nil
}

// OrderCancelled drops the pending order if it is the one that was cancelled.
func (c *Checkout) OrderCancelled(ctx context.Context, orderID string) {
	c.mu.Lock()
	if c.pending == nil || c.pending.Order.ID != orderID || c.step == d.StepVerifying {
		c.mu.Unlock()
		return
	}
	if c.attempt != nil {
		c.attempt.Resolve(payment.Failed("order cancelled"))
	}
	c.jumpLocked(d.StepAddressSelection, "order cancelled")
	c.resetLocked()
	c.unlock(ctx)
}

// Leave abandons the checkout. The pending order stays PENDING on the backend and can still be paid
// from the order-detail page.
func (c *Checkout) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight || c.step == d.StepSubmitting || c.step == d.StepVerifying {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.attempt != nil {
		c.attempt.Resolve(payment.Failed("checkout abandoned"))
	}
	c.jumpLocked(d.StepAddressSelection, "checkout left")
	c.resetLocked()
	c.unlock(ctx)
	return nil
}

// WaitSettled blocks until no payment attempt is outstanding.
func (c *Checkout) WaitSettled(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	select {
	case <-settled.ch:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

func (c *Checkout) startPaymentLocked(ctx context.Context, reason string) {
	c.message = ""
	c.redirect = ""
	if err := c.moveLocked(d.StepAwaitingPayment, reason); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("checkout", c.key).Msg("cannot open payment")
		return
	}
	c.openPaymentLocked(ctx)
}

// openPaymentLocked opens the provider window for the pending order's session. The step must
// already be AWAITING_PAYMENT.
func (c *Checkout) openPaymentLocked(ctx context.Context) {
	var prefill payment.Prefill
	if user, ok := c.state.User(); ok {
		prefill = payment.Prefill{Name: user.Name, Email: user.Email, Phone: user.Phone}
	}
	c.settled = newSignal()
	attempt := c.bridge.Open(ctx, c.pending.Session, prefill)
	c.attempt = attempt
	// the request that opened the window returns long before the provider answers
	go c.await(context.WithoutCancel(ctx), attempt)
}

func (c *Checkout) await(ctx context.Context, attempt *payment.Attempt) {
	outcome, err := attempt.Wait(ctx)
	if err != nil {
		outcome = payment.Failed(err.Error())
	}

	c.mu.Lock()
	if c.attempt != attempt {
		c.mu.Unlock()
		return
	}
	orderID := c.pending.Order.ID

	if !outcome.Success {
		c.attempt = nil
		c.message = msgPaymentFailed
		c.redirect = orderDetailPath(orderID)
		_ = c.moveLocked(d.StepFailedRetryable, outcome.Reason)
		c.settleLocked()
		c.unlock(ctx)
		logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", outcome.Reason).Msg("payment not completed")
		return
	}

	c.inFlight = true
	_ = c.moveLocked(d.StepVerifying, "payment returned by provider")
	sessionID := c.pending.Session.ID
	c.unlock(ctx)

	paid, err := c.verifier.Verify(ctx, orderID, sessionID, outcome.Fields)
	if err == nil {
		c.refreshCart(ctx)
	}

	c.mu.Lock()
	c.inFlight = false
	c.attempt = nil
	if err != nil {
		c.message = payment.SupportMessage
		_ = c.moveLocked(d.StepVerificationFailed, err.Error())
		c.settleLocked()
		c.unlock(ctx)
		return
	}
	// the verifier only succeeds with the backend's PAID order
	c.completed = paid.Clone()
	c.redirect = confirmationPath(orderID)
	_ = c.moveLocked(d.StepComplete, "payment verified")
	c.pending = nil
	c.settleLocked()
	c.unlock(ctx)
}

func (c *Checkout) refreshCart(ctx context.Context) {
	if _, err := c.state.RefreshCart(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("checkout", c.key).Msg("failed to refresh cart after order")
	}
}
