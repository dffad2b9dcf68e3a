package checkout

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrUnauthenticated    = errors.New("checkout requires a signed-in user")
	ErrLocked             = errors.New("checkout can no longer be changed once the order is being placed")
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	ErrBusy               = errors.New("checkout is waiting on the payment provider or the backend")
	ErrAddressRequired    = errors.New("a delivery address must be selected")
	ErrUnknownAddress     = errors.New("address does not belong to this account")
	ErrMethodRequired     = errors.New("a payment method must be selected")
	ErrIllegalTransition  = errors.New("illegal transition of checkout step")
	ErrNotRetryable       = errors.New("no payment to retry for this checkout")
)
