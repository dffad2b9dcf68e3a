package domain

type CheckoutStep string

const (
	StepAddressSelection       CheckoutStep = "ADDRESS_SELECTION"
	StepPaymentMethodSelection CheckoutStep = "PAYMENT_METHOD_SELECTION"
	StepReview                 CheckoutStep = "REVIEW"
	StepSubmitting             CheckoutStep = "SUBMITTING"
	StepAwaitingPayment        CheckoutStep = "AWAITING_PAYMENT"
	StepVerifying              CheckoutStep = "VERIFYING"
	StepComplete               CheckoutStep = "COMPLETE"
	StepFailedRetryable        CheckoutStep = "FAILED_RETRYABLE"
	StepVerificationFailed     CheckoutStep = "VERIFICATION_FAILED"
)

// IsTerminal is true for steps the flow never leaves on its own.
func (s CheckoutStep) IsTerminal() bool {
	return s == StepComplete || s == StepVerificationFailed
}

// IsNavigable is true for the pre-submit steps the customer moves between freely.
func (s CheckoutStep) IsNavigable() bool {
	return s == StepAddressSelection || s == StepPaymentMethodSelection || s == StepReview
}

// InFlight is true while the controller waits on the payment provider or the backend.
func (s CheckoutStep) InFlight() bool {
	return s == StepSubmitting || s == StepAwaitingPayment || s == StepVerifying
}

func (s CheckoutStep) String() string {
	return string(s)
}

var transitions = map[CheckoutStep][]CheckoutStep{
	StepAddressSelection:       {StepPaymentMethodSelection, StepReview},
	StepPaymentMethodSelection: {StepAddressSelection, StepReview},
	StepReview:                 {StepAddressSelection, StepPaymentMethodSelection, StepSubmitting},
	StepSubmitting:             {StepReview, StepAwaitingPayment, StepComplete},
	StepAwaitingPayment:        {StepVerifying, StepFailedRetryable},
	StepVerifying:              {StepComplete, StepVerificationFailed},
	StepFailedRetryable:        {StepAwaitingPayment},
}

// CanTransitionTo reports whether the checkout may move from one step to another.
// Leaving checkout altogether is handled separately by the controller.
func CanTransitionTo(from, to CheckoutStep) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
