package domain

// ProviderSession is one payment attempt handle issued by the payment provider.
type ProviderSession struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units (paise)
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
}

func (s ProviderSession) Valid() bool {
	return s.ID != "" && s.Amount > 0
}

// PendingOrder pairs a created order with its still-open provider session. It lives only in the
// checkout controller's memory.
type PendingOrder struct {
	Order   *Order          `json:"order"`
	Session ProviderSession `json:"session"`
}

// PendingOrderFromOrder rebuilds the pair for an order opened from the order-detail page.
func PendingOrderFromOrder(o *Order, currency string) (*PendingOrder, bool) {
	if o == nil || !o.AwaitingOnlinePayment() {
		return nil, false
	}
	session := ProviderSession{
		ID:       o.ProviderSessionID,
		Amount:   ToMinorUnits(o.Total),
		Currency: currency,
	}
	if !session.Valid() {
		return nil, false
	}
	return &PendingOrder{Order: o.Clone(), Session: session}, true
}
