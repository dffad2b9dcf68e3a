package backend

import (
	"context"
	"net/http"

	d "github.com/fjod/helmet-storefront/domain"
)

type VerifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	ProviderSignature string `json:"providerSignature"`
	OrderID           string `json:"orderId"`
}

type VerifyPaymentResponse struct {
	Success bool
	Message string
	Order   *d.Order
}

type verifyPaymentWire struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Order   *orderDTO `json:"order"`
}

func (c *Client) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	var wire verifyPaymentWire
	if err := c.do(ctx, http.MethodPost, "/payments/verify", req, &wire, nil); err != nil {
		return nil, err
	}
	resp := &VerifyPaymentResponse{Success: wire.Success, Message: wire.Message}
	if wire.Order != nil {
		resp.Order = wire.Order.toDomain()
	}
	return resp, nil
}
