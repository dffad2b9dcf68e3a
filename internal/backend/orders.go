package backend

import (
	"context"
	"net/http"
	"net/url"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	AddressID     string          `json:"addressId"`
	PaymentMethod d.PaymentMethod `json:"paymentMethod"`
	CouponCode    string          `json:"couponCode,omitempty"`
}

type CreateOrderResponse struct {
	Order           *d.Order
	ProviderSession *d.ProviderSession
}

// orderDTO accepts the legacy "status" and "shippingCost" names when the canonical
// "orderStatus" and "shippingCharge" fields are absent.
type orderDTO struct {
	d.Order
	ShippingCharge *decimal.Decimal `json:"shippingCharge"`
	ShippingCost   *decimal.Decimal `json:"shippingCost"`
	Status         d.OrderStatus    `json:"status"`
}

func (o *orderDTO) toDomain() *d.Order {
	order := o.Order
	switch {
	case o.ShippingCharge != nil:
		order.ShippingCharge = *o.ShippingCharge
	case o.ShippingCost != nil:
		logger.L().Debug().Str("order_id", order.ID).Msg("order used legacy shippingCost field")
		order.ShippingCharge = *o.ShippingCost
	}
	if order.OrderStatus == "" && o.Status != "" {
		logger.L().Debug().Str("order_id", order.ID).Msg("order used legacy status field")
		order.OrderStatus = o.Status
	}
	return &order
}

type createOrderWire struct {
	Order           *orderDTO          `json:"order"`
	ProviderSession *d.ProviderSession `json:"providerSession"`
}

type orderWire struct {
	Order *orderDTO `json:"order"`
}

// CreateOrder places an order. idempotencyKey identifies the checkout attempt so the backend can
// collapse duplicates.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*CreateOrderResponse, error) {
	var wire createOrderWire
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	if err := c.do(ctx, http.MethodPost, "/orders", req, &wire, headers); err != nil {
		return nil, err
	}
	resp := &CreateOrderResponse{ProviderSession: wire.ProviderSession}
	if wire.Order != nil {
		resp.Order = wire.Order.toDomain()
	}
	return resp, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*d.Order, error) {
	var wire orderWire
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &wire, nil); err != nil {
		return nil, err
	}
	if wire.Order == nil {
		return nil, ErrNotFound
	}
	return wire.Order.toDomain(), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (*d.Order, error) {
	var wire orderWire
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/cancel", nil, &wire, nil); err != nil {
		return nil, err
	}
	if wire.Order == nil {
		return nil, ErrNotFound
	}
	return wire.Order.toDomain(), nil
}
