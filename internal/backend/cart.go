package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
)

type cartWire struct {
	Cart *d.Cart `json:"cart"`
}

type AddCartItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

func (w cartWire) toDomain() *d.Cart {
	cart := w.Cart
	if cart == nil {
		cart = &d.Cart{}
	}
	cart.FetchedAt = time.Now()
	return cart
}

func (c *Client) GetCart(ctx context.Context) (*d.Cart, error) {
	var wire cartWire
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &wire, nil); err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}

func (c *Client) AddCartItem(ctx context.Context, req AddCartItemRequest) (*d.Cart, error) {
	var wire cartWire
	if err := c.do(ctx, http.MethodPost, "/cart/items", req, &wire, nil); err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}

func (c *Client) RemoveCartItem(ctx context.Context, productID string) (*d.Cart, error) {
	var wire cartWire
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, &wire, nil); err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}
