package backend

import (
	"context"
	"net/http"

	d "github.com/fjod/helmet-storefront/domain"
)

type addressesWire struct {
	Addresses []d.Address `json:"addresses"`
}

type addressWire struct {
	Address *d.Address `json:"address"`
}

func (c *Client) ListAddresses(ctx context.Context) ([]d.Address, error) {
	var wire addressesWire
	if err := c.do(ctx, http.MethodGet, "/addresses", nil, &wire, nil); err != nil {
		return nil, err
	}
	return wire.Addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, addr d.Address) (*d.Address, error) {
	var wire addressWire
	if err := c.do(ctx, http.MethodPost, "/addresses", addr, &wire, nil); err != nil {
		return nil, err
	}
	if wire.Address == nil {
		return nil, ErrNotFound
	}
	return wire.Address, nil
}
