package backend

import (
	"context"
	"net/http"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/shopspring/decimal"
)

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (c *Client) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*d.CouponResult, error) {
	var result d.CouponResult
	req := validateCouponRequest{Code: code, Subtotal: subtotal}
	if err := c.do(ctx, http.MethodPost, "/coupons/validate", req, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}
