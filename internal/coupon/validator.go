// Package coupon checks a coupon code against the current subtotal. The check is read-only: usage
// is only consumed by the backend when an order is placed with the code.
package coupon

import (
	"context"
	"errors"
	"fmt"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

var ErrEmptyCode = errors.New("coupon code is required")

// RejectedError carries the backend's message for an invalid, expired, exhausted or
// below-minimum code.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Message)
}

type API interface {
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*d.CouponResult, error)
}

type Validator struct {
	api API
}

func NewValidator(api API) *Validator {
	return &Validator{api: api}
}

func (v *Validator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*d.CouponResult, error) {
	normalized := d.NormalizeCouponCode(code)
	if normalized == "" {
		return nil, ErrEmptyCode
	}

	result, err := v.api.ValidateCoupon(ctx, normalized, subtotal)
	if err != nil {
		if backend.IsRejection(err) {
			return nil, &RejectedError{Code: normalized, Message: backend.Message(err, "Invalid coupon code")}
		}
		return nil, fmt.Errorf("failed to validate coupon: %w", err)
	}

	if result.Code == "" {
		result.Code = normalized
	}
	if result.Discount.IsNegative() {
		return nil, fmt.Errorf("backend returned negative discount %s for %s", result.Discount, normalized)
	}
	logger.Ctx(ctx).Debug().Str("coupon", normalized).Str("discount", result.Discount.String()).Msg("coupon validated")
	return result, nil
}
