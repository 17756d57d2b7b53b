// Package pricing derives delivery fees, promotion discounts and order totals.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

// ErrInvalidPromotion is returned for unknown, inactive, expired or
// ineligible promo codes. It is a NotFound-kind error.
var ErrInvalidPromotion = &apperr.NotFoundError{What: "promotion code"}

type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount_amount"`
	Total       decimal.Decimal `json:"total_amount"`
	PromoCode   string          `json:"promo_code,omitempty"`
}

type Calculator struct {
	Areas      AreaFees
	Promotions PromotionRepository
	Clock      func() time.Time
}

func NewCalculator(promos PromotionRepository) *Calculator {
	return &Calculator{
		Areas:      NewAreaFees(KarachiAreas),
		Promotions: promos,
		Clock:      time.Now,
	}
}

// DeliveryFee is zero at or above the free-delivery threshold, the area's
// flat fee otherwise, falling back to the base fee for unknown areas.
func (c *Calculator) DeliveryFee(subtotal decimal.Decimal, area string) decimal.Decimal {
	if !subtotal.LessThan(FreeDeliveryThreshold) {
		return decimal.Zero
	}
	if fee, ok := c.Areas.Lookup(area); ok {
		return fee
	}
	return BaseDeliveryFee
}

// ApplyPromotion resolves code and returns the discount it grants on
// subtotal. An empty code yields zero and no error.
func (c *Calculator) ApplyPromotion(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, string, error) {
	code = NormalizeCode(code)
	if code == "" {
		return decimal.Zero, "", nil
	}
	if c.Promotions == nil {
		return decimal.Zero, "", ErrInvalidPromotion
	}
	p, err := c.Promotions.FindByCode(ctx, code)
	if apperr.IsNotFound(err) {
		return decimal.Zero, "", ErrInvalidPromotion
	}
	if err != nil {
		return decimal.Zero, "", apperr.Downstream("find promotion", err)
	}
	if !p.Usable(c.now(), subtotal) {
		return decimal.Zero, "", ErrInvalidPromotion
	}
	return p.Discount(subtotal), code, nil
}

// Total is subtotal + fee - discount with the discount clamped so the
// result never goes below zero.
func Total(subtotal, fee, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Add(fee).Sub(ClampDiscount(subtotal, fee, discount))
}

func ClampDiscount(subtotal, fee, discount decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount, subtotal.Add(fee))
}

// Quote prices a subtotal for an area with an optional promo code. Each
// call stands alone, so a new code replaces rather than stacks.
func (c *Calculator) Quote(ctx context.Context, subtotal decimal.Decimal, area, code string) (Quote, error) {
	fee := c.DeliveryFee(subtotal, area)
	discount, applied, err := c.ApplyPromotion(ctx, code, subtotal)
	if err != nil {
		return Quote{Subtotal: subtotal, DeliveryFee: fee, Discount: decimal.Zero, Total: Total(subtotal, fee, decimal.Zero)}, err
	}
	discount = ClampDiscount(subtotal, fee, discount)
	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Discount:    discount,
		Total:       Total(subtotal, fee, discount),
		PromoCode:   applied,
	}, nil
}

func (c *Calculator) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock().UTC()
}
