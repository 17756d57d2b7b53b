package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newCalc(promos ...Promotion) *Calculator {
	c := NewCalculator(NewMemoryPromotionRepo(promos...))
	c.Clock = func() time.Time { return now }
	return c
}

func save10() Promotion {
	return Promotion{
		Code:          "SAVE10",
		DiscountType:  DiscountFixed,
		DiscountValue: dec("100"),
		ValidFrom:     now.Add(-24 * time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestDeliveryFee(t *testing.T) {
	c := newCalc()
	assert.True(t, c.DeliveryFee(dec("600"), "Clifton").Equal(dec("150")))
	assert.True(t, c.DeliveryFee(dec("600"), " bahria town ").Equal(dec("250")))
	assert.True(t, c.DeliveryFee(dec("600"), "Atlantis").Equal(BaseDeliveryFee))

	for _, area := range []string{"Clifton", "Malir", "Atlantis", ""} {
		assert.True(t, c.DeliveryFee(dec("1000"), area).IsZero(), area)
		assert.True(t, c.DeliveryFee(dec("2500.50"), area).IsZero(), area)
	}
}

func TestQuote_NoPromo(t *testing.T) {
	q, err := newCalc().Quote(context.Background(), dec("600"), "Clifton", "")
	require.NoError(t, err)
	assert.True(t, q.DeliveryFee.Equal(dec("150")))
	assert.True(t, q.Discount.IsZero())
	assert.True(t, q.Total.Equal(dec("750")))
}

func TestQuote_FixedPromo(t *testing.T) {
	q, err := newCalc(save10()).Quote(context.Background(), dec("600"), "Clifton", " save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", q.PromoCode)
	assert.True(t, q.Discount.Equal(dec("100")))
	assert.True(t, q.Total.Equal(dec("650")))
}

func TestApplyPromotion_Percentage(t *testing.T) {
	pct := Promotion{
		Code:          "WELCOME20",
		DiscountType:  DiscountPercentage,
		DiscountValue: dec("20"),
		IsActive:      true,
		ValidUntil:    now.Add(time.Hour),
	}
	capped := pct
	capped.Code = "CAPPED"
	capped.MaxDiscountAmount = decimal.NewNullDecimal(dec("50"))

	c := newCalc(pct, capped)
	d, _, err := c.ApplyPromotion(context.Background(), "welcome20", dec("600"))
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("120")))

	d, _, err = c.ApplyPromotion(context.Background(), "CAPPED", dec("600"))
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("50")))
}

func TestApplyPromotion_Invalid(t *testing.T) {
	expired := save10()
	expired.Code = "OLD"
	expired.ValidUntil = now.Add(-time.Minute)

	inactive := save10()
	inactive.Code = "OFF"
	inactive.IsActive = false

	minOrder := save10()
	minOrder.Code = "BIG"
	minOrder.MinOrderAmount = dec("2000")

	c := newCalc(expired, inactive, minOrder)
	for _, code := range []string{"NOPE", "OLD", "OFF", "BIG"} {
		d, applied, err := c.ApplyPromotion(context.Background(), code, dec("600"))
		assert.True(t, errors.Is(err, ErrInvalidPromotion), code)
		assert.True(t, apperr.IsNotFound(err), code)
		assert.True(t, d.IsZero(), code)
		assert.Empty(t, applied)
	}
}

func TestQuote_InvalidCodeKeepsZeroDiscount(t *testing.T) {
	q, err := newCalc().Quote(context.Background(), dec("600"), "Clifton", "NOPE")
	require.Error(t, err)
	assert.True(t, q.Discount.IsZero())
	assert.True(t, q.Total.Equal(dec("750")))
}

func TestQuote_NewCodeReplacesPrevious(t *testing.T) {
	big := save10()
	big.Code = "SAVE200"
	big.DiscountValue = dec("200")
	c := newCalc(save10(), big)

	first, err := c.Quote(context.Background(), dec("600"), "Clifton", "SAVE10")
	require.NoError(t, err)
	second, err := c.Quote(context.Background(), dec("600"), "Clifton", "SAVE200")
	require.NoError(t, err)
	assert.True(t, first.Discount.Equal(dec("100")))
	assert.True(t, second.Discount.Equal(dec("200")))
	assert.True(t, second.Total.Equal(dec("550")))
}

func TestTotal_NeverNegative(t *testing.T) {
	huge := save10()
	huge.Code = "FREE"
	huge.DiscountValue = dec("5000")

	q, err := newCalc(huge).Quote(context.Background(), dec("300"), "Clifton", "FREE")
	require.NoError(t, err)
	assert.True(t, q.Discount.Equal(dec("450")))
	assert.True(t, q.Total.IsZero())

	assert.True(t, Total(dec("10"), dec("0"), dec("-5")).Equal(dec("10")))
}

func TestTotalIdentity(t *testing.T) {
	c := newCalc(save10())
	for _, sub := range []string{"0", "120.5", "600", "999.99", "1000", "4200"} {
		q, err := c.Quote(context.Background(), dec(sub), "Malir", "SAVE10")
		require.NoError(t, err)
		assert.True(t, q.Total.Equal(q.Subtotal.Add(q.DeliveryFee).Sub(q.Discount)), sub)
		assert.False(t, q.Total.IsNegative(), sub)
	}
}
