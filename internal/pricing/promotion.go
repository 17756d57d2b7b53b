package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Promotion struct {
	ID                string              `json:"id"`
	Code              string              `json:"code"`
	Description       string              `json:"description,omitempty"`
	DiscountType      DiscountType        `json:"discount_type"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	MinOrderAmount    decimal.Decimal     `json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	UsageLimit        *int                `json:"usage_limit,omitempty"`
	TimesUsed         int                 `json:"times_used"`
	ValidFrom         time.Time           `json:"valid_from"`
	ValidUntil        time.Time           `json:"valid_until"`
	IsActive          bool                `json:"is_active"`
}

// NormalizeCode trims and upper-cases a customer-entered promo code.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Usable reports whether the promotion can be applied at now to subtotal.
// Usage counters are reporting-only and not consulted.
func (p Promotion) Usable(now time.Time, subtotal decimal.Decimal) bool {
	if !p.IsActive {
		return false
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return false
	}
	return !subtotal.LessThan(p.MinOrderAmount)
}

// Discount computes the raw discount for subtotal, clamped to the max
// discount amount when one is configured.
func (p Promotion) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		d = subtotal.Mul(p.DiscountValue).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		d = p.DiscountValue
	default:
		return decimal.Zero
	}
	if p.MaxDiscountAmount.Valid && p.MaxDiscountAmount.Decimal.IsPositive() {
		d = decimal.Min(d, p.MaxDiscountAmount.Decimal)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (Promotion, error)
	IncrementUsage(ctx context.Context, code string) error
}

type PromotionRepo struct{ DB *pgxpool.Pool }

func (r *PromotionRepo) FindByCode(ctx context.Context, code string) (Promotion, error) {
	var p Promotion
	var dtype string
	err := r.DB.QueryRow(ctx, `
		SELECT id, code, COALESCE(description,''), discount_type, discount_value, min_order_amount,
		       max_discount_amount, usage_limit, times_used, valid_from, valid_until, is_active
		FROM promotions WHERE code=$1`, code).
		Scan(&p.ID, &p.Code, &p.Description, &dtype, &p.DiscountValue, &p.MinOrderAmount,
			&p.MaxDiscountAmount, &p.UsageLimit, &p.TimesUsed, &p.ValidFrom, &p.ValidUntil, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Promotion{}, apperr.NotFound("promotion", code)
	}
	p.DiscountType = DiscountType(dtype)
	return p, err
}

func (r *PromotionRepo) IncrementUsage(ctx context.Context, code string) error {
	_, err := r.DB.Exec(ctx, `UPDATE promotions SET times_used = times_used + 1 WHERE code=$1`, code)
	return err
}

type MemoryPromotionRepo struct {
	mu sync.Mutex
	m  map[string]Promotion
}

func NewMemoryPromotionRepo(promos ...Promotion) *MemoryPromotionRepo {
	r := &MemoryPromotionRepo{m: make(map[string]Promotion)}
	for _, p := range promos {
		r.m[NormalizeCode(p.Code)] = p
	}
	return r
}

func (r *MemoryPromotionRepo) FindByCode(_ context.Context, code string) (Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[code]
	if !ok {
		return Promotion{}, apperr.NotFound("promotion", code)
	}
	return p, nil
}

func (r *MemoryPromotionRepo) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[code]
	if !ok {
		return apperr.NotFound("promotion", code)
	}
	p.TimesUsed++
	r.m[code] = p
	return nil
}
