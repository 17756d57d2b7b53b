package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

type PriceType string

const (
	PerPiece PriceType = "per_piece"
	PerKg    PriceType = "per_kg"
)

type Category string

const (
	CategoryWash     Category = "wash"
	CategoryDryClean Category = "dry_clean"
	CategoryIron     Category = "iron"
	CategoryPremium  Category = "premium"
)

// Service is a laundry service customers can put in a cart.
type Service struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Category        Category            `json:"category"`
	BasePrice       decimal.Decimal     `json:"base_price"`
	PricePerKg      decimal.NullDecimal `json:"price_per_kg"`
	PricePerUnit    decimal.NullDecimal `json:"price_per_unit"`
	PriceType       PriceType           `json:"price_type"`
	TurnaroundHours int                 `json:"turnaround_hours"`
	IsActive        bool                `json:"is_active"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// WeightPriced reports whether the service bills per kilogram.
func (s Service) WeightPriced() bool { return s.PriceType == PerKg }

// PiecePrice is the per-unit price: price_per_unit when set, base_price otherwise.
func (s Service) PiecePrice() decimal.Decimal {
	if s.PricePerUnit.Valid {
		return s.PricePerUnit.Decimal
	}
	return s.BasePrice
}

// UnitPrice is the effective price selected by PriceType.
func (s Service) UnitPrice() decimal.Decimal {
	if s.WeightPriced() && s.PricePerKg.Valid {
		return s.PricePerKg.Decimal
	}
	return s.PiecePrice()
}

// Validate checks an admin-supplied service before it is stored.
func (s Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperr.Validation("name", "name is required")
	}
	switch s.PriceType {
	case PerPiece, PerKg:
	default:
		return apperr.Validation("price_type", "must be per_piece or per_kg")
	}
	if s.BasePrice.IsNegative() {
		return apperr.Validation("base_price", "must not be negative")
	}
	if s.PriceType == PerKg && !s.PricePerKg.Valid && s.BasePrice.IsZero() {
		return apperr.Validation("price_per_kg", "weight-priced service needs a price")
	}
	if s.PricePerKg.Valid && s.PricePerKg.Decimal.IsNegative() {
		return apperr.Validation("price_per_kg", "must not be negative")
	}
	if s.PricePerUnit.Valid && s.PricePerUnit.Decimal.IsNegative() {
		return apperr.Validation("price_per_unit", "must not be negative")
	}
	if s.TurnaroundHours < 0 {
		return apperr.Validation("turnaround_hours", "must not be negative")
	}
	return nil
}
