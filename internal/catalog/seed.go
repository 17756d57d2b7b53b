package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

func perKg(price int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(price))
}

// Starter is the launch price list loaded into an empty catalog.
var Starter = []Service{
	{ID: "wash-fold", Name: "Wash & Fold", Description: "Everyday laundry washed, dried and folded", Category: CategoryWash, BasePrice: decimal.NewFromInt(120), PricePerKg: perKg(120), PriceType: PerKg, TurnaroundHours: 48, IsActive: true},
	{ID: "dry-cleaning", Name: "Dry Cleaning", Description: "Suits, formal wear and delicate fabrics", Category: CategoryDryClean, BasePrice: decimal.NewFromInt(250), PriceType: PerPiece, TurnaroundHours: 72, IsActive: true},
	{ID: "ironing", Name: "Ironing Only", Description: "Pressed and hung, ready to wear", Category: CategoryIron, BasePrice: decimal.NewFromInt(80), PriceType: PerPiece, TurnaroundHours: 24, IsActive: true},
	{ID: "premium-laundry", Name: "Premium Laundry", Description: "Hand wash and eco detergents", Category: CategoryPremium, BasePrice: decimal.NewFromInt(350), PricePerKg: perKg(350), PriceType: PerKg, TurnaroundHours: 48, IsActive: true},
}

// Seed writes Starter into repo when it has no active services. It returns
// the number of services written.
func Seed(ctx context.Context, repo Repository, now time.Time) (int, error) {
	active, err := repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(active) > 0 {
		return 0, nil
	}
	for _, s := range Starter {
		s.CreatedAt, s.UpdatedAt = now, now
		if err := repo.Upsert(ctx, &s); err != nil {
			return 0, err
		}
	}
	return len(Starter), nil
}
