package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// FreeDeliveryThreshold waives the delivery fee at or above this subtotal.
	FreeDeliveryThreshold = decimal.NewFromInt(1000)
	// BaseDeliveryFee applies to areas missing from the fee table.
	BaseDeliveryFee = decimal.NewFromInt(150)
)

type Area struct {
	Name          string          `json:"name"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	EstimatedTime string          `json:"estimated_time"`
}

// KarachiAreas is the serviced-area fee table.
var KarachiAreas = []Area{
	{"DHA Phase 1", decimal.NewFromInt(150), "45-60 min"},
	{"DHA Phase 2", decimal.NewFromInt(150), "45-60 min"},
	{"DHA Phase 4", decimal.NewFromInt(150), "45-60 min"},
	{"DHA Phase 5", decimal.NewFromInt(150), "45-60 min"},
	{"DHA Phase 6", decimal.NewFromInt(150), "45-60 min"},
	{"DHA Phase 7", decimal.NewFromInt(175), "50-70 min"},
	{"DHA Phase 8", decimal.NewFromInt(175), "50-70 min"},
	{"Clifton", decimal.NewFromInt(150), "40-55 min"},
	{"PECHS", decimal.NewFromInt(150), "35-50 min"},
	{"Gulshan-e-Iqbal", decimal.NewFromInt(175), "50-70 min"},
	{"Gulistan-e-Johar", decimal.NewFromInt(175), "55-75 min"},
	{"North Nazimabad", decimal.NewFromInt(200), "60-80 min"},
	{"Nazimabad", decimal.NewFromInt(200), "55-75 min"},
	{"Saddar", decimal.NewFromInt(175), "45-65 min"},
	{"Korangi", decimal.NewFromInt(200), "60-80 min"},
	{"Malir", decimal.NewFromInt(225), "70-90 min"},
	{"Scheme 33", decimal.NewFromInt(200), "55-75 min"},
	{"Bahria Town", decimal.NewFromInt(250), "80-100 min"},
	{"FB Area", decimal.NewFromInt(175), "50-70 min"},
	{"Garden", decimal.NewFromInt(175), "45-65 min"},
}

// AreaFees looks up flat delivery fees by area name, case-insensitively.
type AreaFees map[string]decimal.Decimal

func NewAreaFees(areas []Area) AreaFees {
	m := make(AreaFees, len(areas))
	for _, a := range areas {
		m[areaKey(a.Name)] = a.DeliveryFee
	}
	return m
}

func (f AreaFees) Lookup(area string) (decimal.Decimal, bool) {
	fee, ok := f[areaKey(area)]
	return fee, ok
}

func areaKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
