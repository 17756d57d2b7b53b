// Package cart aggregates the services a browsing session has selected and
// prices them. A Cart has a single owner and is not safe for concurrent use.
package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
)

// MinWeightKg is the smallest billable weight for a weight-priced line.
var MinWeightKg = decimal.RequireFromString("0.5")

type Item struct {
	Service  catalog.Service     `json:"service"`
	Quantity int                 `json:"quantity"`
	Weight   decimal.NullDecimal `json:"weight"`
}

type Cart struct {
	SessionID string    `json:"session_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Items: []Item{}}
}

func ValidateWeight(w decimal.Decimal) error {
	if w.LessThan(MinWeightKg) {
		return apperr.Validation("weight", "weight must be at least 0.5 kg")
	}
	return nil
}

// Add merges into an existing line for the same service (quantities are
// summed, weight overwritten when supplied) or appends a new line.
func (c *Cart) Add(svc catalog.Service, qty int, weight *decimal.Decimal) error {
	if qty < 1 {
		return apperr.Validation("quantity", "quantity must be at least 1")
	}
	if weight != nil {
		if err := ValidateWeight(*weight); err != nil {
			return err
		}
	}
	defer c.touch()

	if i := c.index(svc.ID); i >= 0 {
		c.Items[i].Quantity += qty
		if weight != nil {
			c.Items[i].Weight = decimal.NewNullDecimal(*weight)
		}
		return nil
	}
	it := Item{Service: svc, Quantity: qty}
	if weight != nil {
		it.Weight = decimal.NewNullDecimal(*weight)
	}
	c.Items = append(c.Items, it)
	return nil
}

func (c *Cart) Remove(serviceID string) {
	if i := c.index(serviceID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		c.touch()
	}
}

// SetQuantity replaces a line's quantity; qty <= 0 removes the line.
func (c *Cart) SetQuantity(serviceID string, qty int) error {
	if qty <= 0 {
		c.Remove(serviceID)
		return nil
	}
	i := c.index(serviceID)
	if i < 0 {
		return apperr.NotFound("cart item", serviceID)
	}
	c.Items[i].Quantity = qty
	c.touch()
	return nil
}

func (c *Cart) SetWeight(serviceID string, weight decimal.Decimal) error {
	if err := ValidateWeight(weight); err != nil {
		return err
	}
	i := c.index(serviceID)
	if i < 0 {
		return apperr.NotFound("cart item", serviceID)
	}
	c.Items[i].Weight = decimal.NewNullDecimal(weight)
	c.touch()
	return nil
}

func (c *Cart) Clear() {
	c.Items = []Item{}
	c.touch()
}

// Count is the total number of units across lines.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

// Subtotal is the sum of ItemPrice over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(ItemPrice(it))
	}
	return total
}

// ItemPrice prices one line: unit_weight_price × weight × quantity for a
// weight-priced service with a weight, unit_piece_price × quantity otherwise.
func ItemPrice(it Item) decimal.Decimal {
	return UnitPrice(it).Mul(billedUnits(it))
}

// UnitPrice is the price snapshotted into an order item for this line.
func UnitPrice(it Item) decimal.Decimal {
	if it.Service.WeightPriced() && it.Weight.Valid {
		return it.Service.UnitPrice()
	}
	return it.Service.PiecePrice()
}

func billedUnits(it Item) decimal.Decimal {
	q := decimal.NewFromInt(int64(it.Quantity))
	if it.Service.WeightPriced() && it.Weight.Valid {
		return it.Weight.Decimal.Mul(q)
	}
	return q
}

func (c *Cart) index(serviceID string) int {
	for i, it := range c.Items {
		if it.Service.ID == serviceID {
			return i
		}
	}
	return -1
}

func (c *Cart) touch() { c.UpdatedAt = time.Now().UTC() }
