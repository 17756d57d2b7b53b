package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Address struct {
	ID                   string    `json:"id,omitempty"`
	UserID               string    `json:"user_id,omitempty"`
	Label                string    `json:"label,omitempty"`
	Line1                string    `json:"address_line1"`
	Line2                string    `json:"address_line2,omitempty"`
	Area                 string    `json:"area"`
	City                 string    `json:"city"`
	PostalCode           string    `json:"postal_code,omitempty"`
	DeliveryInstructions string    `json:"delivery_instructions,omitempty"`
	IsPrimary            bool      `json:"is_primary"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
}

// Guest carries the contact fields embedded in an order placed without an
// account. Phone is always in canonical +92 form.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id,omitempty"`
	Guest       *Guest `json:"guest,omitempty"`

	PickupAddressID   string  `json:"pickup_address_id,omitempty"`
	DeliveryAddressID string  `json:"delivery_address_id,omitempty"`
	PickupAddress     Address `json:"pickup_address"`
	DeliveryAddress   Address `json:"delivery_address"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount_amount"`
	Total       decimal.Decimal `json:"total_amount"`
	PromoCode   string          `json:"promo_code,omitempty"`

	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	PreferredPickupAt   *time.Time `json:"preferred_pickup_time,omitempty"`
	PreferredDeliveryAt *time.Time `json:"preferred_delivery_time,omitempty"`
	ActualPickupAt      *time.Time `json:"actual_pickup_time,omitempty"`
	ActualDeliveryAt    *time.Time `json:"actual_delivery_time,omitempty"`

	SpecialInstructions string `json:"special_instructions,omitempty"`
	AssignedDriverID    string `json:"assigned_driver_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o Order) IsGuest() bool { return o.UserID == "" }

// OwnedBy reports whether userID placed the order. Guest orders have no owner.
func (o Order) OwnedBy(userID string) bool { return userID != "" && o.UserID == userID }

// Item is a line snapshot taken at order time; prices never change after.
type Item struct {
	ID          string              `json:"id"`
	OrderID     string              `json:"order_id"`
	ServiceID   string              `json:"service_id"`
	ServiceName string              `json:"service_name"`
	Quantity    int                 `json:"quantity"`
	WeightKg    decimal.NullDecimal `json:"weight_kg"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	TotalPrice  decimal.Decimal     `json:"total_price"`
}

type TrackingEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is an order with its line items and tracking history (newest first).
type Detail struct {
	Order
	Items    []Item          `json:"items"`
	Tracking []TrackingEntry `json:"tracking"`
}

type Filter struct {
	UserID string
	Status Status
	Limit  int
}
