package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
)

var now = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func services() []catalog.Service {
	return []catalog.Service{
		{ID: "wash-fold", Name: "Wash & Fold", BasePrice: dec("200"), PricePerKg: decimal.NewNullDecimal(dec("200")), PriceType: catalog.PerKg, IsActive: true},
		{ID: "shirt-iron", Name: "Shirt Ironing", BasePrice: dec("50"), PriceType: catalog.PerPiece, IsActive: true},
		{ID: "suit", Name: "Suit Dry Clean", BasePrice: dec("900"), PriceType: catalog.PerPiece, IsActive: false},
	}
}

// failingStore fails InsertItems after the header was written.
type failingStore struct {
	*orders.MemoryStore
	itemsErr error
	deleted  []string
}

func (s *failingStore) InsertItems(ctx context.Context, orderID string, items []orders.Item) error {
	if s.itemsErr != nil {
		return s.itemsErr
	}
	return s.MemoryStore.InsertItems(ctx, orderID, items)
}

func (s *failingStore) DeleteOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.deleted = append(s.deleted, orderID)
	return s.MemoryStore.DeleteOrder(ctx, orderID)
}

type fixture struct {
	store     *failingStore
	addresses *orders.MemoryAddressRepo
	promos    *pricing.MemoryPromotionRepo
	notes     *notify.Recorder
	carts     *cart.MemoryStore
	asm       *Assembler
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &failingStore{MemoryStore: orders.NewMemoryStore()},
		addresses: orders.NewMemoryAddressRepo(
			orders.Address{ID: "addr-1", UserID: "u1", Line1: "House 12, Street 4", Area: "Clifton", City: "Karachi", IsPrimary: true},
			orders.Address{ID: "addr-2", UserID: "u1", Line1: "Office 3", Area: "Malir", City: "Karachi"},
			orders.Address{ID: "addr-x", UserID: "u2", Line1: "Elsewhere", Area: "Saddar", City: "Karachi"},
		),
		promos: pricing.NewMemoryPromotionRepo(pricing.Promotion{
			Code: "SAVE10", DiscountType: pricing.DiscountFixed, DiscountValue: dec("100"), IsActive: true,
		}),
		notes: &notify.Recorder{},
		carts: cart.NewMemoryStore(),
	}
	calc := pricing.NewCalculator(f.promos)
	calc.Clock = func() time.Time { return now }
	f.asm = &Assembler{
		Catalog:   catalog.NewMemoryRepo(services()...),
		Addresses: f.addresses,
		Orders:    f.store,
		Pricing:   calc,
		Notifier:  f.notes,
		Clock:     func() time.Time { return now },
	}
	lc := orders.NewLifecycle(f.store, f.notes, nil)
	lc.Clock = func() time.Time { return now }
	proc := payments.NewProcessor(f.store, lc, nil,
		payments.CashSettler{},
		payments.NewStripeSettler("", "", nil),
	)
	f.svc = &Service{Assembler: f.asm, Payments: proc, Carts: f.carts}
	return f
}

func shirts(n int) []LineRequest {
	return []LineRequest{{ServiceID: "shirt-iron", Quantity: n}}
}

func registered(items ...LineRequest) PlaceOrder {
	return PlaceOrder{UserID: "u1", Items: items, PickupAddressID: "addr-1"}
}

func TestAssemble_Registered(t *testing.T) {
	f := newFixture(t)
	w := dec("3")
	req := registered(
		LineRequest{ServiceID: "wash-fold", Quantity: 1, WeightKg: &w},
		LineRequest{ServiceID: "shirt-iron", Quantity: 4},
	)
	req.SpecialInstructions = "<b>Fold</b> neatly"

	d, err := f.asm.Assemble(context.Background(), req)
	require.NoError(t, err)

	o := d.Order
	assert.True(t, o.Subtotal.Equal(dec("800")), o.Subtotal.String())
	assert.True(t, o.DeliveryFee.Equal(dec("150")))
	assert.True(t, o.Total.Equal(dec("950")))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, orders.MethodCash, o.PaymentMethod)
	assert.Equal(t, "addr-1", o.DeliveryAddressID, "delivery defaults to pickup")
	assert.Equal(t, "Fold neatly", o.SpecialInstructions)
	assert.Regexp(t, `^WK[0-9A-Z]{26}$`, o.OrderNumber)

	all, err := f.store.List(context.Background(), orders.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	items, err := f.store.Items(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].TotalPrice.Equal(dec("600")))
	assert.True(t, items[1].UnitPrice.Equal(dec("50")))

	tracking, err := f.store.Tracking(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, tracking, 1)
	assert.Equal(t, orders.StatusPending, tracking[0].Status)
	assert.Equal(t, orders.NotePlaced, tracking[0].Notes)

	sent := f.notes.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Order Placed", sent[0].Title)
}

func TestAssemble_PromoAndUsage(t *testing.T) {
	f := newFixture(t)
	req := registered(shirts(12)...)
	req.PromoCode = " save10 "

	d, err := f.asm.Assemble(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", d.Order.PromoCode)
	assert.True(t, d.Order.Subtotal.Equal(dec("600")))
	assert.True(t, d.Order.DeliveryFee.Equal(dec("150")))
	assert.True(t, d.Order.Discount.Equal(dec("100")))
	assert.True(t, d.Order.Total.Equal(d.Order.Subtotal.Add(d.Order.DeliveryFee).Sub(d.Order.Discount)))

	p, err := f.promos.FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TimesUsed)
}

func TestAssemble_InvalidPromo(t *testing.T) {
	f := newFixture(t)
	req := registered(shirts(2)...)
	req.PromoCode = "NOPE"

	_, err := f.asm.Assemble(context.Background(), req)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, mustList(t, f))
}

func TestAssemble_ValidationErrors(t *testing.T) {
	zero := dec("0.2")
	cases := []struct {
		name  string
		req   PlaceOrder
		field string
	}{
		{"empty cart", registered(), "items"},
		{"zero quantity", registered(LineRequest{ServiceID: "shirt-iron"}), "items[0].quantity"},
		{"light weight", registered(LineRequest{ServiceID: "wash-fold", Quantity: 1, WeightKg: &zero}), "items[0].weight_kg"},
		{"per kg without weight", registered(LineRequest{ServiceID: "wash-fold", Quantity: 1}), "items[0].weight_kg"},
		{"inactive service", registered(LineRequest{ServiceID: "suit", Quantity: 1}), "items[0].service_id"},
		{"no pickup", PlaceOrder{UserID: "u1", Items: shirts(1)}, "pickup_address_id"},
		{"bad method", func() PlaceOrder { r := registered(shirts(1)...); r.PaymentMethod = "crypto"; return r }(), "payment_method"},
		{"guest without phone", PlaceOrder{Items: shirts(1), Guest: &orders.Guest{Name: "Ali"}}, "guest.phone"},
		{"guest bad phone", PlaceOrder{Items: shirts(1), Guest: &orders.Guest{Name: "Ali", Phone: "12345"}}, "guest.phone"},
		{"guest without area", PlaceOrder{Items: shirts(1), Guest: &orders.Guest{Name: "Ali", Phone: "03001234567"}, PickupAddress: &orders.Address{Line1: "x"}}, "pickup_address.area"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.asm.Assemble(context.Background(), tc.req)
			var v *apperr.ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tc.field, v.Field)
			assert.Empty(t, mustList(t, f))
		})
	}
}

func TestAssemble_UnknownServiceIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.asm.Assemble(context.Background(), registered(LineRequest{ServiceID: "ghost", Quantity: 1}))
	assert.True(t, apperr.IsNotFound(err))
}

func TestAssemble_ForeignAddressIsNotFound(t *testing.T) {
	f := newFixture(t)
	req := registered(shirts(1)...)
	req.DeliveryAddressID = "addr-x"

	_, err := f.asm.Assemble(context.Background(), req)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, mustList(t, f))
}

func TestAssemble_GuestPhoneNormalized(t *testing.T) {
	f := newFixture(t)
	req := PlaceOrder{
		Items:         shirts(3),
		Guest:         &orders.Guest{Name: " Sana ", Phone: "0300 123-4567", Email: "sana@example.pk"},
		PickupAddress: &orders.Address{Line1: "Flat 7", Area: "PECHS"},
	}

	d, err := f.asm.Assemble(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, d.Order.Guest)
	assert.Equal(t, "+923001234567", d.Order.Guest.Phone)
	assert.Equal(t, "Sana", d.Order.Guest.Name)
	assert.Equal(t, "Karachi", d.Order.PickupAddress.City)
	assert.Equal(t, d.Order.PickupAddress, d.Order.DeliveryAddress)
	assert.True(t, d.Order.IsGuest())
	assert.Empty(t, f.notes.Sent(), "guests get no in-app notifications")
}

func TestAssemble_RollsBackWhenItemsFail(t *testing.T) {
	f := newFixture(t)
	f.store.itemsErr = errors.New("disk full")

	_, err := f.asm.Assemble(context.Background(), registered(shirts(2)...))
	var d *apperr.DownstreamError
	require.ErrorAs(t, err, &d)
	assert.Len(t, f.store.deleted, 1)
	assert.Empty(t, mustList(t, f))
	assert.Empty(t, f.notes.Sent())
}

func TestAssemble_RollbackSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.store.itemsErr = errors.New("connection reset")
	// the request dies while the items insert is failing
	cancel()

	_, err := f.asm.Assemble(ctx, registered(shirts(2)...))
	require.Error(t, err)
	assert.Len(t, f.store.deleted, 1)
	assert.Empty(t, mustList(t, f))
}

func TestService_PlaceCashConfirmsAndClearsCart(t *testing.T) {
	f := newFixture(t)
	c := cart.New("sess-1")
	require.NoError(t, c.Add(services()[1], 2, nil))
	require.NoError(t, f.carts.Save(context.Background(), c))

	req := registered(FromCart(c)...)
	rc, err := f.svc.Place(context.Background(), "sess-1", req)
	require.NoError(t, err)
	require.NotNil(t, rc.Payment)
	assert.True(t, rc.Payment.Success)
	assert.Empty(t, rc.PaymentError)
	assert.Equal(t, orders.StatusConfirmed, rc.Order.Status)
	assert.Equal(t, orders.PaymentPending, rc.Order.PaymentStatus)
	require.Len(t, rc.Tracking, 2)
	assert.Equal(t, orders.StatusConfirmed, rc.Tracking[0].Status, "newest first")

	left, err := f.carts.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, left.Empty())
}

func TestService_PlaceSandboxCardPays(t *testing.T) {
	f := newFixture(t)
	req := registered(shirts(1)...)
	req.PaymentMethod = orders.MethodCard

	rc, err := f.svc.Place(context.Background(), "", req)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, rc.Order.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, rc.Order.Status)
}

func TestService_PlaceWithoutSettlerKeepsOrder(t *testing.T) {
	f := newFixture(t)
	req := registered(shirts(1)...)
	req.PaymentMethod = orders.MethodJazzCash

	rc, err := f.svc.Place(context.Background(), "", req)
	require.NoError(t, err)
	assert.Nil(t, rc.Payment)
	assert.NotEmpty(t, rc.PaymentError)
	assert.Equal(t, orders.StatusPending, rc.Order.Status)
	assert.Len(t, mustList(t, f), 1)
}

func TestService_PlaceRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Place(context.Background(), "", PlaceOrder{Items: shirts(1)})
	var a *apperr.AuthorizationError
	require.ErrorAs(t, err, &a)
	assert.True(t, a.Unauthenticated)
}

func TestService_PlaceGuest(t *testing.T) {
	f := newFixture(t)
	rc, err := f.svc.PlaceGuest(context.Background(), "sess-g", PlaceOrder{
		UserID:        "ignored",
		Items:         shirts(1),
		Guest:         &orders.Guest{Name: "Omar", Phone: "+923331234567"},
		PickupAddress: &orders.Address{Line1: "Block 5", Area: "Gulshan-e-Iqbal"},
	})
	require.NoError(t, err)
	assert.Empty(t, rc.Order.UserID)
	assert.Equal(t, orders.StatusPending, rc.Order.Status)
	assert.Nil(t, rc.Payment)
	assert.True(t, rc.Order.DeliveryFee.Equal(dec("175")))
}

func mustList(t *testing.T, f *fixture) []orders.Order {
	t.Helper()
	all, err := f.store.List(context.Background(), orders.Filter{})
	require.NoError(t, err)
	return all
}
