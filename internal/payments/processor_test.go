package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

var clock = time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

type stubSettler struct {
	method orders.PaymentMethod
	res    Result
	err    error
	calls  int
}

func (s *stubSettler) Method() orders.PaymentMethod { return s.method }

func (s *stubSettler) Settle(context.Context, Charge) (Result, error) {
	s.calls++
	return s.res, s.err
}

type env struct {
	store *orders.MemoryStore
	proc  *Processor
	order orders.Order
}

func newEnv(t *testing.T, settlers ...Settler) *env {
	t.Helper()
	store := orders.NewMemoryStore()
	lc := orders.NewLifecycle(store, &notify.Recorder{}, nil)
	lc.Clock = func() time.Time { return clock }

	o := &orders.Order{
		OrderNumber:   orders.NewNumber(clock),
		UserID:        "u1",
		Subtotal:      decimal.NewFromInt(600),
		DeliveryFee:   decimal.NewFromInt(150),
		Total:         decimal.NewFromInt(750),
		Status:        orders.StatusPending,
		PaymentMethod: orders.MethodCash,
		PaymentStatus: orders.PaymentPending,
		CreatedAt:     clock,
		UpdatedAt:     clock,
	}
	require.NoError(t, store.InsertOrder(context.Background(), o))
	return &env{store: store, proc: NewProcessor(store, lc, nil, settlers...), order: *o}
}

func (e *env) reload(t *testing.T) orders.Order {
	t.Helper()
	o, err := e.store.Get(context.Background(), e.order.ID)
	require.NoError(t, err)
	return o
}

func (e *env) pay(method orders.PaymentMethod, amount string) (Result, error) {
	return e.proc.Pay(context.Background(), PayRequest{
		OrderID: e.order.ID,
		UserID:  "u1",
		Amount:  decimal.RequireFromString(amount),
		Method:  method,
	})
}

func TestPay_CashConfirmsButLeavesPaymentPending(t *testing.T) {
	e := newEnv(t, CashSettler{Clock: func() time.Time { return clock }})

	res, err := e.pay(orders.MethodCash, "750")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "COD-1780300800000", res.TransactionID)
	assert.Equal(t, "Cash on Delivery confirmed. Pay when your laundry is delivered.", res.Message)

	o := e.reload(t)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
}

func TestPay_AmountWithinTolerance(t *testing.T) {
	e := newEnv(t, &stubSettler{method: orders.MethodCard, res: Result{Success: true, TransactionID: "CARD-1"}})

	_, err := e.pay(orders.MethodCard, "750.02")
	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "amount", v.Field)
	assert.Equal(t, orders.PaymentPending, e.reload(t).PaymentStatus)

	_, err = e.pay(orders.MethodCard, "749.995")
	require.NoError(t, err)
	o := e.reload(t)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.MethodCard, o.PaymentMethod)
}

func TestPay_ProviderErrorLeavesOrderUntouched(t *testing.T) {
	s := &stubSettler{method: orders.MethodJazzCash, err: errors.New("gateway timeout")}
	e := newEnv(t, s)

	_, err := e.pay(orders.MethodJazzCash, "750")
	var d *apperr.DownstreamError
	require.ErrorAs(t, err, &d)
	assert.Equal(t, 1, s.calls, "never retried")
	assert.Equal(t, e.order, e.reload(t))
}

func TestPay_DeclineMarksFailed(t *testing.T) {
	e := newEnv(t, &stubSettler{method: orders.MethodCard, res: Result{Success: false, Message: "card declined"}})

	res, err := e.pay(orders.MethodCard, "750")
	require.NoError(t, err)
	assert.False(t, res.Success)
	o := e.reload(t)
	assert.Equal(t, orders.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestPay_RedirectWaitsForWebhook(t *testing.T) {
	e := newEnv(t, &stubSettler{method: orders.MethodCard, res: Result{Success: true, TransactionID: "cs_1", RedirectURL: "https://checkout.stripe.com/c/pay/cs_1"}})

	res, err := e.pay(orders.MethodCard, "750")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)
	assert.Equal(t, e.order, e.reload(t))

	o, err := e.proc.Reconcile(context.Background(), Callback{Method: orders.MethodCard, OrderID: e.order.ID, Success: true, TransactionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
}

func TestPay_Rejections(t *testing.T) {
	e := newEnv(t, CashSettler{})

	_, err := e.pay(orders.PaymentMethod("bitcoin"), "750")
	assert.True(t, apperr.IsValidation(err))

	_, err = e.proc.Pay(context.Background(), PayRequest{OrderID: e.order.ID, UserID: "u2", Amount: decimal.NewFromInt(750), Method: orders.MethodCash})
	var a *apperr.AuthorizationError
	require.ErrorAs(t, err, &a)

	_, err = e.proc.Pay(context.Background(), PayRequest{OrderID: e.order.ID, Amount: decimal.NewFromInt(750), Method: orders.MethodCash})
	require.ErrorAs(t, err, &a)
	assert.True(t, a.Unauthenticated)

	_, err = e.proc.Pay(context.Background(), PayRequest{OrderID: "nope", UserID: "u1", Amount: decimal.NewFromInt(750), Method: orders.MethodCash})
	assert.True(t, apperr.IsNotFound(err))
}

func TestPay_CancelledOrderConflicts(t *testing.T) {
	e := newEnv(t, CashSettler{})
	_, err := e.proc.Lifecycle.Cancel(context.Background(), e.order.ID, "u1")
	require.NoError(t, err)

	_, err = e.pay(orders.MethodCash, "750")
	assert.True(t, apperr.IsConflict(err))
}

func TestReconcile_FailureThenRetry(t *testing.T) {
	e := newEnv(t)

	o, err := e.proc.Reconcile(context.Background(), Callback{Method: orders.MethodEasyPaisa, OrderID: e.order.ID, Success: false})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, orders.StatusPending, o.Status)

	o, err = e.proc.Reconcile(context.Background(), Callback{Method: orders.MethodEasyPaisa, OrderID: e.order.ID, Success: true, TransactionID: "EP-9"})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.MethodEasyPaisa, o.PaymentMethod)
}

// racingStore fails the next `stale` Applies as if another writer got there
// first.
type racingStore struct {
	orders.Store
	stale int
}

func (s *racingStore) Apply(ctx context.Context, m orders.Mutation) (orders.Order, error) {
	if s.stale > 0 {
		s.stale--
		return orders.Order{}, apperr.StaleWrite(string(m.ExpectStatus))
	}
	return s.Store.Apply(ctx, m)
}

func TestReconcile_RetriesOnceAfterConcurrentWrite(t *testing.T) {
	e := newEnv(t)
	racing := &racingStore{Store: e.store, stale: 1}
	lc := orders.NewLifecycle(racing, &notify.Recorder{}, nil)
	proc := NewProcessor(racing, lc, nil)

	cb := Callback{Method: orders.MethodJazzCash, OrderID: e.order.ID, Success: true, TransactionID: "RRN1"}
	o, err := proc.Reconcile(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, e.reload(t).Status)

	racing.stale = 2
	e2 := newEnv(t)
	racing.Store = e2.store
	_, err = proc.Reconcile(context.Background(), Callback{Method: orders.MethodJazzCash, OrderID: e2.order.ID, Success: true})
	require.Error(t, err)
	assert.True(t, apperr.IsStale(err), "second loss is surfaced for redelivery")
	assert.Equal(t, orders.PaymentPending, e2.reload(t).PaymentStatus)
}
