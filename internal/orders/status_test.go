package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusWashing, true},
		{StatusConfirmed, StatusAssigned, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, false},
		{StatusWashing, StatusPickedUp, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{Status("lost"), StatusConfirmed, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		require.True(t, from.Terminal())
		for to := range validNext {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionPayment(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentPaid))
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentFailed))
	assert.True(t, CanTransitionPayment(PaymentFailed, PaymentPaid))
	assert.True(t, CanTransitionPayment(PaymentPaid, PaymentRefunded))
	assert.False(t, CanTransitionPayment(PaymentPaid, PaymentFailed))
	assert.False(t, CanTransitionPayment(PaymentRefunded, PaymentPaid))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "ready for delivery", StatusReadyForDelivery.Label())
	assert.Equal(t, 0, StatusPending.Rank())
	assert.Equal(t, -1, StatusCancelled.Rank())
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"03001234567":     "+923001234567",
		"+923001234567":   "+923001234567",
		"3001234567":      "+923001234567",
		" 0300 123 4567 ": "+923001234567",
		"0300-1234567":    "+923001234567",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "04001234567", "0300123456", "+9203001234567", "030012345678", "phone"} {
		_, err := NormalizePhone(bad)
		require.Error(t, err, bad)
		var v *apperr.ValidationError
		require.ErrorAs(t, err, &v)
		assert.Equal(t, "phone", v.Field)
	}
}

func TestNewNumber(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 500; i++ {
		n := NewNumber(now)
		assert.True(t, strings.HasPrefix(n, "WK"))
		assert.False(t, seen[n], "duplicate %s", n)
		assert.Greater(t, n, prev)
		seen[n] = true
		prev = n
	}
}
