package orders

import "strings"

type Status string

const (
	StatusPending          Status = "pending"
	StatusConfirmed        Status = "confirmed"
	StatusAssigned         Status = "assigned"
	StatusPickedUp         Status = "picked_up"
	StatusAtFacility       Status = "at_facility"
	StatusWashing          Status = "washing"
	StatusQualityCheck     Status = "quality_check"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusCancelled        Status = "cancelled"
)

// progression is the forward path from creation to delivery.
var progression = []Status{
	StatusPending,
	StatusConfirmed,
	StatusAssigned,
	StatusPickedUp,
	StatusAtFacility,
	StatusWashing,
	StatusQualityCheck,
	StatusReadyForDelivery,
	StatusOutForDelivery,
	StatusDelivered,
}

// validNext: every strictly-forward step is legal (admins may skip ahead),
// cancellation only from pending, terminal states go nowhere.
var validNext = buildTransitions()

func buildTransitions() map[Status]map[Status]bool {
	m := make(map[Status]map[Status]bool, len(progression)+1)
	for i, from := range progression {
		next := map[Status]bool{}
		for _, to := range progression[i+1:] {
			next[to] = true
		}
		m[from] = next
	}
	m[StatusPending][StatusCancelled] = true
	m[StatusCancelled] = map[Status]bool{}
	return m
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Rank is the position on the forward path; cancelled and unknown statuses
// rank -1.
func (s Status) Rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// Label renders the status for customer-facing text ("picked up").
func (s Status) Label() string { return strings.ReplaceAll(string(s), "_", " ") }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:  {PaymentPaid: true, PaymentFailed: true},
	PaymentFailed:   {PaymentPaid: true, PaymentPending: true},
	PaymentPaid:     {PaymentRefunded: true},
	PaymentRefunded: {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

func (p PaymentStatus) Valid() bool {
	_, ok := validPaymentNext[p]
	return ok
}

type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodCard      PaymentMethod = "card"
	MethodEasyPaisa PaymentMethod = "easypaisa"
	MethodJazzCash  PaymentMethod = "jazzcash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodEasyPaisa, MethodJazzCash:
		return true
	}
	return false
}
