package order

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state. Transitions are monotonic: once an
// order reaches success or failed it never returns to pending.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Order is a membership purchase tracked locally while the payment itself is
// hosted by the provider.
type Order struct {
	ID            string
	Code          string
	BillingName   string
	BillingEmail  string
	Subtotal      float64
	Tax           float64
	Status        Status
	MembershipID  int64
	UserID        int64
	TransactionID string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Total returns the amount owed: round(subtotal + tax, 2).
func (o Order) Total() float64 {
	return math.Round((o.Subtotal+o.Tax)*100) / 100
}

// NewCode generates a correlation token embedded in the outbound intent and
// expected back from the provider. Generated once per order, never reused.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:10])
}
