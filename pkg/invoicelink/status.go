package invoicelink

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StatePaid    State = "Paid"
	StateOverdue State = "Overdue"
	StatePartial State = "Partial"
	StatePending State = "Pending"
)

// Status is the display status of a linked invoice.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message"`
}

// DeriveStatus computes an invoice's display status. Rules apply in order:
// Paid, Overdue, Partial, Pending. dueDate is YYYY-MM-DD and may be empty.
func DeriveStatus(balance, total decimal.Decimal, dueDate string, today time.Time) Status {
	if balance.IsZero() && total.IsPositive() {
		return Status{State: StatePaid, Message: "Paid in full"}
	}

	if days, ok := daysOverdue(dueDate, today); ok && balance.IsPositive() {
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		return Status{State: StateOverdue, Message: fmt.Sprintf("Overdue by %d %s", days, unit)}
	}

	if balance.IsPositive() && balance.LessThan(total) {
		paid := total.Sub(balance)
		return Status{
			State:   StatePartial,
			Message: fmt.Sprintf("Paid %s of %s", paid.StringFixed(2), total.StringFixed(2)),
		}
	}

	msg := "Awaiting payment"
	if strings.TrimSpace(dueDate) != "" {
		msg = "Due " + dueDate
	}
	return Status{State: StatePending, Message: msg}
}

// daysOverdue returns the whole days between dueDate and today when dueDate
// is strictly before today's calendar date.
func daysOverdue(dueDate string, today time.Time) (int, bool) {
	dueDate = strings.TrimSpace(dueDate)
	if dueDate == "" {
		return 0, false
	}
	due, err := time.ParseInLocation("2006-01-02", dueDate, today.Location())
	if err != nil {
		return 0, false
	}

	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	if !due.Before(start) {
		return 0, false
	}
	return int(math.Round(start.Sub(due).Hours() / 24)), true
}
