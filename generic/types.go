/*
Package generic provides the data model shared by the leave engine.

PURPOSE:
  Holds the records every other package talks about: employees, leave
  grants and consumption requests. The accrual, allocation and reporting
  logic lives in the timeoff package; storage drivers live under store/.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: decimal day quantities (1 = full day, 0.5 = half day, 0.125 = one hour)
  - Employee: a person with an immutable join date
  - Grant: one allotment of leave days with its own expiry and usage
  - ConsumptionRequest: one request to consume leave, pending until allocated

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal, never float64
  2. Type Safety: distinct ID types for employees, grants and requests
  3. Dates: every date is a calendar day (TimePoint), no time-of-day

USAGE:
  g := generic.Grant{
      EmployeeID: "emp-123",
      Granted:    generic.DaysFromInt(10),
      ValidFrom:  generic.NewTimePoint(2024, time.April, 1),
      Expiry:     generic.NewTimePoint(2026, time.April, 1),
  }
  g.Remaining() // 10

SEE ALSO:
  - time.go: calendar date type
  - errors.go: error taxonomy
  - store.go: persistence interfaces
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal day quantities
// =============================================================================

// HoursPerDay converts hour-based consumption into days.
const HoursPerDay = 8

var hoursPerDay = decimal.NewFromInt(HoursPerDay)

func DaysFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// HoursToDays returns h/8 days.
func HoursToDays(h int) decimal.Decimal {
	return decimal.NewFromInt(int64(h)).Div(hoursPerDay)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type GrantID string
type RequestID string

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID        EmployeeID
	Name      string
	Email     string
	JoinDate  TimePoint
	CreatedAt time.Time
}

// =============================================================================
// GRANT - One allotment of leave days
// =============================================================================

// AutoGrantPrefix starts the reason of every grant created by the accrual
// job. Stores keep at most one such grant per employee and valid-from date.
const AutoGrantPrefix = "auto-grant"

// Grant is a discrete allotment of leave days.
//
// INVARIANT: 0 <= Used <= Granted. Used is only changed by the allocator.
type Grant struct {
	ID         GrantID
	EmployeeID EmployeeID
	Granted    decimal.Decimal
	Used       decimal.Decimal
	ValidFrom  TimePoint
	Expiry     TimePoint
	Reason     string
	CreatedAt  time.Time
}

// Remaining is Granted - Used, floored at zero.
func (g Grant) Remaining() decimal.Decimal {
	r := g.Granted.Sub(g.Used)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// IsExpired reports whether the grant expired strictly before asOf.
// A grant expiring on asOf is still usable that day.
func (g Grant) IsExpired(asOf TimePoint) bool {
	return g.Expiry.Before(asOf)
}

// =============================================================================
// CONSUMPTION REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type ConsumptionMode string

const (
	ModeFullDay ConsumptionMode = "full"
	ModeHalfDay ConsumptionMode = "half"
	ModeHourly  ConsumptionMode = "time"
)

type ConsumptionRequest struct {
	ID         RequestID
	EmployeeID EmployeeID
	Date       TimePoint
	Reason     string
	Amount     decimal.Decimal
	Mode       ConsumptionMode
	Hours      int
	Status     RequestStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
