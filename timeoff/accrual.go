/*
accrual.go - Statutory paid-leave accrual schedule

PURPOSE:
  Computes which paid-leave grants an employee is owed from their join date.
  The schedule is fixed: there is one accrual table and no per-employee
  policy.

SCHEDULE (months of service -> days granted):
  6 -> 10, 18 -> 11, 30 -> 12, 42 -> 14, 54 -> 16, 66 -> 18,
  then 20 days every 12 months from month 78 onward.

  The yearly series is bounded at 600 months (50 years of service).

GRANT DATES:
  Grant date = join date + N calendar months. When the join day does not
  exist in the target month the last day of that month is used:
    join 2023-08-31, month 6 -> 2024-02-29

EXPIRY:
  Automated grants expire 100 years after their grant date, i.e. they
  never expire in practice. Manual grants carry their own expiry.

EXAMPLE:
  join := generic.NewTimePoint(2020, time.April, 1)
  ents := timeoff.ComputeEntitlements(join, generic.NewTimePoint(2023, time.January, 1))
  // [{6 10 2020-10-01} {18 11 2021-10-01} {30 12 2022-10-01}]

SEE ALSO:
  - accrual_job.go: materializes entitlements as grants
  - dashboard.go: upcoming grants within a horizon
*/
package timeoff

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SCHEDULE TABLE
// =============================================================================

type milestone struct {
	months int
	days   int
}

var fixedMilestones = []milestone{
	{months: 6, days: 10},
	{months: 18, days: 11},
	{months: 30, days: 12},
	{months: 42, days: 14},
	{months: 54, days: 16},
	{months: 66, days: 18},
}

const (
	yearlyStartMonths = 78
	yearlyStepMonths  = 12
	yearlyDays        = 20

	// maxServiceMonths bounds the yearly series.
	maxServiceMonths = 600

	// autoGrantLifetimeYears is the expiry offset of automated grants.
	autoGrantLifetimeYears = 100
)

// AutoGrantMarker tags the reason of every grant created by the accrual job.
// It is the dedup key together with employee and valid-from date.
const AutoGrantMarker = generic.AutoGrantPrefix

// AutoGrantReason renders the reason stored on an automated grant.
func AutoGrantReason(yearsOfService decimal.Decimal) string {
	return fmt.Sprintf("%s (service %s years)", AutoGrantMarker, yearsOfService.String())
}

// IsAutoGrantReason reports whether reason was produced by AutoGrantReason.
func IsAutoGrantReason(reason string) bool {
	return strings.Contains(reason, AutoGrantMarker)
}

// =============================================================================
// ENTITLEMENT
// =============================================================================

// Entitlement is one grant the schedule says an employee is owed.
type Entitlement struct {
	Months         int
	Days           decimal.Decimal
	GrantDate      generic.TimePoint
	ExpiryDate     generic.TimePoint
	YearsOfService decimal.Decimal
}

func newEntitlement(join generic.TimePoint, months, days int) Entitlement {
	grantDate := join.AddMonths(months)
	return Entitlement{
		Months:         months,
		Days:           generic.DaysFromInt(days),
		GrantDate:      grantDate,
		ExpiryDate:     grantDate.AddYears(autoGrantLifetimeYears),
		YearsOfService: decimal.NewFromInt(int64(months)).Div(decimal.NewFromInt(12)),
	}
}

// Reason is the automated grant reason for e.
func (e Entitlement) Reason() string {
	return AutoGrantReason(e.YearsOfService)
}

// ComputeEntitlements returns every entitlement with grant date <= asOf,
// ordered by grant date. Grants that would already be expired are still
// returned; callers decide what to do with them.
func ComputeEntitlements(joinDate, asOf generic.TimePoint) []Entitlement {
	var result []Entitlement
	if joinDate.IsZero() {
		return result
	}

	for _, m := range fixedMilestones {
		ent := newEntitlement(joinDate, m.months, m.days)
		if ent.GrantDate.BeforeOrEqual(asOf) {
			result = append(result, ent)
		}
	}

	for months := yearlyStartMonths; months < maxServiceMonths; months += yearlyStepMonths {
		ent := newEntitlement(joinDate, months, yearlyDays)
		if ent.GrantDate.After(asOf) {
			break
		}
		result = append(result, ent)
	}

	return result
}

// NextUpcomingEntitlement returns the first entitlement whose grant date
// falls strictly inside (today, today+horizonDays).
func NextUpcomingEntitlement(joinDate, today generic.TimePoint, horizonDays int) (Entitlement, bool) {
	if joinDate.IsZero() || horizonDays <= 0 {
		return Entitlement{}, false
	}
	horizon := today.AddDays(horizonDays)

	for _, m := range fixedMilestones {
		ent := newEntitlement(joinDate, m.months, m.days)
		if ent.GrantDate.WithinOpen(today, horizon) {
			return ent, true
		}
	}

	for months := yearlyStartMonths; months < maxServiceMonths; months += yearlyStepMonths {
		ent := newEntitlement(joinDate, months, yearlyDays)
		if ent.GrantDate.WithinOpen(today, horizon) {
			return ent, true
		}
		if ent.GrantDate.After(horizon) {
			break
		}
	}

	return Entitlement{}, false
}

// GrantDaysOn returns the days granted on exactly day, or zero.
func GrantDaysOn(joinDate, day generic.TimePoint) decimal.Decimal {
	for _, ent := range ComputeEntitlements(joinDate, day) {
		if ent.GrantDate.Equal(day) {
			return ent.Days
		}
	}
	return decimal.Zero
}
