/*
dashboard.go - Administrator dashboard aggregates

PURPOSE:
  Read-only views over employees and grants:
    - UpcomingGrants: the next automated grant of each employee falling
      strictly inside (today, today + horizon)
    - ExpiringGrants: grants with days left expiring strictly inside
      (asOf, asOf + horizon)
    - EmployeeStats: per-employee totals over non-expired grants and a
      usage rate with one decimal ("0.0" when nothing was granted)

  The aggregators are pure functions; Service.Dashboard loads employees
  and grants once and feeds them all three.
*/
package timeoff

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// DefaultHorizonDays is the look-ahead window of the dashboard.
const DefaultHorizonDays = 30

var hundred = decimal.NewFromInt(100)

type UpcomingGrant struct {
	EmployeeID generic.EmployeeID
	Name       string
	Date       generic.TimePoint
	Days       decimal.Decimal
}

type ExpiringGrant struct {
	GrantID    generic.GrantID
	EmployeeID generic.EmployeeID
	Name       string
	Date       generic.TimePoint
	Remaining  decimal.Decimal
}

type EmployeeStat struct {
	EmployeeID     generic.EmployeeID
	Name           string
	TotalGranted   decimal.Decimal
	TotalUsed      decimal.Decimal
	TotalRemaining decimal.Decimal
	UsageRate      string
}

type Dashboard struct {
	Date           generic.TimePoint
	HorizonDays    int
	UpcomingGrants []UpcomingGrant
	ExpiringGrants []ExpiringGrant
	EmployeeStats  []EmployeeStat
}

// UpcomingGrants lists each employee's next automated grant within the horizon.
func UpcomingGrants(employees []generic.Employee, today generic.TimePoint, horizonDays int) []UpcomingGrant {
	result := []UpcomingGrant{}
	for _, emp := range employees {
		ent, ok := NextUpcomingEntitlement(emp.JoinDate, today, horizonDays)
		if !ok {
			continue
		}
		result = append(result, UpcomingGrant{
			EmployeeID: emp.ID,
			Name:       emp.Name,
			Date:       ent.GrantDate,
			Days:       ent.Days,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ExpiringGrants lists grants with days left expiring within the horizon.
func ExpiringGrants(grants []generic.Grant, employees []generic.Employee, asOf generic.TimePoint, horizonDays int) []ExpiringGrant {
	names := employeeNames(employees)
	result := []ExpiringGrant{}
	for _, g := range expiringWithin(grants, asOf, horizonDays) {
		result = append(result, ExpiringGrant{
			GrantID:    g.ID,
			EmployeeID: g.EmployeeID,
			Name:       names[g.EmployeeID],
			Date:       g.Expiry,
			Remaining:  g.Remaining(),
		})
	}
	return result
}

// EmployeeStats totals each employee's non-expired grants.
func EmployeeStats(employees []generic.Employee, grants []generic.Grant, asOf generic.TimePoint) []EmployeeStat {
	byEmployee := make(map[generic.EmployeeID][]generic.Grant)
	for _, g := range grants {
		byEmployee[g.EmployeeID] = append(byEmployee[g.EmployeeID], g)
	}

	result := make([]EmployeeStat, 0, len(employees))
	for _, emp := range employees {
		stat := EmployeeStat{
			EmployeeID:     emp.ID,
			Name:           emp.Name,
			TotalGranted:   decimal.Zero,
			TotalUsed:      decimal.Zero,
			TotalRemaining: decimal.Zero,
		}
		for _, g := range byEmployee[emp.ID] {
			if g.IsExpired(asOf) {
				continue
			}
			stat.TotalGranted = stat.TotalGranted.Add(g.Granted)
			stat.TotalUsed = stat.TotalUsed.Add(g.Used)
			stat.TotalRemaining = stat.TotalRemaining.Add(g.Remaining())
		}
		stat.UsageRate = usageRate(stat.TotalUsed, stat.TotalGranted)
		result = append(result, stat)
	}
	return result
}

func usageRate(used, granted decimal.Decimal) string {
	if !granted.IsPositive() {
		return "0.0"
	}
	return used.Div(granted).Mul(hundred).StringFixed(1)
}

func employeeNames(employees []generic.Employee) map[generic.EmployeeID]string {
	names := make(map[generic.EmployeeID]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.Name
	}
	return names
}

// Dashboard builds all three aggregates as of today.
func (s *Service) Dashboard(ctx context.Context, horizonDays int) (Dashboard, error) {
	if horizonDays == 0 {
		horizonDays = DefaultHorizonDays
	}
	if horizonDays < 0 {
		return Dashboard{}, generic.Invalid("days", "horizon must be positive, got %d", horizonDays)
	}

	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return Dashboard{}, generic.StoreFailure(err)
	}
	grants, err := s.Store.ListGrants(ctx, "")
	if err != nil {
		return Dashboard{}, generic.StoreFailure(err)
	}

	today := s.Today()
	return Dashboard{
		Date:           today,
		HorizonDays:    horizonDays,
		UpcomingGrants: UpcomingGrants(employees, today, horizonDays),
		ExpiringGrants: ExpiringGrants(grants, employees, today, horizonDays),
		EmployeeStats:  EmployeeStats(employees, grants, today),
	}, nil
}
