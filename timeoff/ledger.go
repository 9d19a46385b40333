/*
ledger.go - Grant ledger: balances, expiry projection and manual grants

PURPOSE:
  Read side of the grant table plus the administrator's manual grant.
  Balances are always derived from the grants themselves; nothing caches
  a running total.

BALANCE:
  balance(employee, asOf) = sum of Remaining() over grants with expiry >= asOf

EXPIRING WITHIN:
  Grants with remaining > 0 and asOf < expiry < asOf + horizon. Both
  bounds are exclusive: a grant expiring today is not reported, nor is one
  expiring exactly on the horizon day.

MANUAL GRANTS:
  Administrators may grant any non-negative number of days with an
  explicit validity window. Manual grants never carry the automated
  marker so they cannot collide with the accrual job's dedup key.
*/
package timeoff

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// PURE HELPERS
// =============================================================================

// Balance sums the remaining days of grants not expired on asOf.
func Balance(grants []generic.Grant, asOf generic.TimePoint) decimal.Decimal {
	total := decimal.Zero
	for _, g := range grants {
		if g.IsExpired(asOf) {
			continue
		}
		total = total.Add(g.Remaining())
	}
	return total
}

// expiringWithin filters grants expiring strictly inside (asOf, asOf+horizonDays).
func expiringWithin(grants []generic.Grant, asOf generic.TimePoint, horizonDays int) []generic.Grant {
	horizon := asOf.AddDays(horizonDays)
	var result []generic.Grant
	for _, g := range grants {
		if g.Remaining().IsPositive() && g.Expiry.WithinOpen(asOf, horizon) {
			result = append(result, g)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Expiry.Before(result[j].Expiry)
	})
	return result
}

// =============================================================================
// GRANT LEDGER
// =============================================================================

type GrantLedger struct {
	Store generic.Store
}

func NewGrantLedger(store generic.Store) *GrantLedger {
	return &GrantLedger{Store: store}
}

// ListGrants returns the employee's grants ordered by valid-from.
func (l *GrantLedger) ListGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	if _, err := l.Store.GetEmployee(ctx, employeeID); err != nil {
		return nil, generic.StoreFailure(err)
	}
	grants, err := l.Store.ListGrants(ctx, employeeID)
	if err != nil {
		return nil, generic.StoreFailure(err)
	}
	return grants, nil
}

// ListExpiringWithin returns grants of every employee that still hold days
// and expire within horizonDays after asOf.
func (l *GrantLedger) ListExpiringWithin(ctx context.Context, horizonDays int, asOf generic.TimePoint) ([]generic.Grant, error) {
	if horizonDays <= 0 {
		return nil, generic.Invalid("days", "horizon must be positive, got %d", horizonDays)
	}
	grants, err := l.Store.ListGrants(ctx, "")
	if err != nil {
		return nil, generic.StoreFailure(err)
	}
	return expiringWithin(grants, asOf, horizonDays), nil
}

// CurrentBalance returns the employee's usable days on asOf.
func (l *GrantLedger) CurrentBalance(ctx context.Context, employeeID generic.EmployeeID, asOf generic.TimePoint) (decimal.Decimal, error) {
	grants, err := l.ListGrants(ctx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	return Balance(grants, asOf), nil
}

// ManualGrant is an administrator-entered grant.
type ManualGrant struct {
	EmployeeID generic.EmployeeID
	Days       decimal.Decimal
	ValidFrom  generic.TimePoint
	Expiry     generic.TimePoint
	Reason     string
}

func (m ManualGrant) validate() error {
	switch {
	case m.EmployeeID == "":
		return generic.Invalid("employee_id", "is required")
	case m.Days.IsNegative():
		return generic.Invalid("days", "must not be negative, got %s", m.Days)
	case m.ValidFrom.IsZero():
		return generic.Invalid("valid_from", "is required")
	case m.Expiry.IsZero():
		return generic.Invalid("expiry", "is required")
	case m.Expiry.Before(m.ValidFrom):
		return generic.Invalid("expiry", "%s is before valid_from %s", m.Expiry, m.ValidFrom)
	case IsAutoGrantReason(m.Reason):
		return generic.Invalid("reason", "must not contain %q", AutoGrantMarker)
	}
	return nil
}

// GrantManual inserts an administrator grant with nothing used.
func (l *GrantLedger) GrantManual(ctx context.Context, in ManualGrant) (generic.Grant, error) {
	if err := in.validate(); err != nil {
		return generic.Grant{}, err
	}
	if _, err := l.Store.GetEmployee(ctx, in.EmployeeID); err != nil {
		return generic.Grant{}, generic.StoreFailure(err)
	}

	g := generic.Grant{
		ID:         generic.GrantID(uuid.NewString()),
		EmployeeID: in.EmployeeID,
		Granted:    in.Days,
		Used:       decimal.Zero,
		ValidFrom:  in.ValidFrom,
		Expiry:     in.Expiry,
		Reason:     strings.TrimSpace(in.Reason),
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.Store.InsertGrant(ctx, g); err != nil {
		return generic.Grant{}, generic.StoreFailure(err)
	}
	return g, nil
}
