package timeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ACCRUAL CHECK - Materializes owed entitlements as grants
// =============================================================================

// AccrualCheckResult summarizes one accrual check run.
type AccrualCheckResult struct {
	Date             generic.TimePoint
	EmployeesChecked int
	GrantsInserted   int
	Insertions       []string
	Failures         []string
}

// Message renders the result for an administrator.
func (r AccrualCheckResult) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d employees on %s: %d grants inserted.", r.EmployeesChecked, r.Date, r.GrantsInserted)
	for _, line := range r.Insertions {
		b.WriteString("\n  + ")
		b.WriteString(line)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d employees failed:", len(r.Failures))
		for _, line := range r.Failures {
			b.WriteString("\n  ! ")
			b.WriteString(line)
		}
	}
	return b.String()
}

// RunAccrualCheck inserts every entitlement owed as of today that has no
// automated grant yet. Each employee is handled in its own transaction; a
// failure for one employee is recorded and the run continues. Running it
// twice on the same day inserts nothing the second time.
//
// Employees without a join date are skipped.
func RunAccrualCheck(ctx context.Context, store generic.TxStore, today generic.TimePoint) (AccrualCheckResult, error) {
	result := AccrualCheckResult{Date: today}

	employees, err := store.ListEmployees(ctx)
	if err != nil {
		return result, generic.StoreFailure(err)
	}

	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if emp.JoinDate.IsZero() {
			continue
		}
		result.EmployeesChecked++

		var inserted []generic.Grant
		err := store.WithTx(ctx, func(tx generic.Store) error {
			inserted = inserted[:0]
			for _, ent := range ComputeEntitlements(emp.JoinDate, today) {
				exists, err := tx.HasAutoGrant(ctx, emp.ID, ent.GrantDate, AutoGrantMarker)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				g := generic.Grant{
					ID:         generic.GrantID(uuid.NewString()),
					EmployeeID: emp.ID,
					Granted:    ent.Days,
					Used:       decimal.Zero,
					ValidFrom:  ent.GrantDate,
					Expiry:     ent.ExpiryDate,
					Reason:     ent.Reason(),
					CreatedAt:  time.Now().UTC(),
				}
				err = tx.InsertGrant(ctx, g)
				if errors.Is(err, generic.ErrDuplicateGrant) {
					// a concurrent run got there first
					continue
				}
				if err != nil {
					return err
				}
				inserted = append(inserted, g)
			}
			return nil
		})
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", emp.Name, err))
			continue
		}

		for _, g := range inserted {
			result.GrantsInserted++
			result.Insertions = append(result.Insertions,
				fmt.Sprintf("%s: %s grant %s days", emp.Name, g.ValidFrom, g.Granted))
		}
	}

	return result, nil
}
