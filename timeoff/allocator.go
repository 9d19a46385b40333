/*
allocator.go - Oldest-expiry-first consumption allocation

PURPOSE:
  Debits a consumption amount across an employee's grants so that the
  days closest to expiring are used first.

ALGORITHM:
  1. Lock the employee's grants (LockGrants) inside the caller's transaction
  2. Keep grants not expired on the consumption date with remaining > 0
  3. Order by expiry ascending; ties by valid-from, then grant ID
  4. If the summed remaining is below the amount: InsufficientBalanceError,
     nothing is written
  5. Otherwise take min(remaining, still needed) from each grant in order

EXAMPLE:
  G1: 5 remaining, expires 2025-06-30
  G2: 10 remaining, expires 2026-06-30
  Consume 7 on 2025-05-01:
    G1 used += 5, G2 used += 2

ATOMICITY:
  Allocate must be called with the Store handed to TxStore.WithTx. Any
  error rolls back every debit made so far. The grant row lock makes two
  concurrent allocations for one employee run one after the other, so the
  second sees the first one's debits.

SEE ALSO:
  - request.go: the consumption workflow that wraps Allocate
  - generic/store.go: LockGrants semantics per driver
*/
package timeoff

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Debit is the amount taken from one grant.
type Debit struct {
	GrantID        generic.GrantID
	Amount         decimal.Decimal
	RemainingAfter decimal.Decimal
}

// Allocation is the result of one successful consumption.
type Allocation struct {
	EmployeeID generic.EmployeeID
	Date       generic.TimePoint
	Reason     string
	Requested  decimal.Decimal
	Debits     []Debit
}

// Total returns the summed debits.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range a.Debits {
		total = total.Add(d.Amount)
	}
	return total
}

// eligibleGrants returns grants usable on date, oldest expiry first.
func eligibleGrants(grants []generic.Grant, date generic.TimePoint) []generic.Grant {
	var eligible []generic.Grant
	for _, g := range grants {
		if g.IsExpired(date) || !g.Remaining().IsPositive() {
			continue
		}
		eligible = append(eligible, g)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if !a.ValidFrom.Equal(b.ValidFrom) {
			return a.ValidFrom.Before(b.ValidFrom)
		}
		return a.ID < b.ID
	})
	return eligible
}

// PlanAllocation decides the debits for amount without touching a store.
func PlanAllocation(employeeID generic.EmployeeID, grants []generic.Grant, amount decimal.Decimal, date generic.TimePoint) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, generic.Invalid("amount", "must be positive, got %s", amount)
	}

	eligible := eligibleGrants(grants, date)

	available := decimal.Zero
	for _, g := range eligible {
		available = available.Add(g.Remaining())
	}
	if available.LessThan(amount) {
		return Allocation{}, &generic.InsufficientBalanceError{
			EmployeeID: employeeID,
			Available:  available,
			Requested:  amount,
			Shortfall:  amount.Sub(available),
		}
	}

	alloc := Allocation{EmployeeID: employeeID, Date: date, Requested: amount}
	needed := amount
	for _, g := range eligible {
		if !needed.IsPositive() {
			break
		}
		take := decimal.Min(g.Remaining(), needed)
		alloc.Debits = append(alloc.Debits, Debit{
			GrantID:        g.ID,
			Amount:         take,
			RemainingAfter: g.Remaining().Sub(take),
		})
		needed = needed.Sub(take)
	}
	return alloc, nil
}

// Allocate plans and applies a consumption. store must be transaction-bound.
func Allocate(ctx context.Context, store generic.Store, employeeID generic.EmployeeID, amount decimal.Decimal, date generic.TimePoint, reason string) (Allocation, error) {
	grants, err := store.LockGrants(ctx, employeeID)
	if err != nil {
		return Allocation{}, generic.StoreFailure(err)
	}

	alloc, err := PlanAllocation(employeeID, grants, amount, date)
	if err != nil {
		return Allocation{}, err
	}
	alloc.Reason = reason

	used := make(map[generic.GrantID]decimal.Decimal, len(grants))
	for _, g := range grants {
		used[g.ID] = g.Used
	}
	for _, d := range alloc.Debits {
		if err := store.UpdateUsed(ctx, d.GrantID, used[d.GrantID].Add(d.Amount)); err != nil {
			return Allocation{}, generic.StoreFailure(err)
		}
	}
	return alloc, nil
}
