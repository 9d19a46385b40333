package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/timeoff"
)

func twoGrants() []generic.Grant {
	return []generic.Grant{
		{ID: "G2", EmployeeID: "emp-1", Granted: days("10"), Used: days("0"),
			ValidFrom: date(2024, time.June, 30), Expiry: date(2026, time.June, 30)},
		{ID: "G1", EmployeeID: "emp-1", Granted: days("5"), Used: days("0"),
			ValidFrom: date(2023, time.June, 30), Expiry: date(2025, time.June, 30)},
	}
}

// =============================================================================
// PLANNING TESTS
// =============================================================================

func TestPlanAllocation_OldestExpiryFirst(t *testing.T) {
	// GIVEN: G1 (5 left, expires 2025-06-30) and G2 (10 left, expires 2026-06-30)
	// WHEN: Consuming 7 days on 2025-05-01
	// THEN: G1 is drained first, G2 covers the remaining 2

	alloc, err := timeoff.PlanAllocation("emp-1", twoGrants(), days("7"), date(2025, time.May, 1))
	require.NoError(t, err)

	require.Len(t, alloc.Debits, 2)
	assert.Equal(t, generic.GrantID("G1"), alloc.Debits[0].GrantID)
	assert.True(t, alloc.Debits[0].Amount.Equal(days("5")))
	assert.True(t, alloc.Debits[0].RemainingAfter.IsZero())
	assert.Equal(t, generic.GrantID("G2"), alloc.Debits[1].GrantID)
	assert.True(t, alloc.Debits[1].Amount.Equal(days("2")))
	assert.True(t, alloc.Debits[1].RemainingAfter.Equal(days("8")))
	assert.True(t, alloc.Total().Equal(days("7")))
}

func TestPlanAllocation_SkipsExpiredGrants(t *testing.T) {
	alloc, err := timeoff.PlanAllocation("emp-1", twoGrants(), days("1"), date(2025, time.July, 1))
	require.NoError(t, err)

	require.Len(t, alloc.Debits, 1)
	assert.Equal(t, generic.GrantID("G2"), alloc.Debits[0].GrantID)
}

func TestPlanAllocation_UsableOnExpiryDay(t *testing.T) {
	alloc, err := timeoff.PlanAllocation("emp-1", twoGrants(), days("1"), date(2025, time.June, 30))
	require.NoError(t, err)

	require.Len(t, alloc.Debits, 1)
	assert.Equal(t, generic.GrantID("G1"), alloc.Debits[0].GrantID)
}

func TestPlanAllocation_SkipsExhaustedGrants(t *testing.T) {
	grants := twoGrants()
	grants[1].Used = days("5")

	alloc, err := timeoff.PlanAllocation("emp-1", grants, days("0.5"), date(2025, time.May, 1))
	require.NoError(t, err)

	require.Len(t, alloc.Debits, 1)
	assert.Equal(t, generic.GrantID("G2"), alloc.Debits[0].GrantID)
}

func TestPlanAllocation_TieBreakByValidFromThenID(t *testing.T) {
	expiry := date(2030, time.January, 1)
	grants := []generic.Grant{
		{ID: "b", Granted: days("1"), ValidFrom: date(2024, time.January, 1), Expiry: expiry},
		{ID: "a", Granted: days("1"), ValidFrom: date(2024, time.January, 1), Expiry: expiry},
		{ID: "z", Granted: days("1"), ValidFrom: date(2023, time.January, 1), Expiry: expiry},
	}

	alloc, err := timeoff.PlanAllocation("emp-1", grants, days("3"), date(2025, time.January, 1))
	require.NoError(t, err)

	require.Len(t, alloc.Debits, 3)
	assert.Equal(t, generic.GrantID("z"), alloc.Debits[0].GrantID)
	assert.Equal(t, generic.GrantID("a"), alloc.Debits[1].GrantID)
	assert.Equal(t, generic.GrantID("b"), alloc.Debits[2].GrantID)
}

func TestPlanAllocation_InsufficientBalance(t *testing.T) {
	_, err := timeoff.PlanAllocation("emp-1", twoGrants(), days("16"), date(2025, time.May, 1))

	var insufficient *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assert.True(t, insufficient.Available.Equal(days("15")))
	assert.True(t, insufficient.Requested.Equal(days("16")))
	assert.True(t, insufficient.Shortfall.Equal(days("1")))
}

func TestPlanAllocation_RejectsNonPositiveAmount(t *testing.T) {
	_, err := timeoff.PlanAllocation("emp-1", twoGrants(), days("0"), date(2025, time.May, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// STORE-BACKED TESTS
// =============================================================================

func TestAllocate_PersistsDebits(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.January, 1))
	addGrant(t, mem, "G1", "emp-1", "5", "0", date(2023, time.June, 30), date(2025, time.June, 30))
	addGrant(t, mem, "G2", "emp-1", "10", "0", date(2024, time.June, 30), date(2026, time.June, 30))

	err := mem.WithTx(ctx, func(tx generic.Store) error {
		_, err := timeoff.Allocate(ctx, tx, "emp-1", days("7"), date(2025, time.May, 1), "trip")
		return err
	})
	require.NoError(t, err)

	assert.True(t, grantByID(t, mem, "emp-1", "G1").Used.Equal(days("5")))
	assert.True(t, grantByID(t, mem, "emp-1", "G2").Used.Equal(days("2")))
}

func TestAllocate_InsufficientBalanceWritesNothing(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.January, 1))
	addGrant(t, mem, "G1", "emp-1", "5", "1", date(2023, time.June, 30), date(2025, time.June, 30))

	err := mem.WithTx(ctx, func(tx generic.Store) error {
		_, err := timeoff.Allocate(ctx, tx, "emp-1", days("4.5"), date(2025, time.May, 1), "")
		return err
	})
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assert.True(t, grantByID(t, mem, "emp-1", "G1").Used.Equal(days("1")))
}

func TestAllocate_RollsBackPartialDebits(t *testing.T) {
	// GIVEN: The second UpdateUsed of an allocation fails
	// THEN: The first debit is rolled back as well

	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.January, 1))
	addGrant(t, mem, "G1", "emp-1", "1", "0", date(2023, time.June, 30), date(2025, time.June, 30))
	addGrant(t, mem, "G2", "emp-1", "1", "0", date(2024, time.June, 30), date(2026, time.June, 30))

	calls := 0
	err := mem.WithTx(ctx, func(tx generic.Store) error {
		_, err := timeoff.Allocate(ctx, &countingTx{Store: tx, failAfter: 1, calls: &calls}, "emp-1", days("2"), date(2025, time.May, 1), "")
		return err
	})
	assert.ErrorIs(t, err, generic.ErrStoreFailure)
	assert.True(t, grantByID(t, mem, "emp-1", "G1").Used.IsZero())
	assert.True(t, grantByID(t, mem, "emp-1", "G2").Used.IsZero())
}
