package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/timeoff"
)

func TestRunAccrualCheck_InsertsOwedGrants(t *testing.T) {
	// GIVEN: One employee joined 2020-04-01 and one without a join date
	// WHEN: Running the check on 2023-01-01
	// THEN: Three automated grants are inserted for the first employee only

	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))
	addEmployee(t, mem, "emp-2", "Ben", generic.TimePoint{})

	result, err := timeoff.RunAccrualCheck(ctx, mem, date(2023, time.January, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, result.EmployeesChecked)
	assert.Equal(t, 3, result.GrantsInserted)
	assert.Empty(t, result.Failures)
	assert.Contains(t, result.Insertions, "Aiko: 2020-10-01 grant 10 days")
	assert.Contains(t, result.Message(), "3 grants inserted")

	grants, err := mem.ListGrants(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, grants, 3)
	for _, g := range grants {
		assert.True(t, g.Used.IsZero())
		assert.True(t, timeoff.IsAutoGrantReason(g.Reason))
		assert.Equal(t, g.ValidFrom.AddYears(100), g.Expiry)
	}
}

func TestRunAccrualCheck_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))
	today := date(2023, time.January, 1)

	_, err := timeoff.RunAccrualCheck(ctx, mem, today)
	require.NoError(t, err)

	second, err := timeoff.RunAccrualCheck(ctx, mem, today)
	require.NoError(t, err)

	assert.Equal(t, 0, second.GrantsInserted)
	grants, err := mem.ListGrants(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, grants, 3)
}

func TestRunAccrualCheck_GrantCountIsMonotonic(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))

	previous := 0
	for _, today := range []generic.TimePoint{
		date(2020, time.September, 30),
		date(2020, time.October, 1),
		date(2022, time.January, 1),
		date(2023, time.October, 1),
	} {
		_, err := timeoff.RunAccrualCheck(ctx, mem, today)
		require.NoError(t, err)

		grants, err := mem.ListGrants(ctx, "emp-1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(grants), previous, "as of %s", today)
		assert.Len(t, grants, len(timeoff.ComputeEntitlements(date(2020, time.April, 1), today)))
		previous = len(grants)
	}
	assert.Equal(t, 4, previous)
}

func TestRunAccrualCheck_ManualGrantDoesNotBlockAutoGrant(t *testing.T) {
	// GIVEN: A manual grant valid from the same day as the first milestone
	// THEN: The automated grant is still inserted (dedup key includes the marker)

	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))
	addGrant(t, mem, "manual", "emp-1", "3", "0", date(2020, time.October, 1), date(2022, time.October, 1))

	result, err := timeoff.RunAccrualCheck(ctx, mem, date(2020, time.October, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.GrantsInserted)
}

func TestRunAccrualCheck_LosingConcurrentRunSkipsDuplicates(t *testing.T) {
	// GIVEN: Grants already inserted by another run the check cannot see
	// WHEN: The check inserts them again and the store reports duplicates
	// THEN: Duplicates are skipped without failures and nothing new is written

	mem := store.NewMemory()
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))
	today := date(2023, time.January, 1)

	_, err := timeoff.RunAccrualCheck(ctx, mem, today)
	require.NoError(t, err)

	// one more milestone is owed by 2023-10-01
	later := date(2023, time.October, 1)
	result, err := timeoff.RunAccrualCheck(ctx, &staleStore{Memory: mem}, later)
	require.NoError(t, err)

	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.GrantsInserted)
	grants, err := mem.ListGrants(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, grants, 4)
}

func TestRunAccrualCheck_FailureIsPerEmployee(t *testing.T) {
	// GIVEN: Inserting grants fails for one employee
	// THEN: That employee is reported, the other still gets their grants,
	// and none of the failing employee's grants survive

	mem := store.NewMemory()
	faulty := &faultyStore{Memory: mem, failInsertGrant: "emp-1"}
	ctx := context.Background()
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))
	addEmployee(t, mem, "emp-2", "Ben", date(2021, time.April, 1))

	result, err := timeoff.RunAccrualCheck(ctx, faulty, date(2023, time.January, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, result.EmployeesChecked)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "Aiko")
	assert.Equal(t, 2, result.GrantsInserted)

	failed, err := mem.ListGrants(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestService_RunAccrualCheck_RecordsMetrics(t *testing.T) {
	svc, mem := newMemoryService(t, date(2023, time.January, 1))
	addEmployee(t, mem, "emp-1", "Aiko", date(2020, time.April, 1))

	result, err := svc.RunAccrualCheck(context.Background())
	require.NoError(t, err)

	assert.Equal(t, date(2023, time.January, 1), result.Date)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.AccrualRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(svc.Metrics.GrantsInserted))
}
