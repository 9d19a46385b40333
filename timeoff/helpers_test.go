package timeoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/metrics"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func days(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, st generic.TxStore, today generic.TimePoint) *timeoff.Service {
	t.Helper()
	svc := timeoff.NewService(st, metrics.New(prometheus.NewRegistry()), logging.Discard())
	svc.Clock = func() time.Time { return today.Time.Add(9 * time.Hour) }
	return svc
}

func newMemoryService(t *testing.T, today generic.TimePoint) (*timeoff.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return newTestService(t, mem, today), mem
}

func addEmployee(t *testing.T, st generic.Store, id, name string, join generic.TimePoint) generic.Employee {
	t.Helper()
	emp := generic.Employee{
		ID:        generic.EmployeeID(id),
		Name:      name,
		JoinDate:  join,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveEmployee(context.Background(), emp))
	return emp
}

func addGrant(t *testing.T, st generic.Store, id, empID string, granted, used string, validFrom, expiry generic.TimePoint) generic.Grant {
	t.Helper()
	g := generic.Grant{
		ID:         generic.GrantID(id),
		EmployeeID: generic.EmployeeID(empID),
		Granted:    days(granted),
		Used:       days(used),
		ValidFrom:  validFrom,
		Expiry:     expiry,
		Reason:     "test grant",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.InsertGrant(context.Background(), g))
	return g
}

func grantByID(t *testing.T, st generic.Store, empID string, id string) generic.Grant {
	t.Helper()
	grants, err := st.ListGrants(context.Background(), generic.EmployeeID(empID))
	require.NoError(t, err)
	for _, g := range grants {
		if g.ID == generic.GrantID(id) {
			return g
		}
	}
	t.Fatalf("grant %s not found", id)
	return generic.Grant{}
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

var errDiskFull = errors.New("disk full")

// faultyStore wraps a memory store and hands WithTx callbacks a view whose
// writes fail for the configured employee.
type faultyStore struct {
	*store.Memory
	failUpdateUsed   bool
	failInsertGrant  generic.EmployeeID
	failStatusUpdate bool
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return f.Memory.WithTx(ctx, func(tx generic.Store) error {
		return fn(&faultyTx{Store: tx, parent: f})
	})
}

func (f *faultyStore) UpdateRequestStatus(ctx context.Context, id generic.RequestID, status generic.RequestStatus) error {
	if f.failStatusUpdate {
		return errDiskFull
	}
	return f.Memory.UpdateRequestStatus(ctx, id, status)
}

type faultyTx struct {
	generic.Store
	parent *faultyStore
}

func (f *faultyTx) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	if f.parent.failUpdateUsed {
		return errDiskFull
	}
	return f.Store.UpdateUsed(ctx, id, used)
}

func (f *faultyTx) InsertGrant(ctx context.Context, g generic.Grant) error {
	if f.parent.failInsertGrant != "" && g.EmployeeID == f.parent.failInsertGrant {
		return errDiskFull
	}
	return f.Store.InsertGrant(ctx, g)
}

// countingTx fails every UpdateUsed after the first failAfter calls.
type countingTx struct {
	generic.Store
	failAfter int
	calls     *int
}

func (c *countingTx) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	*c.calls++
	if *c.calls > c.failAfter {
		return errDiskFull
	}
	return c.Store.UpdateUsed(ctx, id, used)
}

// staleStore answers HasAutoGrant from a snapshot taken before a concurrent
// accrual run, so every owed grant looks missing.
type staleStore struct {
	*store.Memory
}

func (s *staleStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx generic.Store) error {
		return fn(&staleTx{Store: tx})
	})
}

type staleTx struct {
	generic.Store
}

func (staleTx) HasAutoGrant(context.Context, generic.EmployeeID, generic.TimePoint, string) (bool, error) {
	return false, nil
}
