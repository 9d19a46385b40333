// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[generic.EmployeeID]generic.Employee
	grants    map[generic.GrantID]generic.Grant
	requests  map[generic.RequestID]generic.ConsumptionRequest
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[generic.EmployeeID]generic.Employee),
		grants:    make(map[generic.GrantID]generic.Grant),
		requests:  make(map[generic.RequestID]generic.ConsumptionRequest),
	}
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = make(map[generic.EmployeeID]generic.Employee)
	m.grants = make(map[generic.GrantID]generic.Grant)
	m.requests = make(map[generic.RequestID]generic.ConsumptionRequest)
	return nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(), nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id generic.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEmployeeLocked(id)
}

func (m *Memory) InsertGrant(_ context.Context, g generic.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertGrantLocked(g)
}

func (m *Memory) ListGrants(_ context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listGrantsLocked(employeeID), nil
}

// LockGrants outside WithTx is a plain read; inside WithTx the store mutex
// is already held for the whole transaction.
func (m *Memory) LockGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return m.ListGrants(ctx, employeeID)
}

func (m *Memory) UpdateUsed(_ context.Context, id generic.GrantID, used decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateUsedLocked(id, used)
}

func (m *Memory) HasAutoGrant(_ context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasAutoGrantLocked(employeeID, validFrom, marker), nil
}

func (m *Memory) InsertRequest(_ context.Context, r generic.ConsumptionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRequestLocked(r)
}

func (m *Memory) UpdateRequestStatus(_ context.Context, id generic.RequestID, status generic.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestStatusLocked(id, status)
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) ListRequests(_ context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(employeeID), nil
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) getEmployeeLocked(id generic.EmployeeID) (*generic.Employee, error) {
	emp, ok := m.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &emp, nil
}

func (m *Memory) listEmployeesLocked() []generic.Employee {
	result := make([]generic.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// deleteEmployeeLocked cascades to the employee's grants and requests,
// matching the foreign keys of the SQL stores.
func (m *Memory) deleteEmployeeLocked(id generic.EmployeeID) error {
	if _, ok := m.employees[id]; !ok {
		return generic.ErrEmployeeNotFound
	}
	delete(m.employees, id)
	for gid, g := range m.grants {
		if g.EmployeeID == id {
			delete(m.grants, gid)
		}
	}
	for rid, r := range m.requests {
		if r.EmployeeID == id {
			delete(m.requests, rid)
		}
	}
	return nil
}

func (m *Memory) insertGrantLocked(g generic.Grant) error {
	if _, ok := m.employees[g.EmployeeID]; !ok {
		return generic.ErrEmployeeNotFound
	}
	if strings.HasPrefix(g.Reason, generic.AutoGrantPrefix) {
		for _, other := range m.grants {
			if other.EmployeeID == g.EmployeeID && other.ValidFrom.Equal(g.ValidFrom) &&
				strings.HasPrefix(other.Reason, generic.AutoGrantPrefix) {
				return generic.ErrDuplicateGrant
			}
		}
	}
	m.grants[g.ID] = g
	return nil
}

func (m *Memory) listGrantsLocked(employeeID generic.EmployeeID) []generic.Grant {
	var result []generic.Grant
	for _, g := range m.grants {
		if employeeID == "" || g.EmployeeID == employeeID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ValidFrom.Equal(result[j].ValidFrom) {
			return result[i].ValidFrom.Before(result[j].ValidFrom)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) updateUsedLocked(id generic.GrantID, used decimal.Decimal) error {
	g, ok := m.grants[id]
	if !ok {
		return generic.ErrGrantNotFound
	}
	g.Used = used
	m.grants[id] = g
	return nil
}

func (m *Memory) hasAutoGrantLocked(employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) bool {
	for _, g := range m.grants {
		if g.EmployeeID == employeeID && g.ValidFrom.Equal(validFrom) && strings.Contains(g.Reason, marker) {
			return true
		}
	}
	return false
}

func (m *Memory) insertRequestLocked(r generic.ConsumptionRequest) error {
	if _, ok := m.employees[r.EmployeeID]; !ok {
		return generic.ErrEmployeeNotFound
	}
	r.Status = generic.StatusPending
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) updateRequestStatusLocked(id generic.RequestID, status generic.RequestStatus) error {
	r, ok := m.requests[id]
	if !ok {
		return generic.ErrRequestNotFound
	}
	if r.Status.IsTerminal() {
		return generic.ErrRequestFinalized
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	m.requests[id] = r
	return nil
}

func (m *Memory) getRequestLocked(id generic.RequestID) (*generic.ConsumptionRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	return &r, nil
}

func (m *Memory) listRequestsLocked(employeeID generic.EmployeeID) []generic.ConsumptionRequest {
	var result []generic.ConsumptionRequest
	for _, r := range m.requests {
		if r.EmployeeID == employeeID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error; the mutex is held for the
// whole of fn, so transactions are fully serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees map[generic.EmployeeID]generic.Employee
	grants    map[generic.GrantID]generic.Grant
	requests  map[generic.RequestID]generic.ConsumptionRequest
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		employees: make(map[generic.EmployeeID]generic.Employee, len(m.employees)),
		grants:    make(map[generic.GrantID]generic.Grant, len(m.grants)),
		requests:  make(map[generic.RequestID]generic.ConsumptionRequest, len(m.requests)),
	}
	for k, v := range m.employees {
		s.employees[k] = v
	}
	for k, v := range m.grants {
		s.grants[k] = v
	}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.employees = s.employees
	m.grants = s.grants
	m.requests = s.requests
}

// txMemoryView is the Store handed to WithTx callbacks. The parent mutex is
// already held, so every method uses the locked helpers directly.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, emp generic.Employee) error {
	tv.parent.employees[emp.ID] = emp
	return nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return tv.parent.getEmployeeLocked(id)
}

func (tv *txMemoryView) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	return tv.parent.listEmployeesLocked(), nil
}

func (tv *txMemoryView) DeleteEmployee(_ context.Context, id generic.EmployeeID) error {
	return tv.parent.deleteEmployeeLocked(id)
}

func (tv *txMemoryView) InsertGrant(_ context.Context, g generic.Grant) error {
	return tv.parent.insertGrantLocked(g)
}

func (tv *txMemoryView) ListGrants(_ context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return tv.parent.listGrantsLocked(employeeID), nil
}

func (tv *txMemoryView) LockGrants(_ context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return tv.parent.listGrantsLocked(employeeID), nil
}

func (tv *txMemoryView) UpdateUsed(_ context.Context, id generic.GrantID, used decimal.Decimal) error {
	return tv.parent.updateUsedLocked(id, used)
}

func (tv *txMemoryView) HasAutoGrant(_ context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	return tv.parent.hasAutoGrantLocked(employeeID, validFrom, marker), nil
}

func (tv *txMemoryView) InsertRequest(_ context.Context, r generic.ConsumptionRequest) error {
	return tv.parent.insertRequestLocked(r)
}

func (tv *txMemoryView) UpdateRequestStatus(_ context.Context, id generic.RequestID, status generic.RequestStatus) error {
	return tv.parent.updateRequestStatusLocked(id, status)
}

func (tv *txMemoryView) GetRequest(_ context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txMemoryView) ListRequests(_ context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	return tv.parent.listRequestsLocked(employeeID), nil
}

var (
	_ generic.TxStore = (*Memory)(nil)
	_ generic.Store   = (*txMemoryView)(nil)
)
