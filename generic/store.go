/*
store.go - Persistence interfaces for employees, grants and requests

PURPOSE:
  Defines the boundary between the engine and the database. Every core
  operation receives its store explicitly; there is no package-level client.

KEY INTERFACES:
  EmployeeStore: employee records
  GrantStore:    grant rows, the row lock used by the allocator, and the
                 dedup lookup used by the accrual job
  RequestStore:  consumption requests and their status
  TxStore:       Store + WithTx for all-or-nothing units of work

MUTATION RULES:
  - Grants are inserted (accrual job, manual grant) and their Used amount
    is updated (allocator). Nothing else changes a grant.
  - Requests are inserted pending and moved once to approved/rejected.

TRANSACTIONS:
  WithTx runs fn against a transaction-bound Store. If fn returns an error
  every write made through that Store is rolled back. LockGrants inside a
  transaction serializes concurrent allocations for the same employee.

IMPLEMENTATIONS:
  - generic/store/memory.go: in-memory, for tests and the memory driver
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, emp Employee) error

	// GetEmployee returns ErrEmployeeNotFound when the ID is unknown.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	ListEmployees(ctx context.Context) ([]Employee, error)
	DeleteEmployee(ctx context.Context, id EmployeeID) error
}

type GrantStore interface {
	InsertGrant(ctx context.Context, g Grant) error

	// ListGrants returns the employee's grants ordered by valid-from.
	// An empty employeeID lists every grant.
	ListGrants(ctx context.Context, employeeID EmployeeID) ([]Grant, error)

	// LockGrants is ListGrants for one employee that also locks the rows
	// until the surrounding transaction ends.
	LockGrants(ctx context.Context, employeeID EmployeeID) ([]Grant, error)

	// UpdateUsed sets the used amount of a grant.
	UpdateUsed(ctx context.Context, id GrantID, used decimal.Decimal) error

	// HasAutoGrant reports whether the employee has a grant valid from
	// validFrom whose reason contains marker.
	HasAutoGrant(ctx context.Context, employeeID EmployeeID, validFrom TimePoint, marker string) (bool, error)
}

type RequestStore interface {
	// InsertRequest persists r with status pending.
	InsertRequest(ctx context.Context, r ConsumptionRequest) error

	// UpdateRequestStatus moves a pending request to a terminal status.
	// Returns ErrRequestFinalized if the request is no longer pending.
	UpdateRequestStatus(ctx context.Context, id RequestID, status RequestStatus) error

	GetRequest(ctx context.Context, id RequestID) (*ConsumptionRequest, error)
	ListRequests(ctx context.Context, employeeID EmployeeID) ([]ConsumptionRequest, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	EmployeeStore
	GrantStore
	RequestStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
