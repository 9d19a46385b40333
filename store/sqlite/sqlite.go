/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Persists employees, leave grants and consumption requests. This is the
  default driver: a single file, no server, good for one HR team.

KEY TABLES:
  employees:      employee records (join date as YYYY-MM-DD, nullable)
  leave_grants:   one row per grant; days_granted/days_used as decimal text
  leave_requests: consumption requests and their status

INDEXES:
  - idx_leave_grants_employee: per-employee grant listing (hot path)
  - idx_leave_grants_expiry:   expiring-grants projection
  - idx_leave_grants_auto:     at most one automated grant per
                               (employee, valid_from)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction, which is what serializes concurrent allocations for
  the same employee. Transactions also begin IMMEDIATE so a second process
  on the same file waits instead of failing mid-transaction.

  The pool is capped at one connection: ":memory:" databases are
  per-connection, and SQLite has a single writer anyway.

MIGRATION:
  Schema is applied on New() with golang-migrate from the embedded
  migrations package.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/sqlite/migrations"
)

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies pending embedded migrations.
func (s *Store) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// LOCKED ENTRY POINTS - Store methods take the mutex, queries do the work
// =============================================================================

func (s *Store) q() *queries { return &queries{db: s.db} }

func (s *Store) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().SaveEmployee(ctx, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListEmployees(ctx)
}

func (s *Store) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().DeleteEmployee(ctx, id)
}

func (s *Store) InsertGrant(ctx context.Context, g generic.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().InsertGrant(ctx, g)
}

func (s *Store) ListGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListGrants(ctx, employeeID)
}

// LockGrants outside WithTx is a plain read.
func (s *Store) LockGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().LockGrants(ctx, employeeID)
}

func (s *Store) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateUsed(ctx, id, used)
}

func (s *Store) HasAutoGrant(ctx context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().HasAutoGrant(ctx, employeeID, validFrom, marker)
}

func (s *Store) InsertRequest(ctx context.Context, r generic.ConsumptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().InsertRequest(ctx, r)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id generic.RequestID, status generic.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateRequestStatus(ctx, id, status)
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListRequests(ctx, employeeID)
}

// Reset deletes all data. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"leave_requests", "leave_grants", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Store   = (*queries)(nil)
)
