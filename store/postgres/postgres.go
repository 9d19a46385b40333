/*
Package postgres provides a PostgreSQL-backed implementation of generic.TxStore.

PURPOSE:
  Same tables as the SQLite driver, for deployments that share one
  database between several engine processes.

KEY TABLES:
  employees:      employee records (join_date DATE, nullable)
  leave_grants:   one row per grant; days_granted/days_used NUMERIC(10,3)
  leave_requests: consumption requests and their status

CONCURRENCY:
  LockGrants issues SELECT ... FOR UPDATE, so two transactions allocating
  for the same employee queue on the grant rows instead of both reading
  the old balance. Outside WithTx it is a plain read.

  NUMERIC columns are read back as text and parsed into decimal.Decimal;
  no float64 ever touches an amount.

SCHEMA:
  Created on New() with idempotent CREATE ... IF NOT EXISTS statements.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// pgxPool is the subset of *pgxpool.Pool the store needs.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Store implements generic.TxStore on PostgreSQL.
type Store struct {
	pool   pgxPool
	logger *slog.Logger
}

// New connects to dsn and creates the schema.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{pool: pool, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres store ready", slog.String("host", cfg.ConnConfig.Host), slog.String("database", cfg.ConnConfig.Database))
	return store, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS employees (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            join_date DATE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS leave_grants (
            id TEXT PRIMARY KEY,
            employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
            days_granted NUMERIC(10,3) NOT NULL CHECK (days_granted >= 0),
            days_used NUMERIC(10,3) NOT NULL DEFAULT 0 CHECK (days_used >= 0),
            valid_from DATE NOT NULL,
            expiry_date DATE NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (days_used <= days_granted)
        )`,
	`CREATE TABLE IF NOT EXISTS leave_requests (
            id TEXT PRIMARY KEY,
            employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
            request_date DATE NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            amount NUMERIC(10,3) NOT NULL,
            mode TEXT NOT NULL CHECK (mode IN ('full', 'half', 'time')),
            hours INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE INDEX IF NOT EXISTS idx_leave_grants_employee ON leave_grants(employee_id, valid_from)`,
	`CREATE INDEX IF NOT EXISTS idx_leave_grants_expiry ON leave_grants(expiry_date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_grants_auto ON leave_grants(employee_id, valid_from) WHERE reason LIKE 'auto-grant%'`,
	`CREATE INDEX IF NOT EXISTS idx_leave_requests_employee ON leave_requests(employee_id, request_date DESC)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Reset deletes all data. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE leave_requests, leave_grants, employees`); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// =============================================================================
// POOL-BOUND ENTRY POINTS
// =============================================================================

func (s *Store) q() *queries { return &queries{db: s.pool} }

func (s *Store) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	return s.q().SaveEmployee(ctx, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return s.q().GetEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	return s.q().ListEmployees(ctx)
}

func (s *Store) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	return s.q().DeleteEmployee(ctx, id)
}

func (s *Store) InsertGrant(ctx context.Context, g generic.Grant) error {
	return s.q().InsertGrant(ctx, g)
}

func (s *Store) ListGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return s.q().ListGrants(ctx, employeeID)
}

func (s *Store) LockGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return s.q().LockGrants(ctx, employeeID)
}

func (s *Store) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	return s.q().UpdateUsed(ctx, id, used)
}

func (s *Store) HasAutoGrant(ctx context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	return s.q().HasAutoGrant(ctx, employeeID, validFrom, marker)
}

func (s *Store) InsertRequest(ctx context.Context, r generic.ConsumptionRequest) error {
	return s.q().InsertRequest(ctx, r)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id generic.RequestID, status generic.RequestStatus) error {
	return s.q().UpdateRequestStatus(ctx, id, status)
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	return s.q().GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	return s.q().ListRequests(ctx, employeeID)
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn inside a transaction boundary. The transaction is
// committed only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("rollback failed", slog.Any("error", rbErr))
			}
			return
		}
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit transaction: %w", err)
		}
	}()

	err = fn(&queries{db: tx})
	return err
}

var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Store   = (*queries)(nil)
)
