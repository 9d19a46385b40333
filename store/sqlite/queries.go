package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs the SQL without any locking. Store wraps it with the mutex;
// inside WithTx it is bound to the *sql.Tx and the mutex is already held.
type queries struct {
	db querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (q *queries) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO employees (id, name, email, join_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`
	_, err := q.db.ExecContext(ctx, query,
		string(emp.ID), emp.Name, emp.Email,
		nullDate(emp.JoinDate),
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

const employeeColumns = "id, name, email, join_date, created_at"

func (q *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", string(id))
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []generic.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// DeleteEmployee removes an employee; grants and requests cascade.
func (q *queries) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return generic.ErrEmployeeNotFound
	}
	return nil
}

func scanEmployee(row scanner) (generic.Employee, error) {
	var (
		emp       generic.Employee
		id        string
		joinDate  sql.NullString
		createdAt string
	)
	if err := row.Scan(&id, &emp.Name, &emp.Email, &joinDate, &createdAt); err != nil {
		return generic.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.JoinDate = parseDate(joinDate.String)
	emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return emp, nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (q *queries) InsertGrant(ctx context.Context, g generic.Grant) error {
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO leave_grants
			(id, employee_id, days_granted, days_used, valid_from, expiry_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		string(g.ID), string(g.EmployeeID),
		g.Granted.String(), g.Used.String(),
		g.ValidFrom.String(), g.Expiry.String(),
		g.Reason,
		createdAt.UTC().Format(time.RFC3339),
	)
	if isForeignKeyError(err) {
		return generic.ErrEmployeeNotFound
	}
	if isAutoGrantConflict(err) {
		return generic.ErrDuplicateGrant
	}
	return err
}

const grantColumns = "id, employee_id, days_granted, days_used, valid_from, expiry_date, reason, created_at"

func (q *queries) ListGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	if employeeID == "" {
		return q.queryGrants(ctx, "SELECT "+grantColumns+" FROM leave_grants ORDER BY valid_from, id")
	}
	return q.queryGrants(ctx,
		"SELECT "+grantColumns+" FROM leave_grants WHERE employee_id = ? ORDER BY valid_from, id",
		string(employeeID))
}

// LockGrants is a plain select: the surrounding IMMEDIATE transaction
// already holds SQLite's write lock.
func (q *queries) LockGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return q.queryGrants(ctx,
		"SELECT "+grantColumns+" FROM leave_grants WHERE employee_id = ? ORDER BY expiry_date, valid_from, id",
		string(employeeID))
}

func (q *queries) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	res, err := q.db.ExecContext(ctx, "UPDATE leave_grants SET days_used = ? WHERE id = ?", used.String(), string(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return generic.ErrGrantNotFound
	}
	return nil
}

func (q *queries) HasAutoGrant(ctx context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM leave_grants
		WHERE employee_id = ? AND valid_from = ? AND reason LIKE '%' || ? || '%'
	`
	var count int
	if err := q.db.QueryRowContext(ctx, query, string(employeeID), validFrom.String(), marker).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *queries) queryGrants(ctx context.Context, query string, args ...any) ([]generic.Grant, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []generic.Grant
	for rows.Next() {
		var (
			g                 generic.Grant
			id, employeeID    string
			granted, used     string
			validFrom, expiry string
			created           string
		)
		if err := rows.Scan(&id, &employeeID, &granted, &used, &validFrom, &expiry, &g.Reason, &created); err != nil {
			return nil, err
		}
		g.ID = generic.GrantID(id)
		g.EmployeeID = generic.EmployeeID(employeeID)
		if g.Granted, err = decimal.NewFromString(granted); err != nil {
			return nil, fmt.Errorf("grant %s days_granted: %w", id, err)
		}
		if g.Used, err = decimal.NewFromString(used); err != nil {
			return nil, fmt.Errorf("grant %s days_used: %w", id, err)
		}
		g.ValidFrom = parseDate(validFrom)
		g.Expiry = parseDate(expiry)
		g.CreatedAt, _ = time.Parse(time.RFC3339, created)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

func (q *queries) InsertRequest(ctx context.Context, r generic.ConsumptionRequest) error {
	now := time.Now().UTC()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO leave_requests
			(id, employee_id, request_date, reason, amount, mode, hours, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		string(r.ID), string(r.EmployeeID), r.Date.String(), r.Reason,
		r.Amount.String(), string(r.Mode), r.Hours,
		string(generic.StatusPending),
		createdAt.UTC().Format(time.RFC3339Nano),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if isForeignKeyError(err) {
		return generic.ErrEmployeeNotFound
	}
	return err
}

func (q *queries) UpdateRequestStatus(ctx context.Context, id generic.RequestID, status generic.RequestStatus) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE leave_requests SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'",
		string(status), time.Now().UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = q.db.QueryRowContext(ctx, "SELECT status FROM leave_requests WHERE id = ?", string(id)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	return generic.ErrRequestFinalized
}

const requestColumns = "id, employee_id, request_date, reason, amount, mode, hours, status, created_at, updated_at"

func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", string(id))
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListRequests(ctx context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE employee_id = ? ORDER BY request_date DESC, created_at DESC",
		string(employeeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.ConsumptionRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRequest(row scanner) (generic.ConsumptionRequest, error) {
	var (
		r                           generic.ConsumptionRequest
		id, employeeID, requestDate string
		amount, mode, status        string
		createdAt, updatedAt        string
	)
	if err := row.Scan(&id, &employeeID, &requestDate, &r.Reason, &amount, &mode, &r.Hours, &status, &createdAt, &updatedAt); err != nil {
		return generic.ConsumptionRequest{}, err
	}
	r.ID = generic.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.Date = parseDate(requestDate)
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return generic.ConsumptionRequest{}, fmt.Errorf("request %s amount: %w", id, err)
	}
	r.Amount = parsed
	r.Mode = generic.ConsumptionMode(mode)
	r.Status = generic.RequestStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return r, nil
}

// Helper functions

func nullDate(tp generic.TimePoint) sql.NullString {
	if tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseDate(s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	tp, err := generic.ParseTimePoint(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isAutoGrantConflict matches a violation of idx_leave_grants_auto, which
// SQLite reports by its columns.
func isAutoGrantConflict(err error) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), "leave_grants.valid_from")
}
