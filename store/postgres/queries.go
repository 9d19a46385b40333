package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

// querier is satisfied by the pool and by pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
}

// --- Employees ---

func (q *queries) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `INSERT INTO employees (id, name, email, join_date, created_at)
                   VALUES ($1, $2, $3, $4, $5)
                   ON CONFLICT (id) DO UPDATE
                   SET name = EXCLUDED.name, email = EXCLUDED.email`
	_, err := q.db.Exec(ctx, query, string(emp.ID), emp.Name, emp.Email, nullDate(emp.JoinDate), createdAt)
	return err
}

const employeeColumns = `id, name, email, COALESCE(join_date::text, ''), created_at`

func (q *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := q.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=$1`, string(id))
	emp, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generic.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &emp, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := q.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *queries) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM employees WHERE id=$1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrEmployeeNotFound
	}
	return nil
}

func scanEmployee(row pgx.Row) (generic.Employee, error) {
	var (
		emp      generic.Employee
		id       string
		joinDate string
	)
	if err := row.Scan(&id, &emp.Name, &emp.Email, &joinDate, &emp.CreatedAt); err != nil {
		return generic.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.JoinDate = parseDate(joinDate)
	return emp, nil
}

// --- Grants ---

func (q *queries) InsertGrant(ctx context.Context, g generic.Grant) error {
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// DO NOTHING keeps an enclosing transaction usable when a concurrent
	// accrual run already inserted the same automated grant.
	const query = `INSERT INTO leave_grants
                   (id, employee_id, days_granted, days_used, valid_from, expiry_date, reason, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                   ON CONFLICT (employee_id, valid_from) WHERE reason LIKE 'auto-grant%' DO NOTHING`
	tag, err := q.db.Exec(ctx, query,
		string(g.ID), string(g.EmployeeID),
		g.Granted.String(), g.Used.String(),
		g.ValidFrom.String(), g.Expiry.String(),
		g.Reason, createdAt,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrDuplicateGrant
	}
	return nil
}

const grantColumns = `id, employee_id, days_granted::text, days_used::text,
                      valid_from::text, expiry_date::text, reason, created_at`

func (q *queries) ListGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	if employeeID == "" {
		return q.queryGrants(ctx, `SELECT `+grantColumns+` FROM leave_grants ORDER BY valid_from, id`)
	}
	return q.queryGrants(ctx,
		`SELECT `+grantColumns+` FROM leave_grants WHERE employee_id=$1 ORDER BY valid_from, id`,
		string(employeeID))
}

// LockGrants holds row locks on the employee's grants until the
// surrounding transaction ends.
func (q *queries) LockGrants(ctx context.Context, employeeID generic.EmployeeID) ([]generic.Grant, error) {
	return q.queryGrants(ctx,
		`SELECT `+grantColumns+` FROM leave_grants WHERE employee_id=$1
         ORDER BY expiry_date, valid_from, id FOR UPDATE`,
		string(employeeID))
}

func (q *queries) UpdateUsed(ctx context.Context, id generic.GrantID, used decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE leave_grants SET days_used=$1 WHERE id=$2`, used.String(), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrGrantNotFound
	}
	return nil
}

func (q *queries) HasAutoGrant(ctx context.Context, employeeID generic.EmployeeID, validFrom generic.TimePoint, marker string) (bool, error) {
	const query = `SELECT EXISTS (
                       SELECT 1 FROM leave_grants
                       WHERE employee_id=$1 AND valid_from=$2 AND strpos(reason, $3) > 0
                   )`
	var exists bool
	if err := q.db.QueryRow(ctx, query, string(employeeID), validFrom.String(), marker).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (q *queries) queryGrants(ctx context.Context, query string, args ...any) ([]generic.Grant, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.Grant
	for rows.Next() {
		var (
			g                 generic.Grant
			id, employeeID    string
			granted, used     string
			validFrom, expiry string
		)
		if err := rows.Scan(&id, &employeeID, &granted, &used, &validFrom, &expiry, &g.Reason, &g.CreatedAt); err != nil {
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
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- Requests ---

func (q *queries) InsertRequest(ctx context.Context, r generic.ConsumptionRequest) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `INSERT INTO leave_requests
                   (id, employee_id, request_date, reason, amount, mode, hours, status, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $8)`
	_, err := q.db.Exec(ctx, query,
		string(r.ID), string(r.EmployeeID), r.Date.String(), r.Reason,
		r.Amount.String(), string(r.Mode), r.Hours, createdAt,
	)
	return mapConstraintError(err)
}

func (q *queries) UpdateRequestStatus(ctx context.Context, id generic.RequestID, status generic.RequestStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE leave_requests SET status=$1, updated_at=NOW() WHERE id=$2 AND status='pending'`,
		string(status), string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = q.db.QueryRow(ctx, `SELECT status FROM leave_requests WHERE id=$1`, string(id)).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return generic.ErrRequestNotFound
		}
		return err
	}
	return generic.ErrRequestFinalized
}

const requestColumns = `id, employee_id, request_date::text, reason, amount::text, mode, hours, status, created_at, updated_at`

func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (*generic.ConsumptionRequest, error) {
	row := q.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id=$1`, string(id))
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generic.ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListRequests(ctx context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE employee_id=$1
         ORDER BY request_date DESC, created_at DESC`,
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRequest(row pgx.Row) (generic.ConsumptionRequest, error) {
	var (
		r                           generic.ConsumptionRequest
		id, employeeID, requestDate string
		amount, mode, status        string
	)
	err := row.Scan(&id, &employeeID, &requestDate, &r.Reason, &amount, &mode, &r.Hours, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return generic.ConsumptionRequest{}, err
	}
	r.ID = generic.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.Date = parseDate(requestDate)
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return generic.ConsumptionRequest{}, fmt.Errorf("request %s amount: %w", id, err)
	}
	r.Mode = generic.ConsumptionMode(mode)
	r.Status = generic.RequestStatus(status)
	return r, nil
}

// --- Helpers ---

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return generic.ErrEmployeeNotFound
		case codeUniqueViolation:
			if pgErr.ConstraintName == "idx_leave_grants_auto" {
				return generic.ErrDuplicateGrant
			}
		}
	}
	return err
}

// nullDate returns nil for the zero date so the column stays NULL.
func nullDate(tp generic.TimePoint) any {
	if tp.IsZero() {
		return nil
	}
	return tp.String()
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
