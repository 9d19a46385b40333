package timeoff

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/metrics"
)

// =============================================================================
// SERVICE - Entry point used by the HTTP layer
// =============================================================================

// Service wires the store, clock and observability into the leave
// operations. Every dependency is explicit; there is no shared client.
type Service struct {
	Store    generic.TxStore
	Ledger   *GrantLedger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Clock    func() time.Time
	Location *time.Location
}

func NewService(store generic.TxStore, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		Store:    store,
		Ledger:   NewGrantLedger(store),
		Metrics:  m,
		Logger:   logger,
		Clock:    time.Now,
		Location: time.UTC,
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

// Today is the current calendar date in the service's time zone.
func (s *Service) Today() generic.TimePoint {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	if s.Clock == nil {
		return generic.Today(loc)
	}
	return generic.DateOf(s.Clock().In(loc))
}

// logger prefers the request-scoped logger over the service logger.
func (s *Service) logger(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() || s.Logger == nil {
		return l
	}
	return s.Logger
}

// =============================================================================
// ACCRUAL
// =============================================================================

// RunAccrualCheck runs the accrual job as of today.
func (s *Service) RunAccrualCheck(ctx context.Context) (AccrualCheckResult, error) {
	start := time.Now()
	result, err := RunAccrualCheck(ctx, s.Store, s.Today())
	s.Metrics.ObserveAccrualRun(start, result.GrantsInserted, len(result.Failures))

	logger := s.logger(ctx)
	if err != nil {
		logger.Error("accrual check failed", "error", err)
		return result, err
	}
	for _, f := range result.Failures {
		logger.Warn("accrual check employee failed", "detail", f)
	}
	logger.Info("accrual check finished",
		"date", result.Date.String(),
		"employees", result.EmployeesChecked,
		"inserted", result.GrantsInserted,
		"failures", len(result.Failures),
	)
	return result, nil
}

// Entitlements previews the schedule for an employee as of asOf
// (today when zero).
func (s *Service) Entitlements(ctx context.Context, employeeID generic.EmployeeID, asOf generic.TimePoint) ([]Entitlement, error) {
	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, generic.StoreFailure(err)
	}
	if asOf.IsZero() {
		asOf = s.Today()
	}
	return ComputeEntitlements(emp.JoinDate, asOf), nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (s *Service) GrantManual(ctx context.Context, in ManualGrant) (generic.Grant, error) {
	g, err := s.Ledger.GrantManual(ctx, in)
	if err != nil {
		return g, err
	}
	s.Metrics.IncrementManualGrant()
	s.logger(ctx).Info("manual grant created",
		"employee_id", g.EmployeeID, "grant_id", g.ID, "days", g.Granted.String())
	return g, nil
}

func (s *Service) ExpiringGrants(ctx context.Context, horizonDays int) ([]generic.Grant, error) {
	return s.Ledger.ListExpiringWithin(ctx, horizonDays, s.Today())
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// NewEmployee describes an employee to create. A zero JoinDate means today.
type NewEmployee struct {
	Name     string
	Email    string
	JoinDate generic.TimePoint
}

func (s *Service) CreateEmployee(ctx context.Context, in NewEmployee) (generic.Employee, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return generic.Employee{}, generic.Invalid("name", "is required")
	}
	joinDate := in.JoinDate
	if joinDate.IsZero() {
		joinDate = s.Today()
	}
	emp := generic.Employee{
		ID:        generic.EmployeeID(uuid.NewString()),
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		JoinDate:  joinDate,
		CreatedAt: s.now(),
	}
	if err := s.Store.SaveEmployee(ctx, emp); err != nil {
		return generic.Employee{}, generic.StoreFailure(err)
	}
	s.logger(ctx).Info("employee created", "employee_id", emp.ID)
	return emp, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	emps, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, generic.StoreFailure(err)
	}
	return emps, nil
}

// DeleteEmployee removes the employee with their grants and requests.
func (s *Service) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	if err := s.Store.DeleteEmployee(ctx, id); err != nil {
		return generic.StoreFailure(err)
	}
	s.logger(ctx).Info("employee deleted", "employee_id", id)
	return nil
}

// EmployeeDetail is everything an administrator sees for one employee.
type EmployeeDetail struct {
	Employee  generic.Employee
	Grants    []generic.Grant
	Balance   decimal.Decimal
	Requests  []generic.ConsumptionRequest
	NextGrant *Entitlement
}

func (s *Service) EmployeeDetail(ctx context.Context, id generic.EmployeeID) (EmployeeDetail, error) {
	emp, err := s.Store.GetEmployee(ctx, id)
	if err != nil {
		return EmployeeDetail{}, generic.StoreFailure(err)
	}
	grants, err := s.Store.ListGrants(ctx, id)
	if err != nil {
		return EmployeeDetail{}, generic.StoreFailure(err)
	}
	reqs, err := s.Store.ListRequests(ctx, id)
	if err != nil {
		return EmployeeDetail{}, generic.StoreFailure(err)
	}

	today := s.Today()
	detail := EmployeeDetail{
		Employee: *emp,
		Grants:   grants,
		Balance:  Balance(grants, today),
		Requests: reqs,
	}
	// next grant within a year
	if ent, ok := NextUpcomingEntitlement(emp.JoinDate, today, 366); ok {
		detail.NextGrant = &ent
	}
	return detail, nil
}
