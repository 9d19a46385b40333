/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes timeoff.Service over REST. Handles HTTP request/response and
  JSON serialization; every rule lives in the timeoff package.

ENDPOINTS:
  Employees:
    GET    /api/employees                        List employees
    POST   /api/employees                        Create employee
    GET    /api/employees/{id}                   Detail: grants, balance, requests
    DELETE /api/employees/{id}                   Delete (grants/requests cascade)

  Grants:
    GET    /api/employees/{id}/grants            List grants
    POST   /api/employees/{id}/grants            Manual grant
    GET    /api/employees/{id}/entitlements      Schedule preview (?as_of=)
    GET    /api/grants/expiring                  Expiring within ?days=

  Consumption:
    POST   /api/employees/{id}/consumptions      Consume leave (full/half/time)
    GET    /api/employees/{id}/requests          Request history

  Admin / reporting:
    POST   /api/admin/accrual-check              Run the accrual job
    GET    /api/dashboard                        Upcoming/expiring/stats (?days=)

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the service
  3. Serialize response, or map the error to a status

ERROR HANDLING:
  - 400: invalid input, malformed body or query
  - 404: employee / request not found
  - 409: insufficient balance (with available and requested), finalized request
  - 500: store failures and anything unclassified

SECURITY NOTE:
  No authentication or authorization. Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can drop all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger is implemented by stores with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *timeoff.Service

	// Resetter enables the scenario loader; nil disables it.
	Resetter Resetter
	Pinger   Pinger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. Reset and ping support are picked up from
// the service's store when it provides them.
func NewHandler(svc *timeoff.Service) *Handler {
	h := &Handler{Service: svc}
	if r, ok := svc.Store.(Resetter); ok {
		h.Resetter = r
	}
	if p, ok := svc.Store.(Pinger); ok {
		h.Pinger = p
	}
	return h
}

// Healthz reports liveness, and store reachability when the store can ping.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Service.ListEmployees(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(employees))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	emp, err := h.Service.CreateEmployee(r.Context(), timeoff.NewEmployee{
		Name:     req.Name,
		Email:    req.Email,
		JoinDate: req.JoinDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns the employee with grants, balance, request history
// and the next automated grant due within a year.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.EmployeeDetail(r.Context(), employeeID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dto := EmployeeDetailDTO{
		EmployeeDTO: toEmployeeDTO(detail.Employee),
		Balance:     detail.Balance.String(),
		Grants:      toGrantDTOs(detail.Grants, h.Service.Today()),
		Requests:    toRequestDTOs(detail.Requests),
	}
	if detail.NextGrant != nil {
		next := toEntitlementDTO(*detail.NextGrant)
		dto.NextGrant = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteEmployee(r.Context(), employeeID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GRANT HANDLERS
// =============================================================================

func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.Service.Ledger.ListGrants(r.Context(), employeeID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTOs(grants, h.Service.Today()))
}

// CreateGrant records a manual grant.
// POST /api/employees/{id}/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req ManualGrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Days.Valid {
		writeServiceError(w, r, generic.Invalid("days", "is required"))
		return
	}

	g, err := h.Service.GrantManual(r.Context(), timeoff.ManualGrant{
		EmployeeID: employeeID(r),
		Days:       req.Days.Decimal,
		ValidFrom:  req.ValidFrom,
		Expiry:     req.Expiry,
		Reason:     req.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGrantDTO(g, h.Service.Today()))
}

// GetEntitlements previews the accrual schedule as of ?as_of (default today).
func (h *Handler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	var asOf generic.TimePoint
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := generic.ParseTimePoint(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of", err)
			return
		}
		asOf = parsed
	}

	ents, err := h.Service.Entitlements(r.Context(), employeeID(r), asOf)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]EntitlementDTO, len(ents))
	for i, e := range ents {
		out[i] = toEntitlementDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListExpiringGrants(w http.ResponseWriter, r *http.Request) {
	days, ok := queryDays(w, r)
	if !ok {
		return
	}
	if days == 0 {
		days = timeoff.DefaultHorizonDays
	}

	grants, err := h.Service.ExpiringGrants(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTOs(grants, h.Service.Today()))
}

// =============================================================================
// CONSUMPTION HANDLERS
// =============================================================================

// Consume records a consumption and allocates it across the employee's
// grants, oldest expiry first.
// POST /api/employees/{id}/consumptions
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := employeeID(r)
	cr, alloc, err := h.Service.ConsumeLeave(ctx, timeoff.ConsumeInput{
		EmployeeID: id,
		Date:       req.Date,
		Reason:     req.Reason,
		Mode:       generic.ConsumptionMode(req.Mode),
		Hours:      req.Hours,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	balance, err := h.Service.Ledger.CurrentBalance(ctx, id, h.Service.Today())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ConsumeResponse{
		Request:     toRequestDTO(cr),
		Allocations: toDebitDTOs(alloc.Debits),
		Balance:     balance.String(),
	})
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Service.ListRequests(r.Context(), employeeID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// =============================================================================
// ADMIN / REPORTING HANDLERS
// =============================================================================

// RunAccrualCheck materializes every owed automated grant as of today.
// POST /api/admin/accrual-check
func (h *Handler) RunAccrualCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.RunAccrualCheck(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualCheckDTO(result))
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	days, ok := queryDays(w, r)
	if !ok {
		return
	}
	d, err := h.Service.Dashboard(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeID(r *http.Request) generic.EmployeeID {
	return generic.EmployeeID(chi.URLParam(r, "id"))
}

// queryDays parses ?days=. Absent means 0; the caller picks the default.
func queryDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return 0, true
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be a positive integer", err)
		return 0, false
	}
	return days, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *generic.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient balance",
			Details:   err.Error(),
			Available: insufficient.Available.String(),
			Requested: insufficient.Requested.String(),
		})
	case errors.Is(err, generic.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, generic.ErrRequestFinalized):
		writeError(w, http.StatusConflict, "request already finalized", err)
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
