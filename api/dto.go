/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in generic/ and timeoff/ from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ENCODING:
  - Day amounts are decimal strings ("2.375"), never JSON floats
  - Dates are "YYYY-MM-DD"; a missing date is null
  - Lists are always arrays, never null

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	JoinDate  generic.TimePoint `json:"join_date"`
	CreatedAt string            `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	JoinDate generic.TimePoint `json:"join_date"`
}

// EmployeeDetailDTO is the employee page: grants, balance and history.
type EmployeeDetailDTO struct {
	EmployeeDTO
	Balance   string          `json:"balance"`
	Grants    []GrantDTO      `json:"grants"`
	Requests  []RequestDTO    `json:"requests"`
	NextGrant *EntitlementDTO `json:"next_grant"`
}

// =============================================================================
// GRANTS
// =============================================================================

type GrantDTO struct {
	ID          string            `json:"id"`
	EmployeeID  string            `json:"employee_id"`
	DaysGranted string            `json:"days_granted"`
	DaysUsed    string            `json:"days_used"`
	Remaining   string            `json:"remaining"`
	ValidFrom   generic.TimePoint `json:"valid_from"`
	ExpiryDate  generic.TimePoint `json:"expiry_date"`
	Reason      string            `json:"reason"`
	Automated   bool              `json:"automated"`
	Expired     bool              `json:"expired"`
}

// ManualGrantRequest accepts days as a JSON number or string. Days is
// required; an explicit zero is allowed.
type ManualGrantRequest struct {
	Days      decimal.NullDecimal `json:"days"`
	ValidFrom generic.TimePoint   `json:"valid_from"`
	Expiry    generic.TimePoint   `json:"expiry_date"`
	Reason    string              `json:"reason"`
}

type EntitlementDTO struct {
	Months         int               `json:"months"`
	Days           string            `json:"days"`
	GrantDate      generic.TimePoint `json:"grant_date"`
	ExpiryDate     generic.TimePoint `json:"expiry_date"`
	YearsOfService string            `json:"years_of_service"`
	Reason         string            `json:"reason"`
}

// =============================================================================
// CONSUMPTION
// =============================================================================

type ConsumeRequest struct {
	Date   generic.TimePoint `json:"date"`
	Reason string            `json:"reason"`
	Mode   string            `json:"mode"`
	Hours  int               `json:"hours,omitempty"`
}

type RequestDTO struct {
	ID         string            `json:"id"`
	EmployeeID string            `json:"employee_id"`
	Date       generic.TimePoint `json:"date"`
	Reason     string            `json:"reason"`
	Amount     string            `json:"amount"`
	Mode       string            `json:"mode"`
	Hours      int               `json:"hours,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  string            `json:"created_at,omitempty"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type DebitDTO struct {
	GrantID        string `json:"grant_id"`
	Amount         string `json:"amount"`
	RemainingAfter string `json:"remaining_after"`
}

type ConsumeResponse struct {
	Request     RequestDTO `json:"request"`
	Allocations []DebitDTO `json:"allocations"`
	Balance     string     `json:"balance"`
}

// =============================================================================
// ADMIN / REPORTING
// =============================================================================

type AccrualCheckDTO struct {
	Date             generic.TimePoint `json:"date"`
	EmployeesChecked int               `json:"employees_checked"`
	GrantsInserted   int               `json:"grants_inserted"`
	Insertions       []string          `json:"insertions"`
	Failures         []string          `json:"failures"`
	Message          string            `json:"message"`
}

type UpcomingGrantDTO struct {
	EmployeeID string            `json:"employee_id"`
	Name       string            `json:"name"`
	Date       generic.TimePoint `json:"date"`
	Days       string            `json:"days"`
}

type ExpiringGrantDTO struct {
	GrantID    string            `json:"grant_id"`
	EmployeeID string            `json:"employee_id"`
	Name       string            `json:"name"`
	Date       generic.TimePoint `json:"date"`
	Remaining  string            `json:"remaining"`
}

type EmployeeStatDTO struct {
	EmployeeID     string `json:"employee_id"`
	Name           string `json:"name"`
	TotalGranted   string `json:"total_granted"`
	TotalUsed      string `json:"total_used"`
	TotalRemaining string `json:"total_remaining"`
	UsageRate      string `json:"usage_rate"`
}

type DashboardDTO struct {
	Date           generic.TimePoint  `json:"date"`
	HorizonDays    int                `json:"horizon_days"`
	UpcomingGrants []UpcomingGrantDTO `json:"upcoming_grants"`
	ExpiringGrants []ExpiringGrantDTO `json:"expiring_grants"`
	EmployeeStats  []EmployeeStatDTO  `json:"employee_stats"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario  ScenarioDTO   `json:"scenario"`
	Employees []EmployeeDTO `json:"employees"`
}

// ErrorResponse is the body of every non-2xx reply. Available and
// Requested are set only for insufficient balance.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Available string `json:"available,omitempty"`
	Requested string `json:"requested,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        string(e.ID),
		Name:      e.Name,
		Email:     e.Email,
		JoinDate:  e.JoinDate,
		CreatedAt: formatTimestamp(e.CreatedAt),
	}
}

func toEmployeeDTOs(emps []generic.Employee) []EmployeeDTO {
	out := make([]EmployeeDTO, len(emps))
	for i, e := range emps {
		out[i] = toEmployeeDTO(e)
	}
	return out
}

func toGrantDTO(g generic.Grant, asOf generic.TimePoint) GrantDTO {
	return GrantDTO{
		ID:          string(g.ID),
		EmployeeID:  string(g.EmployeeID),
		DaysGranted: g.Granted.String(),
		DaysUsed:    g.Used.String(),
		Remaining:   g.Remaining().String(),
		ValidFrom:   g.ValidFrom,
		ExpiryDate:  g.Expiry,
		Reason:      g.Reason,
		Automated:   timeoff.IsAutoGrantReason(g.Reason),
		Expired:     g.IsExpired(asOf),
	}
}

func toGrantDTOs(grants []generic.Grant, asOf generic.TimePoint) []GrantDTO {
	out := make([]GrantDTO, len(grants))
	for i, g := range grants {
		out[i] = toGrantDTO(g, asOf)
	}
	return out
}

func toEntitlementDTO(e timeoff.Entitlement) EntitlementDTO {
	return EntitlementDTO{
		Months:         e.Months,
		Days:           e.Days.String(),
		GrantDate:      e.GrantDate,
		ExpiryDate:     e.ExpiryDate,
		YearsOfService: e.YearsOfService.String(),
		Reason:         e.Reason(),
	}
}

func toRequestDTO(r generic.ConsumptionRequest) RequestDTO {
	return RequestDTO{
		ID:         string(r.ID),
		EmployeeID: string(r.EmployeeID),
		Date:       r.Date,
		Reason:     r.Reason,
		Amount:     r.Amount.String(),
		Mode:       string(r.Mode),
		Hours:      r.Hours,
		Status:     string(r.Status),
		CreatedAt:  formatTimestamp(r.CreatedAt),
		UpdatedAt:  formatTimestamp(r.UpdatedAt),
	}
}

func toRequestDTOs(reqs []generic.ConsumptionRequest) []RequestDTO {
	out := make([]RequestDTO, len(reqs))
	for i, r := range reqs {
		out[i] = toRequestDTO(r)
	}
	return out
}

func toDebitDTOs(debits []timeoff.Debit) []DebitDTO {
	out := make([]DebitDTO, len(debits))
	for i, d := range debits {
		out[i] = DebitDTO{
			GrantID:        string(d.GrantID),
			Amount:         d.Amount.String(),
			RemainingAfter: d.RemainingAfter.String(),
		}
	}
	return out
}

func toAccrualCheckDTO(r timeoff.AccrualCheckResult) AccrualCheckDTO {
	dto := AccrualCheckDTO{
		Date:             r.Date,
		EmployeesChecked: r.EmployeesChecked,
		GrantsInserted:   r.GrantsInserted,
		Insertions:       r.Insertions,
		Failures:         r.Failures,
		Message:          r.Message(),
	}
	if dto.Insertions == nil {
		dto.Insertions = []string{}
	}
	if dto.Failures == nil {
		dto.Failures = []string{}
	}
	return dto
}

func toDashboardDTO(d timeoff.Dashboard) DashboardDTO {
	dto := DashboardDTO{
		Date:           d.Date,
		HorizonDays:    d.HorizonDays,
		UpcomingGrants: make([]UpcomingGrantDTO, len(d.UpcomingGrants)),
		ExpiringGrants: make([]ExpiringGrantDTO, len(d.ExpiringGrants)),
		EmployeeStats:  make([]EmployeeStatDTO, len(d.EmployeeStats)),
	}
	for i, u := range d.UpcomingGrants {
		dto.UpcomingGrants[i] = UpcomingGrantDTO{
			EmployeeID: string(u.EmployeeID),
			Name:       u.Name,
			Date:       u.Date,
			Days:       u.Days.String(),
		}
	}
	for i, e := range d.ExpiringGrants {
		dto.ExpiringGrants[i] = ExpiringGrantDTO{
			GrantID:    string(e.GrantID),
			EmployeeID: string(e.EmployeeID),
			Name:       e.Name,
			Date:       e.Date,
			Remaining:  e.Remaining.String(),
		}
	}
	for i, s := range d.EmployeeStats {
		dto.EmployeeStats[i] = EmployeeStatDTO{
			EmployeeID:     string(s.EmployeeID),
			Name:           s.Name,
			TotalGranted:   s.TotalGranted.String(),
			TotalUsed:      s.TotalUsed.String(),
			TotalRemaining: s.TotalRemaining.String(),
			UsageRate:      s.UsageRate,
		}
	}
	return dto
}
