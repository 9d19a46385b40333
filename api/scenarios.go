/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the store with realistic data for demos. Every date is
	relative to the service's today, so a scenario always shows the same
	picture whenever it is loaded.

AVAILABLE SCENARIOS:

	new-hire:         Joined almost six months ago; first grant is upcoming
	first-milestone:  Past the six-month mark, first grant partly used
	veteran:          Eight years of service, fixed and yearly grants
	expiring-manual:  Manual grant about to expire, drained first
	team:             All of the above at once

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create employees through the service
 3. Run the accrual check to materialize owed grants
 4. Optionally add manual grants and consumptions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "veteran"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioLoader func(ctx context.Context, svc *timeoff.Service) error

type scenario struct {
	ScenarioDTO
	load scenarioLoader
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "new-hire",
			Name:        "New Hire",
			Description: "Joined almost six months ago; the first 10-day grant is due within the dashboard window",
		},
		load: loadNewHireScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "first-milestone",
			Name:        "First Milestone",
			Description: "Seven months of service, first grant materialized and partly consumed",
		},
		load: loadFirstMilestoneScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "veteran",
			Name:        "Veteran",
			Description: "Eight years of service with every fixed milestone and two yearly grants",
		},
		load: loadVeteranScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "expiring-manual",
			Name:        "Expiring Manual Grant",
			Description: "A manual grant expiring within ten days is consumed before longer-lived grants",
		},
		load: loadExpiringManualScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "team",
			Name:        "Team",
			Description: "All scenarios loaded together for the dashboard",
		},
		load: loadTeamScenario,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	// one load at a time; a concurrent reset would interleave employees
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := s.load(ctx, h.Service); err != nil {
		writeServiceError(w, r, fmt.Errorf("load scenario %s: %w", s.ID, err))
		return
	}
	h.currentScenario = s.ID

	employees, err := h.Service.ListEmployees(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Scenario:  s.ScenarioDTO,
		Employees: toEmployeeDTOs(employees),
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func loadNewHireScenario(ctx context.Context, svc *timeoff.Service) error {
	today := svc.Today()
	_, err := svc.CreateEmployee(ctx, timeoff.NewEmployee{
		Name:     "Hana Sato",
		Email:    "hana.sato@example.com",
		JoinDate: today.AddMonths(-6).AddDays(10),
	})
	return err
}

func loadFirstMilestoneScenario(ctx context.Context, svc *timeoff.Service) error {
	today := svc.Today()
	emp, err := svc.CreateEmployee(ctx, timeoff.NewEmployee{
		Name:     "Kenji Mori",
		Email:    "kenji.mori@example.com",
		JoinDate: today.AddMonths(-7),
	})
	if err != nil {
		return err
	}
	if _, err := svc.RunAccrualCheck(ctx); err != nil {
		return err
	}

	consumptions := []timeoff.ConsumeInput{
		{EmployeeID: emp.ID, Date: today.AddDays(-10), Mode: generic.ModeFullDay, Reason: "family event"},
		{EmployeeID: emp.ID, Date: today.AddDays(-3), Mode: generic.ModeHalfDay, Reason: "dentist"},
		{EmployeeID: emp.ID, Date: today.AddDays(-1), Mode: generic.ModeHourly, Hours: 2, Reason: "bank"},
	}
	return consume(ctx, svc, consumptions)
}

func loadVeteranScenario(ctx context.Context, svc *timeoff.Service) error {
	today := svc.Today()
	emp, err := svc.CreateEmployee(ctx, timeoff.NewEmployee{
		Name:     "Yuki Tanaka",
		Email:    "yuki.tanaka@example.com",
		JoinDate: today.AddMonths(-96),
	})
	if err != nil {
		return err
	}
	if _, err := svc.RunAccrualCheck(ctx); err != nil {
		return err
	}

	var consumptions []timeoff.ConsumeInput
	for i := 1; i <= 5; i++ {
		consumptions = append(consumptions, timeoff.ConsumeInput{
			EmployeeID: emp.ID,
			Date:       today.AddDays(-7 * i),
			Mode:       generic.ModeFullDay,
			Reason:     "summer holiday",
		})
	}
	return consume(ctx, svc, consumptions)
}

func loadExpiringManualScenario(ctx context.Context, svc *timeoff.Service) error {
	today := svc.Today()
	emp, err := svc.CreateEmployee(ctx, timeoff.NewEmployee{
		Name:     "Sora Ito",
		Email:    "sora.ito@example.com",
		JoinDate: today.AddMonths(-20),
	})
	if err != nil {
		return err
	}
	if _, err := svc.RunAccrualCheck(ctx); err != nil {
		return err
	}

	if _, err := svc.GrantManual(ctx, timeoff.ManualGrant{
		EmployeeID: emp.ID,
		Days:       decimal.NewFromInt(3),
		ValidFrom:  today.AddMonths(-3),
		Expiry:     today.AddDays(10),
		Reason:     "compensatory leave for weekend release",
	}); err != nil {
		return err
	}
	// Already expired: visible in the grant list, never counted or drawn.
	if _, err := svc.GrantManual(ctx, timeoff.ManualGrant{
		EmployeeID: emp.ID,
		Days:       decimal.NewFromInt(2),
		ValidFrom:  today.AddMonths(-14),
		Expiry:     today.AddMonths(-2),
		Reason:     "holiday exchange",
	}); err != nil {
		return err
	}

	return consume(ctx, svc, []timeoff.ConsumeInput{
		{EmployeeID: emp.ID, Date: today, Mode: generic.ModeFullDay, Reason: "moving day"},
	})
}

func loadTeamScenario(ctx context.Context, svc *timeoff.Service) error {
	for _, load := range []scenarioLoader{
		loadNewHireScenario,
		loadFirstMilestoneScenario,
		loadVeteranScenario,
		loadExpiringManualScenario,
	} {
		if err := load(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

func consume(ctx context.Context, svc *timeoff.Service, inputs []timeoff.ConsumeInput) error {
	for _, in := range inputs {
		if _, _, err := svc.ConsumeLeave(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
