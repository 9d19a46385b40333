package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/timeoff"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(scenarios))

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.JSONEq(t, `null`, rec.Body.String())
}

func TestLoadScenario_EachLoads(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[LoadScenarioResponse](t, rec)
			assert.Equal(t, sc.ID, resp.Scenario.ID)
			assert.NotEmpty(t, resp.Employees)

			rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
			assert.Equal(t, sc.ID, decode[ScenarioDTO](t, rec).ID)

			// every consumption in a scenario must have been approved
			for _, emp := range resp.Employees {
				reqs, err := s.svc.ListRequests(context.Background(), generic.EmployeeID(emp.ID))
				require.NoError(t, err)
				for _, r := range reqs {
					assert.Equal(t, generic.StatusApproved, r.Status, "%s %s", emp.Name, r.Reason)
				}
			}
		})
	}
}

func TestLoadScenario_ResetsPreviousData(t *testing.T) {
	// GIVEN: An employee created by hand
	// WHEN: Loading the veteran scenario
	// THEN: Only the scenario's employee remains

	s := newTestServer(t)
	s.createEmployee(t, "Leftover", "2020-01-01")

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "veteran"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LoadScenarioResponse](t, rec)
	require.Len(t, resp.Employees, 1)
	assert.Equal(t, "Yuki Tanaka", resp.Employees[0].Name)

	// 6 fixed + 2 yearly grants, 5 days used
	balance, err := s.svc.Ledger.CurrentBalance(context.Background(), generic.EmployeeID(resp.Employees[0].ID), s.svc.Today())
	require.NoError(t, err)
	assert.Equal(t, "116", balance.String())
}

func TestLoadScenario_ExpiringManualDrainedFirst(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "expiring-manual"})
	require.Equal(t, http.StatusOK, rec.Code)
	emp := decode[LoadScenarioResponse](t, rec).Employees[0]

	grants, err := s.mem.ListGrants(context.Background(), generic.EmployeeID(emp.ID))
	require.NoError(t, err)
	for _, g := range grants {
		if g.Reason == "compensatory leave for weekend release" {
			assert.Equal(t, "1", g.Used.String())
		} else {
			assert.True(t, g.Used.IsZero(), g.Reason)
		}
	}

	rec = s.do(t, http.MethodGet, "/api/dashboard", nil)
	d := decode[DashboardDTO](t, rec)
	require.Len(t, d.ExpiringGrants, 1)
	assert.Equal(t, "2", d.ExpiringGrants[0].Remaining)
}

func TestLoadScenario_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A store without Reset cannot load scenarios.
	h := &Handler{Service: timeoff.NewService(s.mem, nil, logging.Discard())}
	router := NewRouter(h, RouterOptions{Logger: logging.Discard()})
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "veteran"})
	require.Equal(t, http.StatusOK, rec.Code)

	s.router = router
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "veteran"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
