// Package metrics exposes Prometheus collectors for the leave engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Consumption outcomes recorded by ObserveConsumption.
const (
	OutcomeApproved     = "approved"
	OutcomeInsufficient = "insufficient_balance"
	OutcomeFailed       = "store_failure"
)

// Metrics tracks accrual runs and consumption outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AccrualRuns       prometheus.Counter
	AccrualFailures   prometheus.Counter
	GrantsInserted    prometheus.Counter
	AccrualDuration   prometheus.Histogram
	ConsumptionsTotal *prometheus.CounterVec
	DaysConsumed      prometheus.Counter
	ManualGrantsTotal prometheus.Counter
}

// New registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AccrualRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "leave_accrual_runs_total",
			Help: "Total number of accrual check runs",
		}),
		AccrualFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "leave_accrual_employee_failures_total",
			Help: "Employees whose accrual check failed",
		}),
		GrantsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "leave_auto_grants_inserted_total",
			Help: "Automated grants inserted by the accrual check",
		}),
		AccrualDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leave_accrual_duration_seconds",
			Help:    "Duration of accrual check runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ConsumptionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_consumptions_total",
			Help: "Consumption requests by outcome",
		}, []string{"outcome"}),
		DaysConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leave_days_consumed_total",
			Help: "Leave days debited from grants",
		}),
		ManualGrantsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "leave_manual_grants_total",
			Help: "Grants created by administrators",
		}),
	}
}

// ObserveAccrualRun records one accrual check.
// Call with time.Now() at the start of the run.
func (m *Metrics) ObserveAccrualRun(start time.Time, inserted, failures int) {
	if m == nil {
		return
	}
	m.AccrualRuns.Inc()
	m.GrantsInserted.Add(float64(inserted))
	m.AccrualFailures.Add(float64(failures))
	m.AccrualDuration.Observe(time.Since(start).Seconds())
}

// ObserveConsumption records the outcome of a consumption request.
// days is only counted for approved requests.
func (m *Metrics) ObserveConsumption(outcome string, days decimal.Decimal) {
	if m == nil {
		return
	}
	m.ConsumptionsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeApproved {
		m.DaysConsumed.Add(days.InexactFloat64())
	}
}

func (m *Metrics) IncrementManualGrant() {
	if m == nil {
		return
	}
	m.ManualGrantsTotal.Inc()
}
