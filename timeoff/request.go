/*
request.go - Leave consumption workflow

PURPOSE:
  Turns an administrator's "employee takes leave" entry into a persisted
  request and a grant allocation.

MODES:
  full  1 day
  half  0.5 day
  time  hours/8 day, hours in [1, 7]; missing hours default to 1

LIFECYCLE:
  1. Validate input (before any store access)
  2. Insert the request as pending
  3. In one transaction: allocate across grants, mark approved
  4. If step 3 fails, mark rejected outside the failed transaction

  A request never stays pending after ConsumeLeave returns, unless the
  rejection write itself fails (logged, original error still returned).
  There is no retry before rejecting.
*/
package timeoff

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/metrics"
)

const (
	minHours     = 1
	maxHours     = generic.HoursPerDay - 1
	defaultHours = 1
)

var halfDay = decimal.NewFromFloat(0.5)

// ConsumeInput is one consumption entry.
type ConsumeInput struct {
	EmployeeID generic.EmployeeID
	Date       generic.TimePoint
	Reason     string
	Mode       generic.ConsumptionMode
	Hours      int
}

// Amount validates the input and returns the days it consumes along with
// the normalized hours (zero unless Mode is hourly).
func (in ConsumeInput) Amount() (decimal.Decimal, int, error) {
	if in.EmployeeID == "" {
		return decimal.Zero, 0, generic.Invalid("employee_id", "is required")
	}
	if in.Date.IsZero() {
		return decimal.Zero, 0, generic.Invalid("date", "is required")
	}

	switch in.Mode {
	case generic.ModeFullDay:
		return decimal.NewFromInt(1), 0, nil
	case generic.ModeHalfDay:
		return halfDay, 0, nil
	case generic.ModeHourly:
		hours := in.Hours
		if hours == 0 {
			hours = defaultHours
		}
		if hours < minHours || hours > maxHours {
			return decimal.Zero, 0, generic.Invalid("hours", "must be between %d and %d, got %d", minHours, maxHours, hours)
		}
		return generic.HoursToDays(hours), hours, nil
	default:
		return decimal.Zero, 0, generic.Invalid("mode", "must be one of full, half, time; got %q", in.Mode)
	}
}

// ConsumeLeave records and allocates a consumption. On failure the returned
// request carries status rejected.
func (s *Service) ConsumeLeave(ctx context.Context, in ConsumeInput) (generic.ConsumptionRequest, Allocation, error) {
	amount, hours, err := in.Amount()
	if err != nil {
		return generic.ConsumptionRequest{}, Allocation{}, err
	}

	if _, err := s.Store.GetEmployee(ctx, in.EmployeeID); err != nil {
		return generic.ConsumptionRequest{}, Allocation{}, generic.StoreFailure(err)
	}

	now := s.now()
	req := generic.ConsumptionRequest{
		ID:         generic.RequestID(uuid.NewString()),
		EmployeeID: in.EmployeeID,
		Date:       in.Date,
		Reason:     strings.TrimSpace(in.Reason),
		Amount:     amount,
		Mode:       in.Mode,
		Hours:      hours,
		Status:     generic.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.InsertRequest(ctx, req); err != nil {
		return generic.ConsumptionRequest{}, Allocation{}, generic.StoreFailure(err)
	}

	var alloc Allocation
	err = s.Store.WithTx(ctx, func(tx generic.Store) error {
		a, err := Allocate(ctx, tx, in.EmployeeID, amount, in.Date, req.Reason)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, req.ID, generic.StatusApproved); err != nil {
			return err
		}
		alloc = a
		return nil
	})

	logger := s.logger(ctx).With("employee_id", in.EmployeeID, "request_id", req.ID, "amount", amount.String())

	if err != nil {
		s.reject(ctx, req.ID)
		req.Status = generic.StatusRejected
		req.UpdatedAt = s.now()

		if errors.Is(err, generic.ErrInsufficientBalance) {
			logger.Info("consumption rejected", "error", err)
			s.Metrics.ObserveConsumption(metrics.OutcomeInsufficient, amount)
			return req, Allocation{}, err
		}
		logger.Error("consumption failed", "error", err)
		s.Metrics.ObserveConsumption(metrics.OutcomeFailed, amount)
		return req, Allocation{}, generic.StoreFailure(err)
	}

	req.Status = generic.StatusApproved
	req.UpdatedAt = s.now()
	logger.Info("consumption approved", "grants", len(alloc.Debits))
	s.Metrics.ObserveConsumption(metrics.OutcomeApproved, amount)
	return req, alloc, nil
}

// reject marks a request rejected. Failure is logged, never returned: the
// caller already has the error that caused the rejection.
func (s *Service) reject(ctx context.Context, id generic.RequestID) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.Store.UpdateRequestStatus(ctx, id, generic.StatusRejected); err != nil {
		s.logger(ctx).Warn("failed to mark request rejected", "request_id", id, "error", err)
	}
}

// ListRequests returns the employee's requests, newest date first.
func (s *Service) ListRequests(ctx context.Context, employeeID generic.EmployeeID) ([]generic.ConsumptionRequest, error) {
	if _, err := s.Store.GetEmployee(ctx, employeeID); err != nil {
		return nil, generic.StoreFailure(err)
	}
	reqs, err := s.Store.ListRequests(ctx, employeeID)
	if err != nil {
		return nil, generic.StoreFailure(err)
	}
	return reqs, nil
}
