// Package rebalance implements the continuous simulate-then-commit load
// rebalancer. It moves at most one patient per department per invocation and
// only when the simulated balance score strictly improves, so repeated
// invocations on an unchanged department are no-ops.
package rebalance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
	"github.com/hospiq-ai/platform/pkg/scoring"
)

const maxCandidateNoShow = 0.25

// Store is the persistence surface of one rebalancing pass; the clinic
// repository implements it.
type Store interface {
	DepartmentDoctors(ctx context.Context, department string) ([]models.Doctor, error)
	DoctorLoads(ctx context.Context, department string) (map[uuid.UUID]int, error)
	ShiftCandidates(ctx context.Context, doctorID uuid.UUID, maxNoShow float64) ([]models.Patient, error)
	ShiftPatient(ctx context.Context, patientID, toDoctor uuid.UUID, at time.Time) error
	AppendReassignmentLog(ctx context.Context, log *models.ReassignmentLog) error
	Settings(ctx context.Context) (*models.AISettings, error)
	Departments(ctx context.Context) ([]string, error)
}

type Service struct {
	store Store
	now   func() time.Time

	deptLocks sync.Map
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Outcome reports what one pass did, for logging and the HTTP trigger.
type Outcome struct {
	Department string     `json:"department"`
	Shifted    bool       `json:"shifted"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Rebalance runs one simulate-then-commit pass for a department.
func (s *Service) Rebalance(ctx context.Context, department string) (*Outcome, error) {
	lock := s.lockFor(department)
	lock.Lock()
	defer lock.Unlock()

	outcome := &Outcome{Department: department}

	doctors, err := s.store.DepartmentDoctors(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if len(doctors) < 2 {
		return outcome, nil
	}

	loads, err := s.store.DoctorLoads(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("doctor loads: %w", err)
	}

	highest, lowest := extremes(loads)
	if loads[highest]-loads[lowest] < 1 {
		// Already balanced within tolerance.
		return outcome, nil
	}

	currentScore := scoring.BalanceScore(loadedValues(loads))

	// Simulate the shift on a copy of the snapshot; commit only on strict
	// improvement so the system cannot oscillate around equal scores.
	simulated := make(map[uuid.UUID]int, len(loads))
	for id, l := range loads {
		simulated[id] = l
	}
	simulated[highest]--
	simulated[lowest]++
	simulatedScore := scoring.BalanceScore(loadedValues(simulated))

	if simulatedScore <= currentScore {
		logger.Log.WithFields(map[string]interface{}{
			"department":      department,
			"current_score":   currentScore,
			"simulated_score": simulatedScore,
		}).Debug("shift would not improve balance")
		return outcome, nil
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	cooldown := time.Duration(settings.CooldownMinutes) * time.Minute

	candidates, err := s.store.ShiftCandidates(ctx, highest, maxCandidateNoShow)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	now := s.now()
	var patient *models.Patient
	for i := range candidates {
		last := candidates[i].LastReassignedAt
		if last != nil && now.Sub(*last) < cooldown {
			// Recently shifted; skip to prevent thrashing.
			continue
		}
		patient = &candidates[i]
		break
	}
	if patient == nil {
		return outcome, nil
	}

	if err := s.store.ShiftPatient(ctx, patient.ID, lowest, now); err != nil {
		return nil, fmt.Errorf("shift patient: %w", err)
	}

	reason := fmt.Sprintf(
		"Patient %s shifted from doctor %s to doctor %s due to load imbalance (%d -> %d vs %d -> %d patients)",
		patient.Name, highest, lowest,
		loads[highest], loads[highest]-1,
		loads[lowest], loads[lowest]+1,
	)
	if err := s.store.AppendReassignmentLog(ctx, &models.ReassignmentLog{
		Department: department,
		PatientID:  patient.ID,
		FromDoctor: highest,
		ToDoctor:   lowest,
		Reason:     reason,
		CreatedAt:  now.UTC(),
	}); err != nil {
		return nil, fmt.Errorf("append reassignment log: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"department":  department,
		"patient_id":  patient.ID,
		"from_doctor": highest,
		"to_doctor":   lowest,
	}).Info("patient reassigned")

	outcome.Shifted = true
	outcome.PatientID = &patient.ID
	outcome.Reason = reason
	return outcome, nil
}

// RebalanceAll sweeps every department; a department's failure is logged and
// skipped.
func (s *Service) RebalanceAll(ctx context.Context) {
	departments, err := s.store.Departments(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list departments")
		return
	}
	for _, department := range departments {
		if _, err := s.Rebalance(ctx, department); err != nil {
			logger.Log.WithError(err).WithField("department", department).Error("rebalance pass failed")
		}
	}
}

func (s *Service) lockFor(department string) *sync.Mutex {
	lock, _ := s.deptLocks.LoadOrStore(department, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// extremes returns the most and least loaded doctors. Ties resolve to the
// first seen; map order makes that arbitrary but stable enough because the
// improvement gate rejects meaningless shifts anyway.
func extremes(loads map[uuid.UUID]int) (highest, lowest uuid.UUID) {
	first := true
	for id, l := range loads {
		if first {
			highest, lowest = id, id
			first = false
			continue
		}
		if l > loads[highest] {
			highest = id
		}
		if l < loads[lowest] {
			lowest = id
		}
	}
	return highest, lowest
}

// loadedValues keeps only doctors that currently carry load, matching the
// balance score's definition.
func loadedValues(loads map[uuid.UUID]int) []int {
	values := make([]int, 0, len(loads))
	for _, l := range loads {
		if l > 0 {
			values = append(values, l)
		}
	}
	return values
}
