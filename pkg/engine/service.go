package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
	"github.com/hospiq-ai/platform/pkg/forecast"
	"github.com/hospiq-ai/platform/pkg/lap"
	"github.com/hospiq-ai/platform/pkg/predict"
	"github.com/hospiq-ai/platform/pkg/rl"
	"github.com/hospiq-ai/platform/pkg/scoring"
)

// Store is the persistence surface one optimization pass needs. The clinic
// repository is the production implementation.
type Store interface {
	ActivePatients(ctx context.Context, department string) ([]models.Patient, error)
	ActiveDoctors(ctx context.Context, department string) ([]models.Doctor, error)
	DoctorLoads(ctx context.Context, department string) (map[uuid.UUID]int, error)
	UpdateAssignment(ctx context.Context, patientID, doctorID uuid.UUID) error
	AppendExplanation(ctx context.Context, explanation *models.AssignmentExplanation) error
	Settings(ctx context.Context) (*models.AISettings, error)
	Departments(ctx context.Context) ([]string, error)
}

// Service runs the forecast -> weight-select -> assign -> score -> learn
// pass. Passes are serialized per department so the load snapshot taken at
// the start of a pass stays consistent until its assignments are committed.
type Service struct {
	store      Store
	forecaster *forecast.Forecaster
	selector   *rl.Selector
	duration   predict.DurationPredictor
	params     Params

	deptLocks sync.Map // department -> *sync.Mutex
}

func NewService(store Store, forecaster *forecast.Forecaster, selector *rl.Selector, duration predict.DurationPredictor, params Params) *Service {
	return &Service{
		store:      store,
		forecaster: forecaster,
		selector:   selector,
		duration:   duration,
		params:     params,
	}
}

// Result summarizes one committed optimization pass.
type Result struct {
	Department string  `json:"department"`
	State      string  `json:"state"`
	Action     string  `json:"action"`
	Forecast   float64 `json:"forecast"`
	Assigned   int     `json:"assigned"`
	Score      float64 `json:"score"`
}

// Optimize runs one full pass for a department. Empty patient or doctor sets
// are a successful no-op.
func (s *Service) Optimize(ctx context.Context, department string) (*Result, error) {
	lock := s.lockFor(department)
	lock.Lock()
	defer lock.Unlock()

	patients, err := s.store.ActivePatients(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	doctors, err := s.store.ActiveDoctors(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	if len(patients) == 0 || len(doctors) == 0 {
		logger.Log.WithFields(map[string]interface{}{
			"department": department,
			"patients":   len(patients),
			"doctors":    len(doctors),
		}).Debug("nothing to optimize")
		return &Result{Department: department}, nil
	}

	forecastValue := s.forecaster.NextHour(ctx, department)
	state := rl.StateFromForecast(forecastValue, s.params.LowStateThreshold, s.params.MediumStateThreshold)

	action, err := s.selector.ChooseAction(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("choose action: %w", err)
	}
	weights, ok := s.params.Actions[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}

	// One load snapshot for the whole pass: the cost matrix and the commit
	// phase must agree on the same view of doctor load.
	loads, err := s.store.DoctorLoads(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("snapshot loads: %w", err)
	}

	costs, perPatient := s.buildCostMatrix(patients, doctors, loads, weights)

	match, err := lap.Solve(costs)
	if err != nil {
		return nil, fmt.Errorf("solve assignment: %w", err)
	}

	assigned := 0
	for i, j := range match {
		if j < 0 {
			// More patients than doctors: the unmatched keep their prior
			// assignment untouched.
			continue
		}
		patient := patients[i]
		doctor := doctors[j]
		loadAtAssignment := loads[doctor.ID]

		if err := s.store.UpdateAssignment(ctx, patient.ID, doctor.ID); err != nil {
			return nil, fmt.Errorf("commit assignment: %w", err)
		}
		if err := s.store.AppendExplanation(ctx, &models.AssignmentExplanation{
			PatientID:         patient.ID,
			DoctorID:          doctor.ID,
			Department:        department,
			PredictedDuration: perPatient[i].predicted,
			DoctorLoad:        loadAtAssignment,
			NoShowProbability: patient.NoShowProbability,
			RLAction:          action,
			FinalCost:         round2(costs[i][j]),
			CreatedAt:         time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("append explanation: %w", err)
		}

		// Later pairs in this pass see the bumped load.
		loads[doctor.ID]++
		assigned++
	}

	score, err := s.OptimizationScore(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("score pass: %w", err)
	}
	nextState := rl.StateFromForecast(s.forecaster.NextHour(ctx, department), s.params.LowStateThreshold, s.params.MediumStateThreshold)
	if err := s.selector.Update(ctx, state, action, score, nextState); err != nil {
		return nil, fmt.Errorf("update q-table: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"department": department,
		"state":      state,
		"action":     action,
		"assigned":   assigned,
		"score":      score,
	}).Info("optimization pass committed")

	return &Result{
		Department: department,
		State:      state,
		Action:     action,
		Forecast:   forecastValue,
		Assigned:   assigned,
		Score:      score,
	}, nil
}

type patientEstimate struct {
	predicted float64
	expected  float64
}

// buildCostMatrix prices every patient/doctor pairing. Predictions run once
// per patient and loads come from the snapshot taken for this pass, never
// re-queried per cell.
func (s *Service) buildCostMatrix(patients []models.Patient, doctors []models.Doctor, loads map[uuid.UUID]int, weights ActionWeights) ([][]float64, []patientEstimate) {
	estimates := make([]patientEstimate, len(patients))
	for i, p := range patients {
		predicted, _ := s.duration.PredictDuration(p.Age, p.Oxygen, p.BP, p.Temperature, p.Department, p.Priority, p.Disease)
		estimates[i] = patientEstimate{
			predicted: predicted,
			expected:  predicted * (1 - p.NoShowProbability),
		}
	}

	costs := make([][]float64, len(patients))
	for i, p := range patients {
		row := make([]float64, len(doctors))
		var priorityBonus float64
		if p.Priority == models.PriorityHigh {
			priorityBonus = s.params.HighPriorityBonus
		}
		for j, d := range doctors {
			loadPenalty := float64(loads[d.ID]) * s.params.LoadPenaltyFactor
			row[j] = weights.Wait*estimates[i].expected + weights.Fairness*loadPenalty + priorityBonus
		}
		costs[i] = row
	}
	return costs, estimates
}

// OptimizationScore is the admin-visible health metric for a department and
// the reward fed back to the policy. Departments with no active patients
// score a full 100.
func (s *Service) OptimizationScore(ctx context.Context, department string) (float64, error) {
	patients, err := s.store.ActivePatients(ctx, department)
	if err != nil {
		return 0, err
	}
	if len(patients) == 0 {
		return 100, nil
	}

	fairnessIdx, err := s.FairnessIndex(ctx, department)
	if err != nil {
		return 0, err
	}

	var totalWait float64
	for _, p := range patients {
		totalWait += p.PredictedDuration
	}
	avgWait := totalWait / float64(len(patients))

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return 0, err
	}
	forecastValue := s.forecaster.NextHour(ctx, department)

	return scoring.OptimizationScore(fairnessIdx, avgWait, forecastValue, settings.FairnessWeight, settings.WaitWeight), nil
}

// FairnessIndex is the raw load spread across the department's doctors.
func (s *Service) FairnessIndex(ctx context.Context, department string) (int, error) {
	loads, err := s.store.DoctorLoads(ctx, department)
	if err != nil {
		return 0, err
	}
	values := make([]int, 0, len(loads))
	for _, l := range loads {
		values = append(values, l)
	}
	return scoring.FairnessIndex(values), nil
}

// RunGlobal sweeps every department: departments with an arrival surge
// forecast beyond the threshold are pre-optimized. A failing department is
// logged and skipped, never fatal to the sweep.
func (s *Service) RunGlobal(ctx context.Context) {
	departments, err := s.store.Departments(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list departments")
		return
	}

	for _, department := range departments {
		forecastValue := s.forecaster.NextHour(ctx, department)
		logger.Log.WithFields(map[string]interface{}{
			"department": department,
			"forecast":   forecastValue,
		}).Info("forecasted next hour arrivals")

		if forecastValue > s.params.PreOptimizeThreshold {
			if _, err := s.Optimize(ctx, department); err != nil {
				logger.Log.WithError(err).WithField("department", department).Error("pre-optimization failed")
				continue
			}
		}

		score, err := s.OptimizationScore(ctx, department)
		if err != nil {
			logger.Log.WithError(err).WithField("department", department).Error("failed to score department")
			continue
		}
		logger.Log.WithFields(map[string]interface{}{
			"department": department,
			"score":      score,
		}).Info("department optimization score")
	}
}

func (s *Service) lockFor(department string) *sync.Mutex {
	lock, _ := s.deptLocks.LoadOrStore(department, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
