package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
	"github.com/hospiq-ai/platform/pkg/predict"
	"github.com/hospiq-ai/platform/pkg/triage"
	"gorm.io/datatypes"
)

// Queue event types published to the event bus. The optimizer service
// consumes completion and overload events to trigger rebalancing.
const (
	EventPatientRegistered    = "patient.registered"
	EventPatientCompleted     = "patient.completed"
	EventDepartmentOverloaded = "department.overloaded"
)

// EventPublisher is satisfied by the kafka producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

var ErrInvalidWeights = fmt.Errorf("fairness_weight and wait_weight must sum to 1.0")

var doctorCodePrefixes = map[string]string{
	"General Medicine": "GM",
	"Cardiology":       "CR",
	"Neurology":        "NE",
	"Orthopedics":      "OR",
	"Pediatrics":       "PD",
}

// Service implements patient registration, doctor management and the
// admin-facing settings boundary. It owns no model state: predictors are
// injected so tests can stub them.
type Service struct {
	repo         *Repository
	duration     predict.DurationPredictor
	noShow       predict.NoShowPredictor
	events       EventPublisher
	shiftMinutes int
}

func NewService(repo *Repository, duration predict.DurationPredictor, noShow predict.NoShowPredictor, events EventPublisher, shiftMinutes int) *Service {
	if shiftMinutes <= 0 {
		shiftMinutes = 480
	}
	return &Service{
		repo:         repo,
		duration:     duration,
		noShow:       noShow,
		events:       events,
		shiftMinutes: shiftMinutes,
	}
}

type RegisterInput struct {
	Name        string  `json:"name"`
	DOB         string  `json:"dob"` // YYYY-MM-DD
	Gender      string  `json:"gender"`
	Phone       string  `json:"phone"`
	BloodGroup  string  `json:"blood_group"`
	Address     string  `json:"address"`
	Department  string  `json:"department"`
	Disease     string  `json:"disease"`
	Oxygen      float64 `json:"oxygen"`
	BP          float64 `json:"bp"`
	Temperature float64 `json:"temperature"`
}

type RegistrationResult struct {
	Patient             *models.Patient `json:"patient"`
	DoctorName          string          `json:"doctor_name"`
	QueueNumber         int             `json:"queue_number"`
	EstimatedWait       float64         `json:"estimated_wait_minutes"`
	AssignmentNote      string          `json:"assignment_note"`
	DurationExplanation []string        `json:"duration_explanation"`
	NoShowExplanation   []string        `json:"no_show_explanation"`
}

// RegisterPatient triages the vitals, predicts consultation duration and
// no-show risk, and seats the patient with the least-loaded active doctor of
// the department. The background optimizer refines this initial placement.
func (s *Service) RegisterPatient(ctx context.Context, input RegisterInput) (*RegistrationResult, error) {
	birthDate, err := time.Parse("2006-01-02", input.DOB)
	if err != nil {
		return nil, fmt.Errorf("invalid date of birth: %w", err)
	}
	age := yearsSince(birthDate, time.Now())

	priority := triage.Classify(age, input.Oxygen, input.Temperature, input.BP, input.Disease)
	status := triage.InitialStatus(priority)

	predictedMinutes, durationExplanation := s.duration.PredictDuration(
		age, input.Oxygen, input.BP, input.Temperature, input.Department, priority, input.Disease)
	noShowProb, noShowExplanation := s.noShow.PredictNoShow(age, priority, input.Department, predictedMinutes)

	doctor, load, err := s.leastLoadedDoctor(ctx, input.Department)
	if err != nil {
		return nil, err
	}

	patient := &models.Patient{
		ID:                  uuid.New(),
		Name:                input.Name,
		Age:                 age,
		Gender:              input.Gender,
		Phone:               input.Phone,
		BloodGroup:          input.BloodGroup,
		Address:             input.Address,
		Department:          input.Department,
		Disease:             input.Disease,
		Oxygen:              input.Oxygen,
		BP:                  input.BP,
		Temperature:         input.Temperature,
		Priority:            priority,
		Status:              status,
		PredictedDuration:   predictedMinutes,
		NoShowProbability:   noShowProb,
		DurationExplanation: mustJSON(durationExplanation),
		NoShowExplanation:   mustJSON(noShowExplanation),
		CreatedAt:           time.Now().UTC(),
	}

	assignmentNote := "No active doctor available in this department at this time."
	doctorName := "Not Assigned"
	if doctor != nil {
		patient.DoctorID = &doctor.ID
		doctorName = doctor.Name
		assignmentNote = fmt.Sprintf("Assigned to Dr. %s (lowest load: %d patients).", doctor.Name, load)
	}

	if err := s.repo.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	queueNumber, err := s.repo.QueuePosition(ctx, input.Department, patient.QueueSeq)
	if err != nil {
		return nil, fmt.Errorf("queue position: %w", err)
	}
	estimatedWait := float64(queueNumber-1) * predictedMinutes
	if estimatedWait < 0 {
		estimatedWait = 0
	}

	s.publish(ctx, EventPatientRegistered, map[string]interface{}{
		"patient_id": patient.ID.String(),
		"department": patient.Department,
		"priority":   patient.Priority,
	})

	return &RegistrationResult{
		Patient:             patient,
		DoctorName:          doctorName,
		QueueNumber:         queueNumber,
		EstimatedWait:       round2(estimatedWait),
		AssignmentNote:      assignmentNote,
		DurationExplanation: durationExplanation,
		NoShowExplanation:   noShowExplanation,
	}, nil
}

// CompletePatient marks the consultation done, folds the minutes into the
// doctor's cumulative stats and emits the completion event that triggers a
// synchronous rebalance of the department.
func (s *Service) CompletePatient(ctx context.Context, patientID uuid.UUID, minutes float64) error {
	patient, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if !patient.Active() {
		return fmt.Errorf("patient %s is not in an active state", patientID)
	}
	if minutes <= 0 {
		minutes = patient.PredictedDuration
	}

	if err := s.repo.CompletePatient(ctx, patientID, minutes, time.Now().UTC()); err != nil {
		return fmt.Errorf("complete patient: %w", err)
	}
	if patient.DoctorID != nil {
		if err := s.repo.AddConsultation(ctx, *patient.DoctorID, minutes); err != nil {
			return fmt.Errorf("update doctor stats: %w", err)
		}
	}

	s.publish(ctx, EventPatientCompleted, map[string]interface{}{
		"patient_id": patientID.String(),
		"department": patient.Department,
		"minutes":    minutes,
	})
	return nil
}

func (s *Service) MarkEmergency(ctx context.Context, patientID uuid.UUID) error {
	return s.repo.MarkEmergency(ctx, patientID)
}

type LiveStatus struct {
	Patient       *models.Patient `json:"patient"`
	QueuePosition int             `json:"queue_position"`
	EstimatedWait float64         `json:"estimated_wait_minutes"`
}

func (s *Service) PatientStatus(ctx context.Context, patientID uuid.UUID) (*LiveStatus, error) {
	patient, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	position, err := s.repo.QueuePosition(ctx, patient.Department, patient.QueueSeq)
	if err != nil {
		return nil, err
	}
	return &LiveStatus{
		Patient:       patient,
		QueuePosition: position,
		EstimatedWait: round2(float64(position) * patient.PredictedDuration),
	}, nil
}

type DoctorInput struct {
	Name          string `json:"name"`
	Department    string `json:"department"`
	AvailableFrom string `json:"available_from"`
	AvailableTo   string `json:"available_to"`
}

// CreateDoctor registers a doctor with a department-prefixed code such as
// GM003.
func (s *Service) CreateDoctor(ctx context.Context, input DoctorInput) (*models.Doctor, error) {
	count, err := s.repo.CountDoctorsInDepartment(ctx, input.Department)
	if err != nil {
		return nil, fmt.Errorf("count doctors: %w", err)
	}
	prefix, ok := doctorCodePrefixes[input.Department]
	if !ok {
		prefix = "DR"
	}

	doctor := &models.Doctor{
		ID:            uuid.New(),
		Code:          fmt.Sprintf("%s%03d", prefix, count+1),
		Name:          input.Name,
		Department:    input.Department,
		AvailableFrom: input.AvailableFrom,
		AvailableTo:   input.AvailableTo,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateDoctor(ctx, doctor); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	return doctor, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, input DoctorInput) (*models.Doctor, error) {
	doctor, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	doctor.Name = input.Name
	doctor.Department = input.Department
	doctor.AvailableFrom = input.AvailableFrom
	doctor.AvailableTo = input.AvailableTo
	if err := s.repo.UpdateDoctor(ctx, doctor); err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	return doctor, nil
}

// DeactivateDoctor soft-deletes: the row stays for referential integrity
// with historical patients and audit logs.
func (s *Service) DeactivateDoctor(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetDoctorActive(ctx, id, false)
}

func (s *Service) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetDoctorActive(ctx, id, active)
}

type DoctorWorkload struct {
	Doctor             *models.Doctor `json:"doctor"`
	AverageConsultTime float64        `json:"average_consult_minutes"`
	Utilization        float64        `json:"utilization_percent"`
	DepartmentWaiting  int            `json:"department_waiting"`
	PredictedDelay     float64        `json:"predicted_delay_minutes"`
	Bottleneck         bool           `json:"bottleneck"`
	Recommendation     string         `json:"recommendation,omitempty"`
}

// Workload derives a doctor's utilization and flags a bottleneck when it
// crosses 85% or the department queue exceeds ten patients. Crossing the
// threshold emits an overload event so the rebalancer reacts without the
// caller blocking on it.
func (s *Service) Workload(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkload, error) {
	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	avgTime := doctor.AverageConsultMinutes()
	utilization := doctor.TotalConsultationMinutes / float64(s.shiftMinutes) * 100
	if utilization > 100 {
		utilization = 100
	}

	waiting, err := s.repo.WaitingCount(ctx, doctor.Department)
	if err != nil {
		return nil, err
	}
	predictedDelay := float64(waiting) * avgTime

	workload := &DoctorWorkload{
		Doctor:             doctor,
		AverageConsultTime: round2(avgTime),
		Utilization:        round2(utilization),
		DepartmentWaiting:  waiting,
		PredictedDelay:     round2(predictedDelay),
	}
	if utilization > 85 || waiting > 10 {
		workload.Bottleneck = true
		workload.Recommendation = fmt.Sprintf(
			"Estimated delay: %.2f minutes. Consider shifting LOW priority patients or adding staff.", predictedDelay)
		s.publish(ctx, EventDepartmentOverloaded, map[string]interface{}{
			"department": doctor.Department,
			"doctor_id":  doctor.ID.String(),
		})
	}
	return workload, nil
}

// UpdateSettings is the admin-write boundary where the weight-sum invariant
// is enforced; invalid weights never reach the optimizer.
func (s *Service) UpdateSettings(ctx context.Context, settings models.AISettings) (*models.AISettings, error) {
	if math.Abs(settings.FairnessWeight+settings.WaitWeight-1.0) > 1e-9 {
		return nil, ErrInvalidWeights
	}
	if settings.CooldownMinutes <= 0 || settings.OverloadThreshold <= 0 {
		return nil, fmt.Errorf("cooldown_minutes and overload_threshold must be positive")
	}
	if err := s.repo.SaveSettings(ctx, &settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return &settings, nil
}

func (s *Service) Settings(ctx context.Context) (*models.AISettings, error) {
	return s.repo.Settings(ctx)
}

type CapacitySimulation struct {
	Waiting      int     `json:"waiting"`
	Doctors      int64   `json:"doctors"`
	CurrentDelay float64 `json:"current_delay_minutes"`
	DelayWithOne float64 `json:"delay_with_one_more_doctor"`
}

// SimulateExtraDoctor answers the staffing what-if with a flat 15 minute
// consult estimate.
func (s *Service) SimulateExtraDoctor(ctx context.Context) (*CapacitySimulation, error) {
	const avgConsultMinutes = 15

	byDept, err := s.repo.WaitingByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	var waiting int
	for _, count := range byDept {
		waiting += count
	}
	doctors, err := s.repo.CountDoctors(ctx)
	if err != nil {
		return nil, err
	}

	var currentDelay float64
	if doctors > 0 {
		currentDelay = float64(waiting*avgConsultMinutes) / float64(doctors)
	}
	return &CapacitySimulation{
		Waiting:      waiting,
		Doctors:      doctors,
		CurrentDelay: round2(currentDelay),
		DelayWithOne: round2(float64(waiting*avgConsultMinutes) / float64(doctors+1)),
	}, nil
}

type DashboardSummary struct {
	TotalPatients   int64              `json:"total_patients"`
	TotalDoctors    int64              `json:"total_doctors"`
	AveragePredWait float64            `json:"average_predicted_wait"`
	WaitingByDept   map[string]int     `json:"waiting_by_department"`
	Overloaded      []string           `json:"overloaded_departments"`
	Settings        *models.AISettings `json:"settings"`
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	totalPatients, err := s.repo.CountPatients(ctx)
	if err != nil {
		return nil, err
	}
	totalDoctors, err := s.repo.CountDoctors(ctx)
	if err != nil {
		return nil, err
	}
	avgWait, err := s.repo.AveragePredictedDuration(ctx)
	if err != nil {
		return nil, err
	}
	byDept, err := s.repo.WaitingByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, err
	}

	var overloaded []string
	for dept, count := range byDept {
		if count > settings.OverloadThreshold {
			overloaded = append(overloaded, dept)
		}
	}

	return &DashboardSummary{
		TotalPatients:   totalPatients,
		TotalDoctors:    totalDoctors,
		AveragePredWait: round2(avgWait),
		WaitingByDept:   byDept,
		Overloaded:      overloaded,
		Settings:        settings,
	}, nil
}

func (s *Service) RecentExplanations(ctx context.Context, limit int) ([]models.AssignmentExplanation, error) {
	return s.repo.RecentExplanations(ctx, limit)
}

func (s *Service) RecentReassignments(ctx context.Context, department string, limit int) ([]models.ReassignmentLog, error) {
	return s.repo.RecentReassignments(ctx, department, limit)
}

func (s *Service) leastLoadedDoctor(ctx context.Context, department string) (*models.Doctor, int, error) {
	doctors, err := s.repo.ActiveDoctors(ctx, department)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	if len(doctors) == 0 {
		return nil, 0, nil
	}
	loads, err := s.repo.DoctorLoads(ctx, department)
	if err != nil {
		return nil, 0, fmt.Errorf("doctor loads: %w", err)
	}

	var selected *models.Doctor
	lowest := 0
	for i := range doctors {
		load := loads[doctors[i].ID]
		if selected == nil || load < lowest {
			selected = &doctors[i]
			lowest = load
		}
	}
	return selected, lowest, nil
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, "queue-service", data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish queue event")
	}
}

func yearsSince(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

func mustJSON(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(payload)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
