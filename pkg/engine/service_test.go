package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/models"
	"github.com/hospiq-ai/platform/pkg/forecast"
	"github.com/hospiq-ai/platform/pkg/rl"
)

type fakeStore struct {
	patients []models.Patient
	doctors  []models.Doctor
	loads    map[uuid.UUID]int
	settings models.AISettings

	assignments  map[uuid.UUID]uuid.UUID
	explanations []models.AssignmentExplanation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loads:       map[uuid.UUID]int{},
		assignments: map[uuid.UUID]uuid.UUID{},
		settings:    models.AISettings{ID: 1, FairnessWeight: 0.5, WaitWeight: 0.5, OverloadThreshold: 10, CooldownMinutes: 5},
	}
}

func (f *fakeStore) ActivePatients(ctx context.Context, department string) ([]models.Patient, error) {
	return f.patients, nil
}

func (f *fakeStore) ActiveDoctors(ctx context.Context, department string) ([]models.Doctor, error) {
	return f.doctors, nil
}

func (f *fakeStore) DoctorLoads(ctx context.Context, department string) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(f.loads))
	for id, l := range f.loads {
		out[id] = l
	}
	return out, nil
}

func (f *fakeStore) UpdateAssignment(ctx context.Context, patientID, doctorID uuid.UUID) error {
	f.assignments[patientID] = doctorID
	return nil
}

func (f *fakeStore) AppendExplanation(ctx context.Context, explanation *models.AssignmentExplanation) error {
	f.explanations = append(f.explanations, *explanation)
	return nil
}

func (f *fakeStore) Settings(ctx context.Context) (*models.AISettings, error) {
	settings := f.settings
	return &settings, nil
}

func (f *fakeStore) Departments(ctx context.Context) ([]string, error) {
	return []string{"Cardiology"}, nil
}

type emptySource struct{}

func (emptySource) HourlyArrivals(ctx context.Context, department string, hours int) ([]models.ArrivalBucket, error) {
	return nil, nil
}

type fixedDuration float64

func (d fixedDuration) PredictDuration(age int, oxygen, bp, temperature float64, department, priority, disease string) (float64, []string) {
	return float64(d), nil
}

// ageAsDuration lets a test give each patient its own predicted duration.
type ageAsDuration struct{}

func (ageAsDuration) PredictDuration(age int, oxygen, bp, temperature float64, department, priority, disease string) (float64, []string) {
	return float64(age), nil
}

func newTestService(store *fakeStore, minutes float64) *Service {
	qtable := rl.NewMemoryStore()
	selector := rl.NewSelector(qtable, rl.DefaultActions, 0, 0.1, 0.9, 1)
	forecaster := forecast.NewForecaster(emptySource{}, 48)
	return NewService(store, forecaster, selector, fixedDuration(minutes), DefaultParams())
}

func TestOptimizeEmptyDepartmentIsNoOp(t *testing.T) {
	store := newFakeStore()
	service := newTestService(store, 10)

	result, err := service.Optimize(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.Assigned != 0 || len(store.assignments) != 0 {
		t.Fatal("expected no assignments for an empty department")
	}
}

func TestOptimizeFavorsEmergencyWhenDoctorsAreScarce(t *testing.T) {
	store := newFakeStore()
	doctor := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	store.doctors = []models.Doctor{doctor}
	store.loads[doctor.ID] = 0

	urgent := models.Patient{
		ID: uuid.New(), Department: "Cardiology",
		Priority: models.PriorityHigh, Status: models.StatusEmergency,
		PredictedDuration: 10,
	}
	routine := models.Patient{
		ID: uuid.New(), Department: "Cardiology",
		Priority: models.PriorityLow, Status: models.StatusWaiting,
		PredictedDuration: 10,
	}
	store.patients = []models.Patient{routine, urgent}

	service := newTestService(store, 10)
	result, err := service.Optimize(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	// One doctor, two patients: the HIGH priority bonus must win the slot.
	if result.Assigned != 1 {
		t.Fatalf("assigned %d, want 1", result.Assigned)
	}
	if got, ok := store.assignments[urgent.ID]; !ok || got != doctor.ID {
		t.Fatalf("urgent patient not assigned to the only doctor: %v", store.assignments)
	}
	if _, ok := store.assignments[routine.ID]; ok {
		t.Fatal("routine patient should remain unassigned")
	}
}

func TestOptimizeHandComputedCosts(t *testing.T) {
	store := newFakeStore()
	d1 := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	d2 := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	store.doctors = []models.Doctor{d1, d2}
	store.loads[d1.ID] = 0
	store.loads[d2.ID] = 3

	urgent := models.Patient{
		ID: uuid.New(), Age: 10, Priority: models.PriorityHigh,
		Status: models.StatusEmergency, PredictedDuration: 10, NoShowProbability: 0.1,
	}
	routine := models.Patient{
		ID: uuid.New(), Age: 20, Priority: models.PriorityMedium,
		Status: models.StatusWaiting, PredictedDuration: 20, NoShowProbability: 0.2,
	}
	store.patients = []models.Patient{urgent, routine}

	// Force the balance action by making it the only learned value.
	qtable := rl.NewMemoryStore()
	qtable.Save(context.Background(), rl.Table{rl.StateLow: {models.ActionBalance: 50}}, 0)
	selector := rl.NewSelector(qtable, rl.DefaultActions, 0, 0.1, 0.9, 1)
	forecaster := forecast.NewForecaster(emptySource{}, 48)
	service := NewService(store, forecaster, selector, ageAsDuration{}, DefaultParams())

	result, err := service.Optimize(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.Action != models.ActionBalance {
		t.Fatalf("selected action %s, want balance", result.Action)
	}
	if result.Assigned != 2 {
		t.Fatalf("assigned %d, want 2", result.Assigned)
	}

	// Hand-computed costs under balance weights (0.5/0.5):
	//   urgent:  d1 = 0.5*10*0.9 + 0.5*0*5 - 10 = -5.5, d2 = 0.5*9 + 0.5*15 - 10 = 2.0
	//   routine: d1 = 0.5*20*0.8 + 0      =  8.0, d2 = 8.0 + 7.5       = 15.5
	// Minimum-cost matching sends the emergency to the idle doctor.
	if got := store.assignments[urgent.ID]; got != d1.ID {
		t.Fatalf("urgent patient assigned to %v, want the idle doctor", got)
	}
	if got := store.assignments[routine.ID]; got != d2.ID {
		t.Fatalf("routine patient assigned to %v, want the loaded doctor", got)
	}

	for _, e := range store.explanations {
		switch e.PatientID {
		case urgent.ID:
			if e.FinalCost != -5.5 {
				t.Fatalf("urgent final cost %v, want -5.5", e.FinalCost)
			}
		case routine.ID:
			if e.FinalCost != 15.5 {
				t.Fatalf("routine final cost %v, want 15.5", e.FinalCost)
			}
		}
	}
}

func TestOptimizeWritesExplanations(t *testing.T) {
	store := newFakeStore()
	d1 := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	d2 := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	store.doctors = []models.Doctor{d1, d2}
	store.loads[d1.ID] = 0
	store.loads[d2.ID] = 3

	p1 := models.Patient{ID: uuid.New(), Priority: models.PriorityMedium, Status: models.StatusWaiting, PredictedDuration: 12, NoShowProbability: 0.1}
	p2 := models.Patient{ID: uuid.New(), Priority: models.PriorityLow, Status: models.StatusWaiting, PredictedDuration: 8, NoShowProbability: 0.2}
	store.patients = []models.Patient{p1, p2}

	service := newTestService(store, 12)
	result, err := service.Optimize(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.Assigned != 2 {
		t.Fatalf("assigned %d, want 2", result.Assigned)
	}
	if len(store.explanations) != 2 {
		t.Fatalf("got %d explanations, want one per assignment", len(store.explanations))
	}
	for _, e := range store.explanations {
		if e.RLAction == "" {
			t.Fatal("explanation missing the selected action")
		}
		if e.Department != "Cardiology" {
			t.Fatalf("explanation department %q", e.Department)
		}
	}
}

func TestOptimizeUpdatesPolicy(t *testing.T) {
	store := newFakeStore()
	doctor := models.Doctor{ID: uuid.New(), Department: "Cardiology", IsActive: true}
	store.doctors = []models.Doctor{doctor}
	store.loads[doctor.ID] = 0
	store.patients = []models.Patient{
		{ID: uuid.New(), Priority: models.PriorityLow, Status: models.StatusWaiting, PredictedDuration: 10},
	}

	qtable := rl.NewMemoryStore()
	selector := rl.NewSelector(qtable, rl.DefaultActions, 0, 0.1, 0.9, 1)
	forecaster := forecast.NewForecaster(emptySource{}, 48)
	service := NewService(store, forecaster, selector, fixedDuration(10), DefaultParams())

	result, err := service.Optimize(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	table, version, err := qtable.Load(context.Background())
	if err != nil {
		t.Fatalf("load q-table: %v", err)
	}
	if version == 0 {
		t.Fatal("expected the pass to persist a q-table update")
	}
	if got := table[result.State][result.Action]; got == 0 {
		t.Fatalf("expected a nonzero value for %s/%s after reward %v", result.State, result.Action, result.Score)
	}
}

func TestOptimizationScoreEmptyDepartment(t *testing.T) {
	service := newTestService(newFakeStore(), 10)

	score, err := service.OptimizationScore(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 100 {
		t.Fatalf("got %v, want 100 for an idle department", score)
	}
}

func TestFairnessIndexFromLoads(t *testing.T) {
	store := newFakeStore()
	store.loads[uuid.New()] = 6
	store.loads[uuid.New()] = 2
	service := newTestService(store, 10)

	idx, err := service.FairnessIndex(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("fairness index: %v", err)
	}
	if idx != 4 {
		t.Fatalf("got %d, want 4", idx)
	}
}
