package rebalance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

type fakeStore struct {
	doctors    []models.Doctor
	loads      map[uuid.UUID]int
	candidates map[uuid.UUID][]models.Patient
	settings   models.AISettings

	shifts []uuid.UUID
	logs   []models.ReassignmentLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loads:      map[uuid.UUID]int{},
		candidates: map[uuid.UUID][]models.Patient{},
		settings:   models.AISettings{ID: 1, FairnessWeight: 0.5, WaitWeight: 0.5, OverloadThreshold: 10, CooldownMinutes: 5},
	}
}

func (f *fakeStore) DepartmentDoctors(ctx context.Context, department string) ([]models.Doctor, error) {
	return f.doctors, nil
}

func (f *fakeStore) DoctorLoads(ctx context.Context, department string) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(f.loads))
	for id, l := range f.loads {
		out[id] = l
	}
	return out, nil
}

func (f *fakeStore) ShiftCandidates(ctx context.Context, doctorID uuid.UUID, maxNoShow float64) ([]models.Patient, error) {
	var eligible []models.Patient
	for _, p := range f.candidates[doctorID] {
		if p.NoShowProbability < maxNoShow {
			eligible = append(eligible, p)
		}
	}
	return eligible, nil
}

func (f *fakeStore) ShiftPatient(ctx context.Context, patientID, toDoctor uuid.UUID, at time.Time) error {
	f.shifts = append(f.shifts, patientID)
	return nil
}

func (f *fakeStore) AppendReassignmentLog(ctx context.Context, log *models.ReassignmentLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeStore) Settings(ctx context.Context) (*models.AISettings, error) {
	settings := f.settings
	return &settings, nil
}

func (f *fakeStore) Departments(ctx context.Context) ([]string, error) {
	return []string{"Cardiology"}, nil
}

func addDoctor(f *fakeStore, load int) uuid.UUID {
	id := uuid.New()
	f.doctors = append(f.doctors, models.Doctor{ID: id, Department: "Cardiology", IsActive: true})
	f.loads[id] = load
	return id
}

func TestRebalanceSingleDoctorIsNoOp(t *testing.T) {
	store := newFakeStore()
	addDoctor(store, 7)

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if outcome.Shifted || len(store.logs) != 0 {
		t.Fatal("expected no shift with a single doctor")
	}
}

func TestRebalanceBalancedDepartmentIsNoOp(t *testing.T) {
	store := newFakeStore()
	addDoctor(store, 4)
	addDoctor(store, 4)

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if outcome.Shifted || len(store.shifts) != 0 || len(store.logs) != 0 {
		t.Fatal("expected no shift in a balanced department")
	}
}

func TestRebalanceShiftsOnImprovement(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 5)
	addDoctor(store, 2)

	patient := models.Patient{
		ID:                uuid.New(),
		Name:              "Asha Rao",
		Priority:          models.PriorityLow,
		Status:            models.StatusWaiting,
		NoShowProbability: 0.05,
	}
	store.candidates[high] = []models.Patient{patient}

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !outcome.Shifted {
		t.Fatal("expected a shift for loads 5 vs 2")
	}
	if len(store.shifts) != 1 || store.shifts[0] != patient.ID {
		t.Fatalf("shifted %v, want %v", store.shifts, patient.ID)
	}
	if len(store.logs) != 1 {
		t.Fatalf("got %d reassignment logs, want 1", len(store.logs))
	}
	if store.logs[0].FromDoctor != high {
		t.Fatalf("logged source doctor %v, want %v", store.logs[0].FromDoctor, high)
	}
}

func TestRebalanceRespectsCooldown(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 5)
	addDoctor(store, 2)

	recent := time.Now().Add(-1 * time.Minute)
	old := time.Now().Add(-6 * time.Minute)
	cooled := models.Patient{ID: uuid.New(), Name: "A", NoShowProbability: 0.05, LastReassignedAt: &recent}
	eligible := models.Patient{ID: uuid.New(), Name: "B", NoShowProbability: 0.05, LastReassignedAt: &old}
	store.candidates[high] = []models.Patient{cooled, eligible}

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !outcome.Shifted {
		t.Fatal("expected the older candidate to be shifted")
	}
	if store.shifts[0] != eligible.ID {
		t.Fatalf("shifted %v, want the candidate outside the cooldown window", store.shifts[0])
	}
}

func TestRebalanceAllCandidatesCooledDown(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 5)
	addDoctor(store, 2)

	recent := time.Now().Add(-30 * time.Second)
	store.candidates[high] = []models.Patient{
		{ID: uuid.New(), Name: "A", NoShowProbability: 0.05, LastReassignedAt: &recent},
	}

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if outcome.Shifted || len(store.shifts) != 0 {
		t.Fatal("expected no shift while every candidate is cooling down")
	}
}

func TestRebalanceBlockedWhenScoreWouldDrop(t *testing.T) {
	// Moving load onto a fully idle doctor drops the balance score because
	// the idle doctor starts counting toward the imbalance.
	store := newFakeStore()
	high := addDoctor(store, 3)
	addDoctor(store, 0)
	store.candidates[high] = []models.Patient{
		{ID: uuid.New(), Name: "A", NoShowProbability: 0.05},
	}

	outcome, err := NewService(store).Rebalance(context.Background(), "Cardiology")
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if outcome.Shifted || len(store.shifts) != 0 || len(store.logs) != 0 {
		t.Fatal("expected simulation gate to block the shift")
	}
}

func TestRebalanceIsIdempotentPerPass(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 6)
	addDoctor(store, 2)
	store.candidates[high] = []models.Patient{
		{ID: uuid.New(), Name: "A", NoShowProbability: 0.05},
		{ID: uuid.New(), Name: "B", NoShowProbability: 0.05},
	}

	if _, err := NewService(store).Rebalance(context.Background(), "Cardiology"); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if len(store.shifts) != 1 {
		t.Fatalf("got %d shifts in one pass, want exactly 1", len(store.shifts))
	}
}
