package rebalance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

func TestHandleEventTriggersPass(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 5)
	addDoctor(store, 2)
	store.candidates[high] = []models.Patient{
		{ID: uuid.New(), Name: "A", NoShowProbability: 0.05},
	}

	runner := NewRunner(NewService(store), 0)
	event := models.Event{
		ID:   uuid.New().String(),
		Type: "patient.completed",
		Data: map[string]interface{}{"department": "Cardiology"},
	}
	if err := runner.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(store.shifts) != 1 {
		t.Fatalf("got %d shifts, want 1", len(store.shifts))
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	store := newFakeStore()
	high := addDoctor(store, 5)
	addDoctor(store, 2)
	store.candidates[high] = []models.Patient{
		{ID: uuid.New(), Name: "A", NoShowProbability: 0.05},
	}

	runner := NewRunner(NewService(store), 0)
	event := models.Event{
		ID:   uuid.New().String(),
		Type: "patient.registered",
		Data: map[string]interface{}{"department": "Cardiology"},
	}
	if err := runner.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(store.shifts) != 0 {
		t.Fatal("registration events must not trigger a rebalance")
	}
}

func TestHandleEventMissingDepartment(t *testing.T) {
	store := newFakeStore()
	runner := NewRunner(NewService(store), 0)

	event := models.Event{ID: uuid.New().String(), Type: "department.overloaded"}
	if err := runner.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(store.shifts) != 0 {
		t.Fatal("expected no pass without a department")
	}
}
