package rl

import (
	"context"
	"errors"
	"testing"

	"github.com/hospiq-ai/platform/pkg/common/models"
)

func TestApplyQLearningUpdate(t *testing.T) {
	table := Table{StateLow: {models.ActionBalance: 0}}

	updated := Apply(table, DefaultActions, StateLow, models.ActionBalance, 80, StateLow, 0.1, 0.9)

	// 0 + 0.1 * (80 + 0.9*0 - 0) = 8.0
	if got := updated[StateLow][models.ActionBalance]; got != 8.0 {
		t.Fatalf("got %v, want 8.0", got)
	}
	if table[StateLow][models.ActionBalance] != 0 {
		t.Fatal("input table was mutated")
	}
}

func TestApplyUsesMaxFutureValue(t *testing.T) {
	table := Table{
		StateHigh: {models.ActionIncreaseFairness: 10, models.ActionBalance: 40},
	}

	updated := Apply(table, DefaultActions, StateLow, models.ActionIncreaseWait, 50, StateHigh, 0.5, 0.9)

	// 0 + 0.5 * (50 + 0.9*40 - 0) = 43
	if got := updated[StateLow][models.ActionIncreaseWait]; got != 43 {
		t.Fatalf("got %v, want 43", got)
	}
}

func TestApplyInitializesUnseenStates(t *testing.T) {
	updated := Apply(Table{}, DefaultActions, StateMedium, models.ActionBalance, 10, StateHigh, 0.1, 0.9)

	for _, state := range []string{StateMedium, StateHigh} {
		row, ok := updated[state]
		if !ok {
			t.Fatalf("state %s missing from table", state)
		}
		for _, action := range DefaultActions {
			if _, ok := row[action]; !ok {
				t.Fatalf("state %s missing action %s", state, action)
			}
		}
	}
}

func TestStateFromForecast(t *testing.T) {
	cases := []struct {
		forecast float64
		want     string
	}{
		{0, StateLow},
		{4.9, StateLow},
		{5, StateMedium},
		{14.9, StateMedium},
		{15, StateHigh},
		{40, StateHigh},
	}
	for _, tc := range cases {
		if got := StateFromForecast(tc.forecast, 5, 15); got != tc.want {
			t.Errorf("forecast %v: got %s, want %s", tc.forecast, got, tc.want)
		}
	}
}

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	table, version, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 0 {
		t.Fatalf("fresh store version: got %d, want 0", version)
	}

	table.ensure(StateLow, DefaultActions)
	if err := store.Save(ctx, table, version); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second writer holding the old version must conflict.
	if err := store.Save(ctx, table, version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save: got %v, want ErrVersionConflict", err)
	}

	_, version, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if version != 1 {
		t.Fatalf("version after save: got %d, want 1", version)
	}
}

func TestSelectorGreedyPick(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.table = Table{
		StateMedium: {
			models.ActionIncreaseFairness: 2,
			models.ActionIncreaseWait:     9,
			models.ActionBalance:          5,
		},
	}

	// Epsilon zero disables exploration.
	selector := NewSelector(store, DefaultActions, 0, 0.1, 0.9, 1)

	action, err := selector.ChooseAction(ctx, StateMedium)
	if err != nil {
		t.Fatalf("choose action: %v", err)
	}
	if action != models.ActionIncreaseWait {
		t.Fatalf("got %s, want %s", action, models.ActionIncreaseWait)
	}
}

func TestSelectorInitializesUnseenState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	selector := NewSelector(store, DefaultActions, 0, 0.1, 0.9, 1)

	action, err := selector.ChooseAction(ctx, StateHigh)
	if err != nil {
		t.Fatalf("choose action: %v", err)
	}
	// All zero values tie; preference order breaks the tie.
	if action != models.ActionIncreaseFairness {
		t.Fatalf("got %s, want %s", action, models.ActionIncreaseFairness)
	}

	table, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := table[StateHigh]; !ok {
		t.Fatal("unseen state was not persisted")
	}
}

func TestSelectorUpdatePersists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	selector := NewSelector(store, DefaultActions, 0, 0.1, 0.9, 1)

	if err := selector.Update(ctx, StateLow, models.ActionBalance, 80, StateLow); err != nil {
		t.Fatalf("update: %v", err)
	}

	table, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := table[StateLow][models.ActionBalance]; got != 8.0 {
		t.Fatalf("persisted value: got %v, want 8.0", got)
	}
}
