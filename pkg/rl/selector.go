package rl

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

const updateRetries = 3

// DefaultActions in policy preference order; ties in the greedy pick resolve
// to the earliest entry.
var DefaultActions = []string{
	models.ActionIncreaseFairness,
	models.ActionIncreaseWait,
	models.ActionBalance,
}

// Selector is the epsilon-greedy Q-learning policy. It owns no global state:
// the table lives in the Store and randomness is injected for tests.
type Selector struct {
	store   Store
	actions []string
	epsilon float64
	alpha   float64
	gamma   float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(store Store, actions []string, epsilon, alpha, gamma float64, seed int64) *Selector {
	if len(actions) == 0 {
		actions = DefaultActions
	}
	return &Selector{
		store:   store,
		actions: actions,
		epsilon: epsilon,
		alpha:   alpha,
		gamma:   gamma,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// ChooseAction picks the next weighting scheme for the given state: uniform
// exploration with probability epsilon, otherwise the highest-valued action,
// with unseen states initialized to zero for every action.
func (s *Selector) ChooseAction(ctx context.Context, state string) (string, error) {
	s.mu.Lock()
	explore := s.rng.Float64() < s.epsilon
	var pick int
	if explore {
		pick = s.rng.Intn(len(s.actions))
	}
	s.mu.Unlock()

	if explore {
		return s.actions[pick], nil
	}

	table, version, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := table[state]; !ok {
		table.ensure(state, s.actions)
		if err := s.store.Save(ctx, table, version); err != nil && !errors.Is(err, ErrVersionConflict) {
			return "", err
		}
	}
	return table.bestAction(state, s.actions), nil
}

// Update folds the observed reward into the persisted table. On a version
// conflict the whole read-modify-write is retried against the fresh table.
func (s *Selector) Update(ctx context.Context, state, action string, reward float64, nextState string) error {
	var err error
	for attempt := 0; attempt < updateRetries; attempt++ {
		var table Table
		var version int64
		table, version, err = s.store.Load(ctx)
		if err != nil {
			return err
		}

		updated := Apply(table, s.actions, state, action, reward, nextState, s.alpha, s.gamma)

		err = s.store.Save(ctx, updated, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		logger.Log.WithField("attempt", attempt+1).Debug("q-table update conflicted, retrying")
	}
	return err
}
