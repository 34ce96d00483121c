package engine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/hospiq-ai/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// ActionWeights is the fairness/wait split one RL action stands for. The two
// values sum to 1.0 for every shipped action.
type ActionWeights struct {
	Fairness float64 `yaml:"fairness" json:"fairness"`
	Wait     float64 `yaml:"wait" json:"wait"`
}

// Params are the engine's tunables. They ship with the defaults below and
// can be overridden from a yaml file for experiments; these weights are
// distinct from the admin AISettings weights, which only feed the scorer.
type Params struct {
	Alpha   float64 `yaml:"alpha" json:"alpha"`
	Gamma   float64 `yaml:"gamma" json:"gamma"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`

	LowStateThreshold    float64 `yaml:"low_state_threshold" json:"low_state_threshold"`
	MediumStateThreshold float64 `yaml:"medium_state_threshold" json:"medium_state_threshold"`

	LoadPenaltyFactor    float64 `yaml:"load_penalty_factor" json:"load_penalty_factor"`
	HighPriorityBonus    float64 `yaml:"high_priority_bonus" json:"high_priority_bonus"`
	PreOptimizeThreshold float64 `yaml:"pre_optimize_threshold" json:"pre_optimize_threshold"`

	Actions map[string]ActionWeights `yaml:"actions" json:"actions"`
}

func DefaultParams() Params {
	return Params{
		Alpha:   0.1,
		Gamma:   0.9,
		Epsilon: 0.2,

		LowStateThreshold:    5,
		MediumStateThreshold: 15,

		LoadPenaltyFactor:    5,
		HighPriorityBonus:    -10,
		PreOptimizeThreshold: 10,

		Actions: map[string]ActionWeights{
			models.ActionIncreaseFairness: {Fairness: 0.7, Wait: 0.3},
			models.ActionIncreaseWait:     {Fairness: 0.3, Wait: 0.7},
			models.ActionBalance:          {Fairness: 0.5, Wait: 0.5},
		},
	}
}

// LoadParams reads overrides from a yaml file; an empty path means defaults.
func LoadParams(path string) (Params, error) {
	if path == "" {
		return DefaultParams(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultParams(), err
	}

	params := DefaultParams()
	if err := yaml.Unmarshal(content, &params); err != nil {
		return Params{}, err
	}
	if len(params.Actions) == 0 {
		return Params{}, errors.New("no actions configured")
	}
	return params, nil
}

// ActionNames lists the configured actions in policy preference order.
func (p Params) ActionNames() []string {
	ordered := make([]string, 0, len(p.Actions))
	for _, name := range []string{models.ActionIncreaseFairness, models.ActionIncreaseWait, models.ActionBalance} {
		if _, ok := p.Actions[name]; ok {
			ordered = append(ordered, name)
		}
	}
	for name := range p.Actions {
		if _, ok := DefaultParams().Actions[name]; !ok {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
