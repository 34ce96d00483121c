// Package rl implements the Q-learning policy that tunes the optimizer's
// fairness/wait weighting online. The table is tiny (three load states by
// three actions) and round-trips to persistent storage whole on every update.
package rl

// System load states derived from the arrival forecast.
const (
	StateLow    = "low"
	StateMedium = "medium"
	StateHigh   = "high"
)

// Table maps a discretized system state to per-action value estimates.
type Table map[string]map[string]float64

// Clone deep-copies the table so updates never alias a shared map.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for state, actions := range t {
		row := make(map[string]float64, len(actions))
		for action, value := range actions {
			row[action] = value
		}
		out[state] = row
	}
	return out
}

func (t Table) ensure(state string, actions []string) {
	if _, ok := t[state]; ok {
		return
	}
	row := make(map[string]float64, len(actions))
	for _, a := range actions {
		row[a] = 0
	}
	t[state] = row
}

func (t Table) bestAction(state string, actions []string) string {
	row, ok := t[state]
	if !ok || len(row) == 0 {
		return actions[0]
	}
	best := ""
	bestValue := 0.0
	for _, a := range actions {
		if value, ok := row[a]; ok {
			if best == "" || value > bestValue {
				best = a
				bestValue = value
			}
		}
	}
	if best == "" {
		return actions[0]
	}
	return best
}

func (t Table) maxValue(state string) float64 {
	row, ok := t[state]
	if !ok {
		return 0
	}
	var max float64
	first := true
	for _, value := range row {
		if first || value > max {
			max = value
			first = false
		}
	}
	return max
}

// Apply performs one standard Q-learning update on a copy of the table:
//
//	Q[s][a] += alpha * (reward + gamma*max_a' Q[s'][a'] - Q[s][a])
//
// It is a pure function of its inputs; the receiver table is not mutated.
func Apply(table Table, actions []string, state, action string, reward float64, nextState string, alpha, gamma float64) Table {
	next := table.Clone()
	next.ensure(state, actions)
	next.ensure(nextState, actions)

	current := next[state][action]
	maxFuture := next.maxValue(nextState)
	next[state][action] = current + alpha*(reward+gamma*maxFuture-current)
	return next
}

// StateFromForecast buckets the forecasted next-hour arrivals.
func StateFromForecast(forecast, lowThreshold, mediumThreshold float64) string {
	switch {
	case forecast < lowThreshold:
		return StateLow
	case forecast < mediumThreshold:
		return StateMedium
	default:
		return StateHigh
	}
}
