// Package scoring holds the pure multi-objective score functions shared by
// the optimizer (reward signal) and the rebalancer (shift gating). Callers
// pass derived per-doctor load counts; nothing here touches storage.
package scoring

import "math"

const (
	balanceFairnessShare    = 0.6
	balanceUtilizationShare = 0.4
	idealLoadPerDoctor      = 5
)

// FairnessIndex is the raw load spread across doctors: max load minus min
// load. Zero when no loads are supplied.
func FairnessIndex(loads []int) int {
	if len(loads) == 0 {
		return 0
	}
	minLoad, maxLoad := loads[0], loads[0]
	for _, l := range loads[1:] {
		if l < minLoad {
			minLoad = l
		}
		if l > maxLoad {
			maxLoad = l
		}
	}
	return maxLoad - minLoad
}

// BalanceScore composes fairness and utilization for the doctors that
// currently carry load. An empty slice means nobody is loaded, which counts
// as perfectly balanced.
func BalanceScore(loads []int) float64 {
	if len(loads) == 0 {
		return 100
	}

	imbalance := FairnessIndex(loads)

	var total int
	for _, l := range loads {
		total += l
	}
	avgLoad := float64(total) / float64(len(loads))

	fairnessComponent := math.Max(0, 100-float64(imbalance)*10)
	utilizationComponent := math.Max(0, 100-math.Abs(avgLoad-idealLoadPerDoctor)*10)

	return round2(balanceFairnessShare*fairnessComponent + balanceUtilizationShare*utilizationComponent)
}

// OptimizationScore is the admin-visible system health metric and the RL
// reward after a full optimizer pass. The forecast term penalizes the score
// ahead of predicted arrivals so upcoming load is pre-empted. fairnessWeight
// and waitWeight come from the admin settings and sum to 1.0 (enforced at
// settings write time).
func OptimizationScore(fairnessIndex int, avgPredictedWait, forecastedArrivals, fairnessWeight, waitWeight float64) float64 {
	fairnessScore := math.Max(0, 100-float64(fairnessIndex)*15)
	waitScore := math.Max(0, 100-avgPredictedWait-2*forecastedArrivals)
	return round2(fairnessWeight*fairnessScore + waitWeight*waitScore)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
