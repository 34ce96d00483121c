package triage

import (
	"strings"

	"github.com/hospiq-ai/platform/pkg/common/models"
)

var emergencyDiseases = []string{"stroke", "heart attack", "trauma", "sepsis"}

// Classify maps vitals and the free-text disease label to a priority level.
// Pediatric patients (<18) use tighter vital thresholds than adults.
func Classify(age int, oxygen, temperature, bp float64, disease string) string {
	disease = strings.ToLower(disease)

	if age < 18 {
		switch {
		case oxygen < 90 || temperature >= 38.5 || bp < 70 || bp > 140:
			return models.PriorityHigh
		case (oxygen >= 90 && oxygen < 94) || (temperature >= 37.6 && temperature < 38.5):
			return models.PriorityMedium
		default:
			return models.PriorityLow
		}
	}

	switch {
	case oxygen < 85 || temperature >= 39.5 || bp >= 180 || bp < 90 || mentionsEmergency(disease):
		return models.PriorityHigh
	case (oxygen >= 85 && oxygen < 92) || (temperature >= 38.5 && temperature < 39.5) || (bp >= 140 && bp < 180):
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// InitialStatus places HIGH priority patients straight into the emergency
// queue; everyone else waits.
func InitialStatus(priority string) string {
	if priority == models.PriorityHigh {
		return models.StatusEmergency
	}
	return models.StatusWaiting
}

func mentionsEmergency(disease string) bool {
	for _, d := range emergencyDiseases {
		if strings.Contains(disease, d) {
			return true
		}
	}
	return false
}
