package predict

import (
	"fmt"
	"math"
	"strings"

	"github.com/hospiq-ai/platform/pkg/common/logger"
)

// DurationPredictor estimates consultation minutes for a patient. The
// contract is total: implementations return a usable fallback value and an
// explanation note on internal failure, never an error.
type DurationPredictor interface {
	PredictDuration(age int, oxygen, bp, temperature float64, department, priority, disease string) (float64, []string)
}

// NoShowPredictor estimates the probability in [0,1] that a patient never
// shows up for the consultation. Same fallback contract as DurationPredictor.
type NoShowPredictor interface {
	PredictNoShow(age int, priority, department string, predictedDuration float64) (float64, []string)
}

const (
	fallbackDurationMinutes = 10
	fallbackNoShowProb      = 0.10

	durationModelName = "duration"
	noShowModelName   = "no_show"
)

// LinearPredictor serves both models from linear artifacts on disk. It is an
// explicitly constructed service object owned by the caller so tests can swap
// it for a stub.
type LinearPredictor struct {
	loader *Loader
}

func NewLinearPredictor(artifactDir string) *LinearPredictor {
	return &LinearPredictor{loader: NewLoader(artifactDir)}
}

func (p *LinearPredictor) PredictDuration(age int, oxygen, bp, temperature float64, department, priority, disease string) (float64, []string) {
	artifact, err := p.loader.Load(durationModelName)
	if err != nil {
		logger.Log.WithError(err).Debug("duration model unavailable, using fallback")
		return fallbackDurationMinutes, []string{"Fallback prediction used"}
	}

	department = strings.TrimSpace(department)
	priority = strings.TrimSpace(priority)
	disease = strings.ToLower(strings.TrimSpace(disease))

	sample := []float64{
		float64(age),
		oxygen,
		bp,
		temperature,
		artifact.encode("department", department),
		artifact.encode("priority", priority),
		artifact.encode("disease", disease),
	}
	if len(artifact.Model.Weights.Coefficients) != len(sample) {
		logger.Log.WithField("model", durationModelName).Debug("artifact feature mismatch, using fallback")
		return fallbackDurationMinutes, []string{"Fallback prediction used"}
	}

	prediction := artifact.linearSum(sample)
	if prediction < 0 || math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return fallbackDurationMinutes, []string{"Fallback prediction used"}
	}

	names := []string{"Age", "Oxygen Level", "Blood Pressure", "Temperature", "Department", "Priority", "Disease"}
	var explanation []string
	for i, name := range names {
		contribution := artifact.Model.Weights.Coefficients[i] * sample[i]
		if math.Abs(contribution) > 1 {
			explanation = append(explanation, fmt.Sprintf("%s contributed %.2f minutes", name, round2(contribution)))
		}
	}

	return round2(prediction), explanation
}

func (p *LinearPredictor) PredictNoShow(age int, priority, department string, predictedDuration float64) (float64, []string) {
	artifact, err := p.loader.Load(noShowModelName)
	if err != nil {
		logger.Log.WithError(err).Debug("no-show model unavailable, using fallback")
		return fallbackNoShowProb, []string{"Fallback probability used"}
	}

	department = strings.TrimSpace(department)
	priority = strings.TrimSpace(priority)

	sample := []float64{
		float64(age),
		artifact.encode("department", department),
		artifact.encode("priority", priority),
		predictedDuration,
	}
	if len(artifact.Model.Weights.Coefficients) != len(sample) {
		logger.Log.WithField("model", noShowModelName).Debug("artifact feature mismatch, using fallback")
		return fallbackNoShowProb, []string{"Fallback probability used"}
	}

	probability := sigmoid(artifact.linearSum(sample))
	if math.IsNaN(probability) {
		return fallbackNoShowProb, []string{"Fallback probability used"}
	}

	names := []string{"Age", "Department", "Priority", "Predicted Duration"}
	var explanation []string
	for i, name := range names {
		// Local contribution in probability space around the decision point.
		contribution := artifact.Model.Weights.Coefficients[i] * sample[i] * probability * (1 - probability)
		if math.Abs(contribution) > 0.02 {
			direction := "increased"
			if contribution < 0 {
				direction = "reduced"
			}
			explanation = append(explanation, fmt.Sprintf("%s %s no-show risk by %.2f%%", name, direction, math.Abs(contribution)*100))
		}
	}

	return round2(probability), explanation
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
