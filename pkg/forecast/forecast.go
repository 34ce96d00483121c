package forecast

import (
	"context"
	"errors"
	"math"

	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

// ArrivalSource supplies the hourly registration history a forecast is built
// from. The clinic repository is the production implementation.
type ArrivalSource interface {
	HourlyArrivals(ctx context.Context, department string, hours int) ([]models.ArrivalBucket, error)
}

var (
	ErrInsufficientData = errors.New("not enough arrival history")
	ErrFitFailed        = errors.New("autoregressive fit failed")
)

const (
	movingAverageWindow = 3
	arimaMinBuckets     = 6

	blendMovingAverage  = 0.4
	blendAutoregressive = 0.6
)

// Forecaster blends a short moving average with an ARIMA(1,1,1)-style
// one-step forecast of hourly arrivals. NextHour never fails: any model
// problem degrades to the moving average, and an empty history yields zero.
type Forecaster struct {
	source   ArrivalSource
	lookback int
}

func NewForecaster(source ArrivalSource, lookbackHours int) *Forecaster {
	if lookbackHours <= 0 {
		lookbackHours = 48
	}
	return &Forecaster{source: source, lookback: lookbackHours}
}

// NextHour returns the blended arrival estimate for the coming hour, rounded
// to two decimals. Always finite and non-negative.
func (f *Forecaster) NextHour(ctx context.Context, department string) float64 {
	counts, err := f.counts(ctx, department)
	if err != nil {
		logger.Log.WithError(err).WithField("department", department).Debug("arrival history unavailable")
		return 0
	}

	ma := movingAverage(counts)

	ar, err := arimaOneStep(counts)
	if err != nil {
		// Degrade to the moving average; the caller never sees the failure.
		logger.Log.WithError(err).WithField("department", department).Debug("autoregressive forecast unavailable")
		ar = ma
	}

	return Blend(ma, ar)
}

// Blend combines the two estimates with fixed 0.4/0.6 weights.
func Blend(movingAvg, autoregressive float64) float64 {
	blended := blendMovingAverage*movingAvg + blendAutoregressive*autoregressive
	if blended < 0 || math.IsNaN(blended) || math.IsInf(blended, 0) {
		blended = 0
	}
	return round2(blended)
}

// MovingAverage exposes the simple estimate on its own for dashboards.
func (f *Forecaster) MovingAverage(ctx context.Context, department string) float64 {
	counts, err := f.counts(ctx, department)
	if err != nil {
		return 0
	}
	return round2(movingAverage(counts))
}

func (f *Forecaster) counts(ctx context.Context, department string) ([]float64, error) {
	buckets, err := f.source.HourlyArrivals(ctx, department, f.lookback)
	if err != nil {
		return nil, err
	}
	counts := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		counts = append(counts, float64(b.Count))
	}
	return counts, nil
}

func movingAverage(counts []float64) float64 {
	if len(counts) < movingAverageWindow {
		return 0
	}
	var sum float64
	for _, c := range counts[len(counts)-movingAverageWindow:] {
		sum += c
	}
	return sum / movingAverageWindow
}

// arimaOneStep fits an ARMA(1,1) on the first-differenced series by
// conditional least squares over a coarse coefficient grid, then forecasts
// one step ahead and integrates back.
func arimaOneStep(counts []float64) (float64, error) {
	if len(counts) < arimaMinBuckets {
		return 0, ErrInsufficientData
	}

	diffs := make([]float64, len(counts)-1)
	constant := true
	for i := 1; i < len(counts); i++ {
		diffs[i-1] = counts[i] - counts[i-1]
		if diffs[i-1] != diffs[0] {
			constant = false
		}
	}
	if constant {
		// A singular differenced series has no ARMA structure to fit.
		return 0, ErrFitFailed
	}

	var mean float64
	for _, d := range diffs {
		mean += d
	}
	mean /= float64(len(diffs))

	bestSSE := math.Inf(1)
	var bestPhi, bestTheta float64
	for phi := -0.9; phi <= 0.9; phi += 0.1 {
		for theta := -0.9; theta <= 0.9; theta += 0.1 {
			sse := conditionalSSE(diffs, mean, phi, theta)
			if sse < bestSSE {
				bestSSE = sse
				bestPhi = phi
				bestTheta = theta
			}
		}
	}
	if math.IsInf(bestSSE, 1) || math.IsNaN(bestSSE) {
		return 0, ErrFitFailed
	}

	// One-step-ahead forecast of the next difference.
	lastResidual := residuals(diffs, mean, bestPhi, bestTheta)
	nextDiff := mean + bestPhi*(diffs[len(diffs)-1]-mean) + bestTheta*lastResidual
	next := counts[len(counts)-1] + nextDiff
	if next < 0 {
		next = 0
	}
	return round2(next), nil
}

func conditionalSSE(diffs []float64, mean, phi, theta float64) float64 {
	var sse, prevResidual float64
	for t := 1; t < len(diffs); t++ {
		predicted := mean + phi*(diffs[t-1]-mean) + theta*prevResidual
		residual := diffs[t] - predicted
		sse += residual * residual
		prevResidual = residual
	}
	return sse
}

func residuals(diffs []float64, mean, phi, theta float64) float64 {
	var prevResidual float64
	for t := 1; t < len(diffs); t++ {
		predicted := mean + phi*(diffs[t-1]-mean) + theta*prevResidual
		prevResidual = diffs[t] - predicted
	}
	return prevResidual
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
