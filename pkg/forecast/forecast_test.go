package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hospiq-ai/platform/pkg/common/models"
)

type stubSource struct {
	counts []int
	err    error
}

func (s *stubSource) HourlyArrivals(ctx context.Context, department string, hours int) ([]models.ArrivalBucket, error) {
	if s.err != nil {
		return nil, s.err
	}
	buckets := make([]models.ArrivalBucket, len(s.counts))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range s.counts {
		buckets[i] = models.ArrivalBucket{HourSlot: base.Add(time.Duration(i) * time.Hour), Count: c}
	}
	return buckets, nil
}

func TestBlendWeights(t *testing.T) {
	if got := Blend(4.0, 6.0); got != 5.2 {
		t.Fatalf("got %v, want 5.2", got)
	}
	if got := Blend(0, 0); got != 0 {
		t.Fatalf("zero inputs: got %v, want 0", got)
	}
}

func TestNextHourSparseHistory(t *testing.T) {
	// Fewer than three buckets: the moving average is zero and the
	// autoregressive model cannot fit, so the forecast degrades to zero.
	f := NewForecaster(&stubSource{counts: []int{3, 4}}, 48)
	if got := f.NextHour(context.Background(), "Cardiology"); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestNextHourSourceFailure(t *testing.T) {
	f := NewForecaster(&stubSource{err: errors.New("db down")}, 48)
	if got := f.NextHour(context.Background(), "Cardiology"); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestNextHourConstantSeries(t *testing.T) {
	// A flat series has no differenced structure; the autoregressive branch
	// degrades to the moving average and the blend returns the constant.
	f := NewForecaster(&stubSource{counts: []int{5, 5, 5, 5, 5, 5}}, 48)
	if got := f.NextHour(context.Background(), "Cardiology"); got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestNextHourNonNegativeAndFinite(t *testing.T) {
	f := NewForecaster(&stubSource{counts: []int{12, 3, 9, 0, 7, 2, 11, 4}}, 48)
	got := f.NextHour(context.Background(), "Cardiology")
	if got < 0 {
		t.Fatalf("forecast went negative: %v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	f := NewForecaster(&stubSource{counts: []int{1, 2, 3, 4, 5}}, 48)
	if got := f.MovingAverage(context.Background(), "Cardiology"); got != 4 {
		t.Fatalf("got %v, want 4 (mean of last three)", got)
	}

	f = NewForecaster(&stubSource{counts: []int{7, 7}}, 48)
	if got := f.MovingAverage(context.Background(), "Cardiology"); got != 0 {
		t.Fatalf("short history: got %v, want 0", got)
	}
}

func TestArimaOneStepInsufficientData(t *testing.T) {
	if _, err := arimaOneStep([]float64{1, 2, 3}); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}

func TestArimaOneStepConstantSeries(t *testing.T) {
	if _, err := arimaOneStep([]float64{2, 4, 6, 8, 10, 12}); !errors.Is(err, ErrFitFailed) {
		t.Fatalf("got %v, want ErrFitFailed", err)
	}
}

func TestArimaOneStepClampsNegative(t *testing.T) {
	// A steeply falling series naively forecasts below zero.
	got, err := arimaOneStep([]float64{40, 30, 20, 10, 5, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got < 0 {
		t.Fatalf("forecast went negative: %v", got)
	}
}
