// Package predictor defines the per-panel prediction contract and the
// models that satisfy it.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrModelUnavailable is returned for panels without a loaded model
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrPredictionTimeout is returned when a prediction exceeds its deadline
	ErrPredictionTimeout = errors.New("prediction timed out")
)

// Predictor maps a window of scaled feature vectors to one scaled output
type Predictor interface {
	Predict(ctx context.Context, window [][]float64) (float64, error)
}

// Func adapts an ordinary function to the Predictor interface
type Func func(ctx context.Context, window [][]float64) (float64, error)

// Predict calls f
func (f Func) Predict(ctx context.Context, window [][]float64) (float64, error) {
	return f(ctx, window)
}

// Unavailable always fails with ErrModelUnavailable
type Unavailable struct {
	PanelID int
	Cause   error
}

// Predict implements Predictor
func (u Unavailable) Predict(context.Context, [][]float64) (float64, error) {
	if u.Cause != nil {
		return 0, fmt.Errorf("panel %d: %w: %v", u.PanelID, ErrModelUnavailable, u.Cause)
	}
	return 0, fmt.Errorf("panel %d: %w", u.PanelID, ErrModelUnavailable)
}

// Window repeats the scaled feature vector length times. The models only
// ever see identical copies of the current reading.
func Window(scaled []float64, length int) [][]float64 {
	window := make([][]float64, length)
	for i := range window {
		window[i] = scaled
	}
	return window
}

type guarded struct {
	inner   Predictor
	timeout time.Duration
}

// Guard wraps p so that panics become errors, non-finite outputs are
// rejected and each call is bounded by timeout (0 disables the bound).
func Guard(p Predictor, timeout time.Duration) Predictor {
	return &guarded{inner: p, timeout: timeout}
}

type outcome struct {
	value float64
	err   error
}

func (g *guarded) Predict(ctx context.Context, window [][]float64) (float64, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("prediction panicked: %v", r)}
			}
		}()
		v, err := g.inner.Predict(ctx, window)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return 0, out.err
		}
		if math.IsNaN(out.value) || math.IsInf(out.value, 0) {
			return 0, fmt.Errorf("prediction produced non-finite value %v", out.value)
		}
		return out.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrPredictionTimeout
		}
		return 0, ctx.Err()
	}
}
