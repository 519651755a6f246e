// Package scaler normalizes model inputs and restores model outputs with a
// fixed min/max calibration.
package scaler

import (
	"fmt"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
)

// MinMax maps each feature linearly from [Min, Max] onto [0, 1].
// Values outside the calibration range are extrapolated, not clamped.
type MinMax struct {
	Min []float64
	Max []float64
}

// NewMinMax validates bounds and returns a scaler
func NewMinMax(min, max []float64) (*MinMax, error) {
	if len(min) != len(max) || len(min) == 0 {
		return nil, fmt.Errorf("scaler bounds length mismatch: min=%d max=%d", len(min), len(max))
	}
	for i := range min {
		if max[i] < min[i] {
			return nil, fmt.Errorf("scaler feature %d: max %.4f below min %.4f", i, max[i], min[i])
		}
	}
	return &MinMax{
		Min: append([]float64(nil), min...),
		Max: append([]float64(nil), max...),
	}, nil
}

// Transform scales a feature vector
func (m *MinMax) Transform(x []float64) ([]float64, error) {
	if len(x) != len(m.Min) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.Min), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		span := m.Max[i] - m.Min[i]
		if span == 0 {
			// constant feature
			out[i] = 0
			continue
		}
		out[i] = (v - m.Min[i]) / span
	}
	return out, nil
}

// Inverse restores the first feature of a scaled value to physical units
func (m *MinMax) Inverse(y float64) float64 {
	return y*(m.Max[0]-m.Min[0]) + m.Min[0]
}

// Pair bundles the weather feature scaler with the DC output scaler
type Pair struct {
	Features *MinMax
	Target   *MinMax
}

// FromConfig builds the feature and target scalers from calibration settings
func FromConfig(cfg config.ScalerConfig) (*Pair, error) {
	features, err := NewMinMax(
		[]float64{cfg.AmbientMin, cfg.ModuleMin, cfg.IrradiationMin},
		[]float64{cfg.AmbientMax, cfg.ModuleMax, cfg.IrradiationMax},
	)
	if err != nil {
		return nil, fmt.Errorf("feature scaler: %w", err)
	}
	target, err := NewMinMax([]float64{cfg.TargetMin}, []float64{cfg.TargetMax})
	if err != nil {
		return nil, fmt.Errorf("target scaler: %w", err)
	}
	return &Pair{Features: features, Target: target}, nil
}

// Scale normalizes ambient temperature, module temperature and irradiation
func (p *Pair) Scale(ambient, module, irradiation float64) ([]float64, error) {
	return p.Features.Transform([]float64{ambient, module, irradiation})
}

// Unscale converts a scaled prediction back to DC output
func (p *Pair) Unscale(y float64) float64 {
	return p.Target.Inverse(y)
}
