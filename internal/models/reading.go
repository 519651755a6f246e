package models

import "math"

// Reading represents one row of the replayed telemetry sequence
type Reading struct {
	Timestamp   float64
	AmbientTemp float64
	ModuleTemp  float64
	Irradiation float64
	// Measured maps panel id to measured DC output. A missing key or NaN
	// means the value is absent for this row.
	Measured map[int]float64
}

// MeasuredDC returns the measured output of a panel and whether it is present
func (r Reading) MeasuredDC(panelID int) (float64, bool) {
	v, ok := r.Measured[panelID]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Features returns the weather feature vector in model input order and
// whether every feature is present
func (r Reading) Features() ([]float64, bool) {
	f := []float64{r.AmbientTemp, r.ModuleTemp, r.Irradiation}
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return f, false
		}
	}
	return f, true
}
