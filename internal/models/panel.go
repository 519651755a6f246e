package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// PredictionFailed is the sentinel reported in place of a predicted value
const PredictionFailed = "Error"

// Prediction is a predicted DC output or the failure sentinel
type Prediction struct {
	Value  float64
	Failed bool
}

// FailedPrediction returns the failure sentinel
func FailedPrediction() Prediction {
	return Prediction{Failed: true}
}

// MarshalJSON encodes a failed prediction as the sentinel string
func (p Prediction) MarshalJSON() ([]byte, error) {
	if p.Failed {
		return json.Marshal(PredictionFailed)
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts either a number or the sentinel string
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != PredictionFailed {
			return fmt.Errorf("unexpected prediction value %q", s)
		}
		*p = FailedPrediction()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Prediction{Value: v}
	return nil
}

// PanelSnapshot holds one panel's values for a single cycle
type PanelSnapshot struct {
	ID          int        `json:"id"`
	PredictedDC Prediction `json:"predicted_dc"`
	MeasuredDC  *float64   `json:"measured_dc"`
	PercentDiff *float64   `json:"percent_diff"`
}

// Complete reports whether both measured and predicted values are present
func (p PanelSnapshot) Complete() bool {
	return p.MeasuredDC != nil && !p.PredictedDC.Failed
}

// CurrentState is the latest reading merged with the latest predictions
type CurrentState struct {
	Cycle       uint64          `json:"cycle"`
	Row         int             `json:"row"`
	Timestamp   float64         `json:"timestamp"`
	AmbientTemp float64         `json:"ambient_temp"`
	ModuleTemp  float64         `json:"module_temp"`
	Irradiation float64         `json:"irradiation"`
	Panels      []PanelSnapshot `json:"panels"`
}

// Panel returns the snapshot of a panel by id
func (s CurrentState) Panel(id int) (PanelSnapshot, bool) {
	for _, p := range s.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return PanelSnapshot{}, false
}

// Clone returns a deep copy safe to hand out to readers
func (s CurrentState) Clone() CurrentState {
	out := s
	out.Panels = make([]PanelSnapshot, len(s.Panels))
	for i, p := range s.Panels {
		out.Panels[i] = p
		if p.MeasuredDC != nil {
			v := *p.MeasuredDC
			out.Panels[i].MeasuredDC = &v
		}
		if p.PercentDiff != nil {
			v := *p.PercentDiff
			out.Panels[i].PercentDiff = &v
		}
	}
	return out
}

// Flatten renders the state as the flat per-field mapping served to clients
func (s CurrentState) Flatten() map[string]any {
	out := map[string]any{
		"timestamp":    finiteOrNil(s.Timestamp),
		"ambient_temp": finiteOrNil(s.AmbientTemp),
		"module_temp":  finiteOrNil(s.ModuleTemp),
		"irradiation":  finiteOrNil(s.Irradiation),
	}
	for _, p := range s.Panels {
		if p.MeasuredDC != nil {
			out[MeasuredKey(p.ID)] = *p.MeasuredDC
		} else {
			out[MeasuredKey(p.ID)] = nil
		}
		out[PredictedKey(p.ID)] = p.PredictedDC
		if p.PercentDiff != nil {
			out[PercentDiffKey(p.ID)] = *p.PercentDiff
		} else {
			out[PercentDiffKey(p.ID)] = nil
		}
	}
	return out
}

// MeasuredKey is the flat snapshot key of a panel's measured output
func MeasuredKey(id int) string { return fmt.Sprintf("measured_dc%d", id) }

// PredictedKey is the flat snapshot key of a panel's predicted output
func PredictedKey(id int) string { return fmt.Sprintf("predicted_dc%d", id) }

// PercentDiffKey is the flat snapshot key of a panel's percent difference
func PercentDiffKey(id int) string { return fmt.Sprintf("percent_diff%d", id) }

func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// PanelHistoryPoint is one complete historical record of a panel
type PanelHistoryPoint struct {
	Timestamp   float64 `json:"timestamp"`
	AmbientTemp float64 `json:"ambient_temp"`
	ModuleTemp  float64 `json:"module_temp"`
	Irradiation float64 `json:"irradiation"`
	MeasuredDC  float64 `json:"measured_dc"`
	PredictedDC float64 `json:"predicted_dc"`
}

// Status is the aggregate health of a panel
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusFault   Status = "FAULT"
)

// NotAvailable is reported when degradation cannot be computed
const NotAvailable = "N/A"

// Degradation is a percentage or N/A when it cannot be computed
type Degradation struct {
	Value float64
	Valid bool
}

// MarshalJSON encodes an invalid degradation as "N/A"
func (d Degradation) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(d.Value)
}

// PanelStatus is one row of the control panel table
type PanelStatus struct {
	Panel       int         `json:"panel"`
	Status      Status      `json:"status"`
	Degradation Degradation `json:"degradation"`
	FaultCount  int         `json:"fault_count"`
}
