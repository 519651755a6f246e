package models

import "github.com/google/uuid"

// EventKind distinguishes warnings from faults
type EventKind string

const (
	EventNone    EventKind = ""
	EventWarning EventKind = "warning"
	EventFault   EventKind = "fault"
)

// EventRecord represents a warning or fault raised for a panel in one cycle
type EventRecord struct {
	ID          uuid.UUID `json:"id"`
	Kind        EventKind `json:"kind"`
	Timestamp   float64   `json:"timestamp"`
	AmbientTemp float64   `json:"ambient_temp"`
	ModuleTemp  float64   `json:"module_temp"`
	Irradiation float64   `json:"irradiation"`
	PanelID     int       `json:"panel"`
	MeasuredDC  float64   `json:"measured_dc"`
	PredictedDC float64   `json:"predicted_dc"`
	PercentDiff float64   `json:"pdiff"`
}

// Matches reports whether the event belongs to the given timestamp and panel
func (e EventRecord) Matches(timestamp float64, panelID int) bool {
	return e.Timestamp == timestamp && e.PanelID == panelID
}

// CycleResult is everything a completed cycle produced, handed to sinks
type CycleResult struct {
	State  CurrentState  `json:"state"`
	Events []EventRecord `json:"events"`
}
