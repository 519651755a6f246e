// Package store owns the state shared between the simulation loop and
// query handlers.
//
// Two locks guard it. stateMu covers the current state and is only held to
// swap or copy it. logMu covers the history, warning and fault logs. A
// commit takes logMu then stateMu; readers never hold both.
package store

import (
	"math"
	"sync"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Store holds the current state and the append-only logs
type Store struct {
	stateMu sync.RWMutex
	current *models.CurrentState

	logMu        sync.RWMutex
	history      []models.CurrentState
	historyLimit int
	warnings     []models.EventRecord
	faults       []models.EventRecord
}

// New creates an empty store. historyLimit > 0 keeps only the most recent
// records; 0 keeps everything.
func New(historyLimit int) *Store {
	return &Store{historyLimit: historyLimit}
}

// Commit records a completed cycle: events are appended to their logs,
// the current state is replaced and appended to the history
func (s *Store) Commit(state models.CurrentState, events []models.EventRecord) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	for _, e := range events {
		switch e.Kind {
		case models.EventFault:
			s.faults = append(s.faults, e)
		case models.EventWarning:
			s.warnings = append(s.warnings, e)
		}
	}

	s.history = append(s.history, state)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		trimmed := make([]models.CurrentState, s.historyLimit)
		copy(trimmed, s.history[len(s.history)-s.historyLimit:])
		s.history = trimmed
	}

	next := state.Clone()
	s.stateMu.Lock()
	s.current = &next
	s.stateMu.Unlock()
}

// Current returns a copy of the current state, or false before the first cycle
func (s *Store) Current() (models.CurrentState, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.current == nil {
		return models.CurrentState{}, false
	}
	return s.current.Clone(), true
}

// Latest returns a copy of the last history record
func (s *Store) Latest() (models.CurrentState, bool) {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	if len(s.history) == 0 {
		return models.CurrentState{}, false
	}
	return s.history[len(s.history)-1].Clone(), true
}

// HistoryLen returns the number of history records
func (s *Store) HistoryLen() int {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return len(s.history)
}

// PanelHistory returns the complete records of one panel in cycle order.
// Records with a missing timestamp or weather value are left out.
func (s *Store) PanelHistory(panelID int) []models.PanelHistoryPoint {
	s.logMu.RLock()
	defer s.logMu.RUnlock()

	points := make([]models.PanelHistoryPoint, 0, len(s.history))
	for _, rec := range s.history {
		if !finite(rec.Timestamp, rec.AmbientTemp, rec.ModuleTemp, rec.Irradiation) {
			continue
		}
		p, ok := rec.Panel(panelID)
		if !ok || !p.Complete() || !finite(*p.MeasuredDC, p.PredictedDC.Value) {
			continue
		}
		points = append(points, models.PanelHistoryPoint{
			Timestamp:   rec.Timestamp,
			AmbientTemp: rec.AmbientTemp,
			ModuleTemp:  rec.ModuleTemp,
			Irradiation: rec.Irradiation,
			MeasuredDC:  *p.MeasuredDC,
			PredictedDC: p.PredictedDC.Value,
		})
	}
	return points
}

// PanelTotals sums predicted and measured output over a panel's complete
// records and reports how many records contributed
func (s *Store) PanelTotals(panelID int) (sumPredicted, sumMeasured float64, n int) {
	s.logMu.RLock()
	defer s.logMu.RUnlock()

	for _, rec := range s.history {
		p, ok := rec.Panel(panelID)
		if !ok || !p.Complete() {
			continue
		}
		sumPredicted += p.PredictedDC.Value
		sumMeasured += *p.MeasuredDC
		n++
	}
	return sumPredicted, sumMeasured, n
}

// EventCounts returns the fault and unacknowledged warning counts of a panel
func (s *Store) EventCounts(panelID int) (faults, warnings int) {
	s.logMu.RLock()
	defer s.logMu.RUnlock()

	for _, e := range s.faults {
		if e.PanelID == panelID {
			faults++
		}
	}
	for _, e := range s.warnings {
		if e.PanelID == panelID {
			warnings++
		}
	}
	return faults, warnings
}

// Warnings returns a copy of the warning log
func (s *Store) Warnings() []models.EventRecord {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return append([]models.EventRecord(nil), s.warnings...)
}

// Faults returns a copy of the fault log
func (s *Store) Faults() []models.EventRecord {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return append([]models.EventRecord(nil), s.faults...)
}

// Acknowledge removes every warning matching timestamp and panel and
// returns how many were removed. Faults are never touched.
func (s *Store) Acknowledge(timestamp float64, panelID int) int {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	kept := s.warnings[:0]
	removed := 0
	for _, e := range s.warnings {
		if e.Matches(timestamp, panelID) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped records are not retained
	for i := len(kept); i < len(s.warnings); i++ {
		s.warnings[i] = models.EventRecord{}
	}
	s.warnings = kept
	return removed
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
