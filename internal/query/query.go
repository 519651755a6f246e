// Package query is the read side of the engine: snapshot, panel history,
// status table and warning acknowledgement. Nothing here panics past its
// boundary; failures are returned as values.
package query

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/classifier"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/store"
)

// NoData is the placeholder reported for every field before the first cycle
const NoData = "No data"

// ErrUnknownPanel is returned for panel ids outside the fixed panel set
var ErrUnknownPanel = errors.New("unknown panel")

// AckResult is the outcome of an acknowledgement request
type AckResult struct {
	Success bool   `json:"success"`
	Removed int    `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// MaintenanceLog holds copies of both event logs
type MaintenanceLog struct {
	Warnings []models.EventRecord `json:"warnings"`
	Faults   []models.EventRecord `json:"faults"`
}

// Service answers queries from the shared store
type Service struct {
	log        *zap.Logger
	store      *store.Store
	thresholds classifier.Thresholds
	panelCount int
	metrics    *metrics.Metrics
}

// NewService creates a query service for panels 1..panelCount
func NewService(logger *zap.Logger, st *store.Store, thresholds classifier.Thresholds, panelCount int, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		log:        logger.Named("query"),
		store:      st,
		thresholds: thresholds,
		panelCount: panelCount,
		metrics:    m,
	}
}

func (s *Service) validPanel(id int) error {
	if id < 1 || id > s.panelCount {
		return fmt.Errorf("%w: %d (expected 1..%d)", ErrUnknownPanel, id, s.panelCount)
	}
	return nil
}

// CurrentSnapshot returns the current state merged with the latest history
// record, or a "No data" placeholder for every field
func (s *Service) CurrentSnapshot() map[string]any {
	current, hasCurrent := s.store.Current()
	latest, hasLatest := s.store.Latest()

	if !hasCurrent && !hasLatest {
		s.log.Debug("snapshot requested before first cycle")
		return s.placeholder()
	}

	out := map[string]any{}
	if hasCurrent {
		for k, v := range current.Flatten() {
			out[k] = v
		}
	}
	if hasLatest {
		for k, v := range latest.Flatten() {
			out[k] = v
		}
	}
	return out
}

func (s *Service) placeholder() map[string]any {
	out := map[string]any{
		"timestamp":    NoData,
		"ambient_temp": NoData,
		"module_temp":  NoData,
		"irradiation":  NoData,
	}
	for id := 1; id <= s.panelCount; id++ {
		out[models.MeasuredKey(id)] = NoData
		out[models.PredictedKey(id)] = NoData
		out[models.PercentDiffKey(id)] = NoData
	}
	return out
}

// PanelHistory returns the complete records of a panel in cycle order
func (s *Service) PanelHistory(panelID int) ([]models.PanelHistoryPoint, error) {
	if err := s.validPanel(panelID); err != nil {
		return nil, err
	}
	return s.store.PanelHistory(panelID), nil
}

// PanelStatusTable derives status, degradation and fault count for every
// panel from the logs as they are right now
func (s *Service) PanelStatusTable() []models.PanelStatus {
	table := make([]models.PanelStatus, 0, s.panelCount)
	for id := 1; id <= s.panelCount; id++ {
		table = append(table, s.panelStatus(id))
	}
	return table
}

func (s *Service) panelStatus(id int) (status models.PanelStatus) {
	status = models.PanelStatus{Panel: id, Status: models.StatusOK}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("status computation failed", zap.Int("panel", id), zap.Any("panic", r))
			status.Degradation = models.Degradation{}
		}
	}()

	faults, warnings := s.store.EventCounts(id)
	status.FaultCount = faults
	status.Status = s.thresholds.Status(faults, warnings)

	sumP, sumM, n := s.store.PanelTotals(id)
	if n > 0 {
		if d, ok := classifier.Degradation(sumP, sumM); ok {
			status.Degradation = models.Degradation{Value: d, Valid: true}
		}
	}
	return status
}

// MaintenanceLog returns the current warning and fault logs
func (s *Service) MaintenanceLog() MaintenanceLog {
	return MaintenanceLog{
		Warnings: s.store.Warnings(),
		Faults:   s.store.Faults(),
	}
}

// Acknowledge removes the warnings matching timestamp and panel. Finding
// nothing to remove still succeeds.
func (s *Service) Acknowledge(timestamp float64, panelID int) (result AckResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("acknowledge failed", zap.Any("panic", r))
			result = AckResult{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	if err := s.validPanel(panelID); err != nil {
		return AckResult{Success: false, Error: err.Error()}
	}
	removed := s.store.Acknowledge(timestamp, panelID)
	s.metrics.Acknowledged(removed)
	s.log.Info("warning acknowledged",
		zap.Float64("timestamp", timestamp),
		zap.Int("panel", panelID),
		zap.Int("removed", removed))
	return AckResult{Success: true, Removed: removed}
}
