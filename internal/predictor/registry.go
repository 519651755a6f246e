package predictor

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ModelFileName returns the model file name for a panel
func ModelFileName(panelID int) string {
	return fmt.Sprintf("panel%d_lstm_model.json", panelID)
}

// Registry resolves one predictor per panel, once, at startup
type Registry struct {
	predictors map[int]Predictor
}

// NewRegistry wraps already-built predictors with Guard
func NewRegistry(predictors map[int]Predictor, timeout time.Duration) *Registry {
	r := &Registry{predictors: make(map[int]Predictor, len(predictors))}
	for id, p := range predictors {
		r.predictors[id] = Guard(p, timeout)
	}
	return r
}

// LoadRegistry loads panel{i}_lstm_model.json from dir for every panel id.
// Panels whose model cannot be loaded get an Unavailable predictor and the
// number of loaded models is returned alongside the registry.
func LoadRegistry(dir string, panelIDs []int, timeout time.Duration, logger *zap.Logger) (*Registry, int) {
	predictors := make(map[int]Predictor, len(panelIDs))
	loaded := 0
	for _, id := range panelIDs {
		path := filepath.Join(dir, ModelFileName(id))
		model, err := LoadLSTM(path)
		if err != nil {
			logger.Error("model unavailable, panel will report prediction failures",
				zap.Int("panel", id), zap.String("path", path), zap.Error(err))
			predictors[id] = Unavailable{PanelID: id, Cause: err}
			continue
		}
		predictors[id] = model
		loaded++
	}
	logger.Info("model registry loaded", zap.Int("loaded", loaded), zap.Int("panels", len(panelIDs)))
	return NewRegistry(predictors, timeout), loaded
}

// Get returns the predictor of a panel. Unknown panels get Unavailable.
func (r *Registry) Get(panelID int) Predictor {
	if p, ok := r.predictors[panelID]; ok {
		return p
	}
	return Unavailable{PanelID: panelID}
}
