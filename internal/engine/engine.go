// Package engine runs the simulation loop: it replays telemetry on a fixed
// period, predicts each panel's output, classifies the deviation and
// commits the result to the shared store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/classifier"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/predictor"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/scaler"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/store"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/telemetry"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("engine already started")

// Predictors resolves the predictor of a panel
type Predictors interface {
	Get(panelID int) predictor.Predictor
}

// Publisher receives every committed cycle. Submit must not block.
type Publisher interface {
	Submit(result models.CycleResult)
}

// Deps are the collaborators of the engine
type Deps struct {
	Logger     *zap.Logger
	Replay     *telemetry.Replay
	Scaler     *scaler.Pair
	Predictors Predictors
	Store      *store.Store
	Publisher  Publisher
	Metrics    *metrics.Metrics
}

// Engine is the single producer of the shared store
type Engine struct {
	log        *zap.Logger
	cfg        config.SimulationConfig
	thresholds classifier.Thresholds
	panelIDs   []int

	replay     *telemetry.Replay
	scaler     *scaler.Pair
	predictors Predictors
	store      *store.Store
	publisher  Publisher
	metrics    *metrics.Metrics

	stepMu sync.Mutex
	cycle  uint64

	lifeMu  sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine for panels 1..cfg.PanelCount
func New(cfg config.SimulationConfig, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make([]int, cfg.PanelCount)
	for i := range ids {
		ids[i] = i + 1
	}
	return &Engine{
		log: logger.Named("engine"),
		cfg: cfg,
		thresholds: classifier.Thresholds{
			WarningPercent: cfg.WarningPercent,
			FaultPercent:   cfg.FaultPercent,
			FaultCount:     cfg.FaultThreshold,
		},
		panelIDs:   ids,
		replay:     deps.Replay,
		scaler:     deps.Scaler,
		predictors: deps.Predictors,
		store:      deps.Store,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
	}
}

// PanelIDs returns the fixed panel set
func (e *Engine) PanelIDs() []int {
	return append([]int(nil), e.panelIDs...)
}

// Cursor returns the index of the next telemetry row
func (e *Engine) Cursor() int {
	return e.replay.Cursor()
}

// Start launches the loop. It runs one cycle immediately and then one per
// interval until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
	e.log.Info("simulation loop started",
		zap.Duration("interval", e.cfg.Interval),
		zap.Int("rows", e.replay.Len()),
		zap.Int("panels", len(e.panelIDs)),
		zap.String("wrap_policy", e.cfg.WrapPolicy))
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	cancel, done := e.cancel, e.done
	e.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	t := time.NewTicker(e.cfg.Interval)
	defer t.Stop()

	e.tick(ctx)
	for {
		select {
		case <-t.C:
			e.tick(ctx)
		case <-ctx.Done():
			e.log.Info("simulation loop stopped")
			return
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if _, err := e.Step(ctx); err != nil {
		if ctx.Err() != nil {
			e.log.Debug("cycle abandoned on shutdown", zap.Error(err))
			return
		}
		e.log.Error("cycle failed", zap.Error(err))
	}
}

// Step runs one tick. It reports whether a row was processed. A panic
// inside the cycle is recovered and returned as an error.
func (e *Engine) Step(ctx context.Context) (processed bool, err error) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	reading, row, ok := e.replay.Current()
	if !ok {
		e.metrics.TickSkipped()
		if e.replay.Len() == 0 {
			e.log.Debug("no telemetry loaded, tick skipped")
		} else {
			e.log.Debug("telemetry wrapped to first row, tick skipped")
		}
		return false, nil
	}
	// the cursor moves on even if this row blows up, but not when the
	// cycle was abandoned for shutdown
	advance := true
	defer func() {
		if advance {
			e.replay.Advance()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			processed = false
			err = fmt.Errorf("cycle at row %d panicked: %v", row, r)
		}
	}()

	start := time.Now()
	panels, events := e.evaluate(ctx, reading)
	if err := ctx.Err(); err != nil {
		advance = false
		return false, err
	}

	e.cycle++
	state := models.CurrentState{
		Cycle:       e.cycle,
		Row:         row,
		Timestamp:   reading.Timestamp,
		AmbientTemp: reading.AmbientTemp,
		ModuleTemp:  reading.ModuleTemp,
		Irradiation: reading.Irradiation,
		Panels:      panels,
	}
	e.store.Commit(state, events)

	e.metrics.CycleCommitted(time.Since(start).Seconds(), e.store.HistoryLen())
	for _, ev := range events {
		e.metrics.EventRaised(string(ev.Kind))
	}
	if e.publisher != nil {
		e.publisher.Submit(models.CycleResult{State: state, Events: events})
	}

	e.log.Debug("cycle committed",
		zap.Uint64("cycle", e.cycle),
		zap.Int("row", row),
		zap.Int("events", len(events)))
	return true, nil
}

// evaluate predicts every panel and classifies the deviations
func (e *Engine) evaluate(ctx context.Context, reading models.Reading) ([]models.PanelSnapshot, []models.EventRecord) {
	panels := make([]models.PanelSnapshot, len(e.panelIDs))
	predictions := make([]models.Prediction, len(e.panelIDs))
	for i := range predictions {
		predictions[i] = models.FailedPrediction()
	}

	var window [][]float64
	features, ok := reading.Features()
	if ok {
		scaled, err := e.scaler.Scale(features[0], features[1], features[2])
		if err != nil {
			e.log.Warn("scaling failed, predictions skipped", zap.Error(err))
			ok = false
		} else {
			window = predictor.Window(scaled, e.cfg.WindowLength)
		}
	} else {
		e.log.Warn("reading is missing weather features, predictions skipped",
			zap.Float64("timestamp", reading.Timestamp))
	}

	if ok {
		var g errgroup.Group
		for i, id := range e.panelIDs {
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						e.log.Error("prediction panicked", zap.Int("panel", id), zap.Any("panic", r))
					}
				}()
				v, err := e.predictors.Get(id).Predict(ctx, window)
				if err != nil {
					e.log.Warn("prediction failed", zap.Int("panel", id), zap.Error(err))
					return nil
				}
				predictions[i] = models.Prediction{Value: classifier.Round(e.scaler.Unscale(v), 3)}
				return nil
			})
		}
		_ = g.Wait()
	}

	var events []models.EventRecord
	for i, id := range e.panelIDs {
		pred := predictions[i]
		if pred.Failed {
			e.metrics.PredictionFailed(id)
		}
		snap := models.PanelSnapshot{ID: id, PredictedDC: pred}

		measured, measuredOK := reading.MeasuredDC(id)
		if measuredOK {
			m := measured
			snap.MeasuredDC = &m
		}

		if pdiff, ok := classifier.PercentDiff(pred, measured, measuredOK); ok {
			d := pdiff
			snap.PercentDiff = &d
			if kind := e.thresholds.Classify(pdiff); kind != models.EventNone && !math.IsNaN(reading.Timestamp) {
				events = append(events, models.EventRecord{
					ID:          uuid.New(),
					Kind:        kind,
					Timestamp:   reading.Timestamp,
					AmbientTemp: reading.AmbientTemp,
					ModuleTemp:  reading.ModuleTemp,
					Irradiation: reading.Irradiation,
					PanelID:     id,
					MeasuredDC:  measured,
					PredictedDC: pred.Value,
					PercentDiff: pdiff,
				})
			}
		}
		panels[i] = snap
	}
	return panels, events
}
