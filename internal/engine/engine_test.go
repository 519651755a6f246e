package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/predictor"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/scaler"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/store"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/telemetry"
)

// fixedPredictors returns a constant scaled output per panel. Panels
// without an entry fail.
type fixedPredictors map[int]float64

func (f fixedPredictors) Get(id int) predictor.Predictor {
	v, ok := f[id]
	if !ok {
		return predictor.Unavailable{PanelID: id}
	}
	return predictor.Func(func(context.Context, [][]float64) (float64, error) { return v, nil })
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []models.CycleResult
}

func (p *recordingPublisher) Submit(r models.CycleResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func simConfig(panels int, policy string) config.SimulationConfig {
	return config.SimulationConfig{
		Interval:       time.Hour,
		PanelCount:     panels,
		WindowLength:   15,
		WrapPolicy:     policy,
		PredictTimeout: time.Second,
		FaultThreshold: 3,
		WarningPercent: 5,
		FaultPercent:   10,
	}
}

// identityScaler leaves predictions in physical units
func identityScaler(t *testing.T) *scaler.Pair {
	t.Helper()
	p, err := scaler.FromConfig(config.ScalerConfig{
		AmbientMin: 20.4, AmbientMax: 35.25,
		ModuleMin: 18.14, ModuleMax: 65.55,
		IrradiationMin: 0, IrradiationMax: 1.22,
		TargetMin: 0, TargetMax: 1,
	})
	require.NoError(t, err)
	return p
}

func reading(ts float64, measured map[int]float64) models.Reading {
	return models.Reading{Timestamp: ts, AmbientTemp: 25, ModuleTemp: 40, Irradiation: 0.5, Measured: measured}
}

type harness struct {
	engine    *Engine
	store     *store.Store
	publisher *recordingPublisher
}

func newHarness(t *testing.T, cfg config.SimulationConfig, rows []models.Reading, preds Predictors) *harness {
	t.Helper()
	st := store.New(0)
	pub := &recordingPublisher{}
	e := New(cfg, Deps{
		Logger:     zaptest.NewLogger(t),
		Replay:     telemetry.NewReplay(rows, cfg.WrapPolicy == config.WrapSkip),
		Scaler:     identityScaler(t),
		Predictors: preds,
		Store:      st,
		Publisher:  pub,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	return &harness{engine: e, store: st, publisher: pub}
}

func steadyRows(n int) []models.Reading {
	rows := make([]models.Reading, n)
	for i := range rows {
		rows[i] = reading(float64(1000+i), map[int]float64{1: 100})
	}
	return rows
}

func TestCyclesOverWrappingSequence(t *testing.T) {
	tests := []struct {
		policy    string
		wantTicks int
	}{
		{policy: config.WrapSkip, wantTicks: 8},
		{policy: config.WrapProcess, wantTicks: 7},
	}

	for _, tc := range tests {
		t.Run(tc.policy, func(t *testing.T) {
			h := newHarness(t, simConfig(1, tc.policy), steadyRows(5), fixedPredictors{1: 100})

			ticks, cycles := 0, 0
			for cycles < 7 {
				ticks++
				processed, err := h.engine.Step(context.Background())
				require.NoError(t, err)
				if processed {
					cycles++
				}
			}

			assert.Equal(t, tc.wantTicks, ticks)
			assert.Equal(t, 2, h.engine.Cursor())
			assert.Equal(t, 7, h.store.HistoryLen())
			assert.Equal(t, 7, h.publisher.count())

			cur, ok := h.store.Current()
			require.True(t, ok)
			assert.Equal(t, uint64(7), cur.Cycle)
			assert.Equal(t, 1, cur.Row)
		})
	}
}

func TestCursorIsCycleCountModuloLength(t *testing.T) {
	h := newHarness(t, simConfig(1, config.WrapProcess), steadyRows(3), fixedPredictors{1: 100})
	for k := 1; k <= 10; k++ {
		_, err := h.engine.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, k%3, h.engine.Cursor())
		assert.Equal(t, k, h.store.HistoryLen())
	}
}

func TestEveryPanelPresentEachCycle(t *testing.T) {
	preds := fixedPredictors{}
	measured := map[int]float64{}
	for id := 1; id <= 22; id++ {
		measured[id] = 500
		if id%2 == 1 {
			preds[id] = 500
		}
	}
	h := newHarness(t, simConfig(22, config.WrapSkip), []models.Reading{reading(1, measured)}, preds)

	_, err := h.engine.Step(context.Background())
	require.NoError(t, err)

	cur, ok := h.store.Current()
	require.True(t, ok)
	require.Len(t, cur.Panels, 22)
	for i, p := range cur.Panels {
		assert.Equal(t, i+1, p.ID)
		if p.ID%2 == 0 {
			assert.True(t, p.PredictedDC.Failed, "panel %d", p.ID)
			assert.Nil(t, p.PercentDiff)
		} else {
			assert.False(t, p.PredictedDC.Failed, "panel %d", p.ID)
			assert.Equal(t, 500.0, p.PredictedDC.Value)
		}
	}
	assert.Empty(t, h.store.Warnings())
	assert.Empty(t, h.store.Faults())
}

func TestClassificationEvents(t *testing.T) {
	preds := fixedPredictors{1: 112, 2: 107, 3: 103, 4: 110, 5: 95}
	measured := map[int]float64{1: 100, 2: 100, 3: 100, 4: 100, 5: 100}
	h := newHarness(t, simConfig(5, config.WrapSkip), []models.Reading{reading(42, measured)}, preds)

	_, err := h.engine.Step(context.Background())
	require.NoError(t, err)

	faults := h.store.Faults()
	require.Len(t, faults, 2)
	assert.Equal(t, 1, faults[0].PanelID)
	assert.InDelta(t, 12.0, faults[0].PercentDiff, 1e-9)
	assert.Equal(t, 4, faults[1].PanelID, "exactly 10 percent is a fault")

	warnings := h.store.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, 2, warnings[0].PanelID)
	assert.Equal(t, 5, warnings[1].PanelID, "exactly 5 percent is a warning")

	for _, e := range append(faults, warnings...) {
		assert.Equal(t, 42.0, e.Timestamp)
		assert.Equal(t, 25.0, e.AmbientTemp)
		assert.Equal(t, 100.0, e.MeasuredDC)
		assert.NotZero(t, e.ID)
	}

	published := h.publisher.results[0]
	assert.Len(t, published.Events, 4)
}

func TestUnusableMeasurementsRaiseNoEvents(t *testing.T) {
	preds := fixedPredictors{1: 200, 2: 200, 3: 200}
	measured := map[int]float64{1: 0, 2: math.NaN()}
	h := newHarness(t, simConfig(3, config.WrapSkip), []models.Reading{reading(1, measured)}, preds)

	_, err := h.engine.Step(context.Background())
	require.NoError(t, err)

	cur, _ := h.store.Current()
	for _, p := range cur.Panels {
		assert.Nil(t, p.PercentDiff, "panel %d", p.ID)
	}
	require.NotNil(t, cur.Panels[0].MeasuredDC)
	assert.Nil(t, cur.Panels[1].MeasuredDC)
	assert.Nil(t, cur.Panels[2].MeasuredDC)
	assert.Empty(t, h.store.Faults())
}

func TestMissingWeatherFailsEveryPrediction(t *testing.T) {
	r := reading(1, map[int]float64{1: 100, 2: 100})
	r.Irradiation = math.NaN()
	h := newHarness(t, simConfig(2, config.WrapSkip), []models.Reading{r}, fixedPredictors{1: 150, 2: 150})

	processed, err := h.engine.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	cur, _ := h.store.Current()
	for _, p := range cur.Panels {
		assert.True(t, p.PredictedDC.Failed)
	}
	assert.Empty(t, h.store.Faults())
	assert.Equal(t, 1, h.store.HistoryLen())
}

func TestPredictorPanicIsContained(t *testing.T) {
	preds := predictorsFunc(func(id int) predictor.Predictor {
		if id == 1 {
			return predictor.Func(func(context.Context, [][]float64) (float64, error) { panic("model exploded") })
		}
		return predictor.Func(func(context.Context, [][]float64) (float64, error) { return 100, nil })
	})
	h := newHarness(t, simConfig(2, config.WrapSkip), []models.Reading{reading(1, map[int]float64{1: 100, 2: 100})}, preds)

	processed, err := h.engine.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	cur, _ := h.store.Current()
	assert.True(t, cur.Panels[0].PredictedDC.Failed)
	assert.False(t, cur.Panels[1].PredictedDC.Failed)
}

type predictorsFunc func(id int) predictor.Predictor

func (f predictorsFunc) Get(id int) predictor.Predictor { return f(id) }

func TestCyclePanicIsRecovered(t *testing.T) {
	h := newHarness(t, simConfig(1, config.WrapSkip), steadyRows(2), fixedPredictors{1: 100})
	h.engine.scaler = nil

	processed, err := h.engine.Step(context.Background())
	assert.False(t, processed)
	assert.ErrorContains(t, err, "panicked")
	assert.Equal(t, 1, h.engine.Cursor(), "a failing row is not retried forever")
	assert.Equal(t, 0, h.store.HistoryLen())
}

func TestEmptySequenceRunsDegraded(t *testing.T) {
	h := newHarness(t, simConfig(3, config.WrapSkip), nil, fixedPredictors{})
	for i := 0; i < 3; i++ {
		processed, err := h.engine.Step(context.Background())
		require.NoError(t, err)
		assert.False(t, processed)
	}
	_, ok := h.store.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, h.engine.Cursor())
}

func TestStartStop(t *testing.T) {
	cfg := simConfig(1, config.WrapSkip)
	cfg.Interval = 5 * time.Millisecond
	h := newHarness(t, cfg, steadyRows(3), fixedPredictors{1: 100})

	require.NoError(t, h.engine.Start(context.Background()))
	assert.True(t, errors.Is(h.engine.Start(context.Background()), ErrAlreadyStarted))

	assert.Eventually(t, func() bool { return h.store.HistoryLen() >= 4 }, 2*time.Second, 5*time.Millisecond)

	h.engine.Stop()
	n := h.store.HistoryLen()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, h.store.HistoryLen(), "no cycles after Stop")
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, simConfig(1, config.WrapSkip), nil, fixedPredictors{})
	assert.NotPanics(t, h.engine.Stop)
}

func TestCancelledCycleIsNotCommitted(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	preds := predictorsFunc(func(id int) predictor.Predictor {
		return predictor.Guard(predictor.Func(func(ctx context.Context, _ [][]float64) (float64, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return 0, ctx.Err()
		}), time.Minute)
	})
	h := newHarness(t, simConfig(2, config.WrapSkip), steadyRows(3), preds)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	processed, err := h.engine.Step(ctx)
	assert.False(t, processed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.store.HistoryLen())
	assert.Zero(t, h.engine.Cursor())
	assert.Zero(t, h.publisher.count())
	_, ok := h.store.Current()
	assert.False(t, ok)
}

func TestRowWithoutTimestampKeepsHistoryServable(t *testing.T) {
	rows := []models.Reading{
		reading(math.NaN(), map[int]float64{1: 100}),
		reading(1001, map[int]float64{1: 100}),
	}
	h := newHarness(t, simConfig(1, config.WrapSkip), rows, fixedPredictors{1: 150})

	for i := 0; i < 2; i++ {
		processed, err := h.engine.Step(context.Background())
		require.NoError(t, err)
		require.True(t, processed)
	}

	assert.Equal(t, 2, h.store.HistoryLen())
	assert.Empty(t, h.store.Warnings())
	assert.Len(t, h.store.Faults(), 1, "only the timestamped row raises an event")

	hist := h.store.PanelHistory(1)
	require.Len(t, hist, 1)
	assert.Equal(t, 1001.0, hist[0].Timestamp)
	_, err := json.Marshal(hist)
	assert.NoError(t, err)
}
