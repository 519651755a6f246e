package processor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Sink receives committed cycles, e.g. a time-series store or a broker
type Sink interface {
	Name() string
	WriteCycle(ctx context.Context, result models.CycleResult) error
}

// CountWriter persists periodic event counts
type CountWriter interface {
	WriteEventCounts(counts map[models.EventKind]int, at time.Time) error
}

// Processor fans committed cycles out to sinks without blocking the
// simulation loop
type Processor struct {
	log        *zap.Logger
	config     config.ProcessorConfig
	sinks      []Sink
	metrics    *metrics.Metrics
	queue      chan models.CycleResult
	wg         sync.WaitGroup
	aggregator *eventAggregator

	mu     sync.RWMutex
	closed bool
}

// NewProcessor creates a processor and starts its workers. counts may be
// nil to disable event count aggregation.
func NewProcessor(logger *zap.Logger, cfg config.ProcessorConfig, m *metrics.Metrics, counts CountWriter, sinks ...Sink) *Processor {
	p := &Processor{
		log:     logger.Named("processor"),
		config:  cfg,
		sinks:   sinks,
		metrics: m,
		queue:   make(chan models.CycleResult, cfg.QueueSize),
	}

	if counts != nil {
		p.aggregator = newEventAggregator(p.log, counts, cfg.FlushInterval)
	}

	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(i)
	}

	return p
}

// Submit queues a cycle result for the sinks
func (p *Processor) Submit(result models.CycleResult) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- result:
	default:
		// Queue is full, log and drop the cycle
		p.metrics.SinkDropped()
		p.log.Warn("sink queue is full, dropping cycle", zap.Uint64("cycle", result.State.Cycle))
	}
}

// worker processes cycle results from the queue
func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for result := range p.queue {
		for _, sink := range p.sinks {
			if err := sink.WriteCycle(context.Background(), result); err != nil {
				p.log.Error("sink write failed",
					zap.Int("worker", id),
					zap.String("sink", sink.Name()),
					zap.Uint64("cycle", result.State.Cycle),
					zap.Error(err))
			}
		}

		if p.aggregator != nil {
			p.aggregator.update(result.Events)
		}
	}
}

// Stop drains the queue and flushes pending counts
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()

	if p.aggregator != nil {
		p.aggregator.stop()
	}
}

// eventAggregator counts warning and fault events between flushes
type eventAggregator struct {
	log    *zap.Logger
	writer CountWriter
	counts map[models.EventKind]int
	mutex  sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
}

func newEventAggregator(logger *zap.Logger, writer CountWriter, interval time.Duration) *eventAggregator {
	a := &eventAggregator{
		log:    logger,
		writer: writer,
		counts: make(map[models.EventKind]int),
		done:   make(chan struct{}),
	}

	// Start periodic flusher
	a.wg.Add(1)
	go a.periodicFlush(interval)

	return a
}

func (a *eventAggregator) update(events []models.EventRecord) {
	if len(events) == 0 {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for _, e := range events {
		a.counts[e.Kind]++
	}
}

func (a *eventAggregator) flush() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if len(a.counts) == 0 {
		return
	}

	if err := a.writer.WriteEventCounts(a.counts, time.Now()); err != nil {
		a.log.Error("writing event counts failed", zap.Error(err))
		return
	}

	// Reset counts
	a.counts = make(map[models.EventKind]int)
}

func (a *eventAggregator) periodicFlush(interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *eventAggregator) stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}
