package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/api"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/classifier"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/engine"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/influxdb"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/kafka"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/logging"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/predictor"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/processor"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/query"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/scaler"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/store"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("solarguard exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Telemetry, falling back to an empty sequence when the file is unusable
	rows, err := telemetry.NewCSVSource(cfg.Simulation.CSVPath, cfg.Simulation.PanelCount).Load()
	if err != nil {
		if !errors.Is(err, telemetry.ErrSourceUnavailable) {
			return err
		}
		logger.Error("telemetry unavailable, running degraded", zap.Error(err))
		rows = nil
	}
	replay := telemetry.NewReplay(rows, cfg.Simulation.WrapPolicy == config.WrapSkip)

	pair, err := scaler.FromConfig(cfg.Scaler)
	if err != nil {
		return err
	}

	panelIDs := make([]int, cfg.Simulation.PanelCount)
	for i := range panelIDs {
		panelIDs[i] = i + 1
	}
	registry, loaded := predictor.LoadRegistry(cfg.Models.Dir, panelIDs, cfg.Simulation.PredictTimeout, logger)
	logger.Info("models loaded", zap.Int("loaded", loaded), zap.Int("panels", len(panelIDs)))

	st := store.New(cfg.Simulation.HistoryLimit)

	// Initialize sinks
	var (
		sinks        []processor.Sink
		counts       processor.CountWriter
		influxClient *influxdb.Client
		producer     *kafka.Producer
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.NewClient(cfg.InfluxDB, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, influxClient)
		counts = influxClient
	}
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, producer)
	}
	proc := processor.NewProcessor(logger, cfg.Processor, m, counts, sinks...)

	eng := engine.New(cfg.Simulation, engine.Deps{
		Logger:     logger,
		Replay:     replay,
		Scaler:     pair,
		Predictors: registry,
		Store:      st,
		Publisher:  proc,
		Metrics:    m,
	})

	thresholds := classifier.Thresholds{
		WarningPercent: cfg.Simulation.WarningPercent,
		FaultPercent:   cfg.Simulation.FaultPercent,
		FaultCount:     cfg.Simulation.FaultThreshold,
	}
	svc := query.NewService(logger, st, thresholds, cfg.Simulation.PanelCount, m)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.Wrap(logger, api.NewRouter(api.NewHandlers(logger, svc), reg)),
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer("ack-0", cfg.Kafka, func(cmd kafka.AckCommand) {
			res := svc.Acknowledge(cmd.Timestamp, cmd.Panel)
			logger.Info("acknowledgement consumed",
				zap.Float64("timestamp", cmd.Timestamp),
				zap.Int("panel", cmd.Panel),
				zap.Bool("success", res.Success),
				zap.Int("removed", res.Removed))
		}, logger)
		if err != nil {
			return err
		}
	}

	// Create context that can be canceled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle termination signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	if err := eng.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		logger.Info("query API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Consume(gctx)
		})
	}

	// Wait for a termination signal or a failing component
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("received termination signal, shutting down", zap.String("signal", sig.String()))
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown timed out", zap.Error(err))
		}
		cancel()
		return nil
	})

	err = g.Wait()

	// Stop producing before draining the sinks
	eng.Stop()
	proc.Stop()

	if producer != nil {
		if cerr := producer.Close(); cerr != nil {
			logger.Warn("closing kafka producer", zap.Error(cerr))
		}
	}
	// Now it's safe to close the InfluxDB client
	if influxClient != nil {
		influxClient.Close()
	}

	last, _ := st.Current()
	logger.Info("shutdown complete", zap.Uint64("cycles", last.Cycle))
	return err
}
