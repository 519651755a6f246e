package influxdb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/config"
	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Client represents an InfluxDB v2 client
type Client struct {
	log      *zap.Logger
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   config.InfluxDBConfig
	done     chan struct{}
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(cfg config.InfluxDBConfig, logger *zap.Logger) (*Client, error) {
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.BatchTimeout.Milliseconds()))

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	// Add a health check to verify credentials
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	c := &Client{
		log:      logger.Named("influxdb"),
		client:   client,
		writeAPI: writeAPI,
		config:   cfg,
		done:     make(chan struct{}),
	}
	go c.drainErrors()

	c.log.Info("connected to InfluxDB", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))
	return c, nil
}

// drainErrors logs asynchronous write failures
func (c *Client) drainErrors() {
	errs := c.writeAPI.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.log.Error("async write failed", zap.Error(err))
		case <-c.done:
			return
		}
	}
}

// Name identifies the sink in logs
func (c *Client) Name() string { return "influxdb" }

// WriteCycle writes the panel outputs, weather and events of one cycle
func (c *Client) WriteCycle(_ context.Context, result models.CycleResult) error {
	for _, p := range CyclePoints(result) {
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// WriteEventCounts writes aggregated event counts
func (c *Client) WriteEventCounts(counts map[models.EventKind]int, at time.Time) error {
	for _, p := range EventCountPoints(counts, at) {
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// Close flushes pending points and closes the InfluxDB client
func (c *Client) Close() {
	c.writeAPI.Flush()
	close(c.done)
	c.client.Close()
}

// CyclePoints builds the points of a committed cycle
func CyclePoints(result models.CycleResult) []*write.Point {
	state := result.State
	at := cycleTime(state.Timestamp)
	points := make([]*write.Point, 0, len(state.Panels)+len(result.Events)+1)

	if weather := finiteFields(map[string]float64{
		"ambient_temp": state.AmbientTemp,
		"module_temp":  state.ModuleTemp,
		"irradiation":  state.Irradiation,
	}); len(weather) > 0 {
		points = append(points, write.NewPoint("weather", map[string]string{}, weather, at))
	}

	for _, panel := range state.Panels {
		fields := map[string]interface{}{
			"prediction_failed": panel.PredictedDC.Failed,
		}
		if !panel.PredictedDC.Failed {
			fields["predicted_dc"] = panel.PredictedDC.Value
		}
		if panel.MeasuredDC != nil && isFinite(*panel.MeasuredDC) {
			fields["measured_dc"] = *panel.MeasuredDC
		}
		if panel.PercentDiff != nil && isFinite(*panel.PercentDiff) {
			fields["percent_diff"] = *panel.PercentDiff
		}
		points = append(points, write.NewPoint(
			"panel_output",
			map[string]string{"panel_id": strconv.Itoa(panel.ID)},
			fields,
			at,
		))
	}

	for _, e := range result.Events {
		points = append(points, write.NewPoint(
			"panel_event",
			map[string]string{
				"kind":     string(e.Kind),
				"panel_id": strconv.Itoa(e.PanelID),
			},
			map[string]interface{}{
				"event_id":     e.ID.String(),
				"measured_dc":  e.MeasuredDC,
				"predicted_dc": e.PredictedDC,
				"percent_diff": e.PercentDiff,
			},
			at,
		))
	}

	return points
}

// EventCountPoints builds one point per event kind
func EventCountPoints(counts map[models.EventKind]int, at time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(counts))
	for kind, count := range counts {
		points = append(points, write.NewPoint(
			"panel_event_counts",
			map[string]string{"kind": string(kind)},
			map[string]interface{}{"count": count},
			at,
		))
	}
	return points
}

// cycleTime converts a unix-seconds timestamp, falling back to now when
// the row carried no usable timestamp
func cycleTime(ts float64) time.Time {
	if !isFinite(ts) {
		return time.Now()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func finiteFields(values map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if isFinite(v) {
			out[k] = v
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
