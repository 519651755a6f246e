// Package telemetry loads the replayed sensor sequence and walks it with a
// wrapping cursor.
package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// ErrSourceUnavailable is wrapped by every LoadError
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// LoadError reports a missing or malformed telemetry resource
type LoadError struct {
	Path string
	Err  error
}

// Error describes the unusable file
func (e *LoadError) Error() string {
	return fmt.Sprintf("load telemetry %s: %v", e.Path, e.Err)
}

// Unwrap exposes ErrSourceUnavailable and the underlying cause
func (e *LoadError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// Source yields the full ordered reading sequence
type Source interface {
	Load() ([]models.Reading, error)
}

// columnAliases maps alternative CSV headers onto canonical field names
var columnAliases = map[string]string{
	"ambient_temperature": "ambient_temp",
	"module_temperature":  "module_temp",
	"date_time":           "timestamp",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04",
}

// CSVSource reads readings from a CSV file with a header row
type CSVSource struct {
	Path       string
	PanelCount int
}

// NewCSVSource creates a CSV-backed source for panels 1..panelCount
func NewCSVSource(path string, panelCount int) *CSVSource {
	return &CSVSource{Path: path, PanelCount: panelCount}
}

// Load reads the whole file. Empty or unparseable cells become NaN.
func (s *CSVSource) Load() ([]models.Reading, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &LoadError{Path: s.Path, Err: err}
	}
	defer f.Close()

	readings, err := parseCSV(f, s.PanelCount)
	if err != nil {
		return nil, &LoadError{Path: s.Path, Err: err}
	}
	return readings, nil
}

func parseCSV(r io.Reader, panelCount int) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		index[name] = i
	}
	for _, required := range []string{"ambient_temp", "module_temp", "irradiation"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var readings []models.Reading
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		cell := func(name string) (string, bool) {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return "", false
			}
			return record[i], true
		}
		number := func(name string) float64 {
			raw, ok := cell(name)
			if !ok {
				return math.NaN()
			}
			return parseFloat(raw)
		}

		reading := models.Reading{
			Timestamp:   math.NaN(),
			AmbientTemp: number("ambient_temp"),
			ModuleTemp:  number("module_temp"),
			Irradiation: number("irradiation"),
			Measured:    make(map[int]float64, panelCount),
		}
		if raw, ok := cell("timestamp"); ok {
			reading.Timestamp = parseTimestamp(raw)
		}
		for id := 1; id <= panelCount; id++ {
			if raw, ok := cell(models.MeasuredKey(id)); ok {
				reading.Measured[id] = parseFloat(raw)
			}
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseTimestamp accepts numeric timestamps or common datetime layouts,
// the latter converted to unix seconds
func parseTimestamp(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.Unix())
		}
	}
	return math.NaN()
}
