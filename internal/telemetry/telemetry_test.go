package telemetry

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

const sampleCSV = `timestamp,ambient_temperature,module_temperature,irradiation,measured_dc1,measured_dc2
1700000000,25.1,40.2,0.55,812.4,790.0
1700000060,25.3,,0.56,815.0,
2023-05-15 10:30:00,26.0,41.0,0.60,820.0,801.5
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "live_sim_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVSourceLoad(t *testing.T) {
	src := NewCSVSource(writeCSV(t, sampleCSV), 3)
	rows, err := src.Load()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, 1700000000.0, first.Timestamp)
	assert.Equal(t, 25.1, first.AmbientTemp)
	assert.Equal(t, 40.2, first.ModuleTemp)
	v, ok := first.MeasuredDC(1)
	assert.True(t, ok)
	assert.Equal(t, 812.4, v)
	_, ok = first.MeasuredDC(3)
	assert.False(t, ok, "panel without a column is absent")

	second := rows[1]
	assert.True(t, math.IsNaN(second.ModuleTemp))
	_, ok = second.MeasuredDC(2)
	assert.False(t, ok, "empty cell is absent")

	assert.Equal(t, 1684146600.0, rows[2].Timestamp)
}

func TestCSVSourceErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing file", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.csv") }},
		{name: "missing column", path: func(t *testing.T) string { return writeCSV(t, "timestamp,ambient_temp\n1,2\n") }},
		{name: "empty file", path: func(t *testing.T) string { return writeCSV(t, "") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCSVSource(tc.path(t), 2).Load()
			require.Error(t, err)
			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr))
			assert.True(t, errors.Is(err, ErrSourceUnavailable))
		})
	}
}

func rows(n int) []models.Reading {
	out := make([]models.Reading, n)
	for i := range out {
		out[i] = models.Reading{Timestamp: float64(i)}
	}
	return out
}

// drive runs ticks until processed rows reach cycles and returns the tick count
func drive(r *Replay, cycles int) (ticks int, seen []int) {
	for len(seen) < cycles {
		ticks++
		_, row, ok := r.Current()
		if !ok {
			continue
		}
		seen = append(seen, row)
		r.Advance()
	}
	return ticks, seen
}

func TestReplayWrapSkip(t *testing.T) {
	r := NewReplay(rows(5), true)
	ticks, seen := drive(r, 7)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 0, 1}, seen)
	assert.Equal(t, 8, ticks, "one tick is spent on the wraparound")
	assert.Equal(t, 2, r.Cursor())
}

func TestReplayWrapProcess(t *testing.T) {
	r := NewReplay(rows(5), false)
	ticks, seen := drive(r, 7)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 0, 1}, seen)
	assert.Equal(t, 7, ticks)
	assert.Equal(t, 2, r.Cursor())
}

func TestReplayCursorIsModulo(t *testing.T) {
	r := NewReplay(rows(5), true)
	drive(r, 5)
	assert.Equal(t, 0, r.Cursor())
}

func TestReplayEmpty(t *testing.T) {
	r := NewReplay(nil, true)
	for i := 0; i < 3; i++ {
		_, _, ok := r.Current()
		assert.False(t, ok)
		r.Advance()
	}
	assert.Equal(t, 0, r.Cursor())
	assert.Equal(t, 0, r.Len())
}
