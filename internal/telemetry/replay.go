package telemetry

import (
	"sync"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Replay walks a finite reading sequence forever. The cursor wraps to 0
// as soon as it passes the last row, so Cursor always equals the number
// of processed rows modulo the sequence length.
type Replay struct {
	mu          sync.Mutex
	rows        []models.Reading
	cursor      int
	skipOnWrap  bool
	pendingWrap bool
}

// NewReplay creates a replay over rows. With skipOnWrap set, the tick after
// a wraparound yields nothing; otherwise row 0 is returned on that tick.
func NewReplay(rows []models.Reading, skipOnWrap bool) *Replay {
	return &Replay{rows: rows, skipOnWrap: skipOnWrap}
}

// Len returns the sequence length
func (r *Replay) Len() int {
	return len(r.rows)
}

// Cursor returns the index of the next row to be processed
func (r *Replay) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Current returns the reading at the cursor. ok is false when the sequence
// is empty or this tick is the skipped wraparound tick.
func (r *Replay) Current() (reading models.Reading, row int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rows) == 0 {
		return models.Reading{}, 0, false
	}
	if r.pendingWrap {
		r.pendingWrap = false
		if r.skipOnWrap {
			return models.Reading{}, 0, false
		}
	}
	return r.rows[r.cursor], r.cursor, true
}

// Advance moves the cursor past the row returned by Current
func (r *Replay) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rows) == 0 {
		return
	}
	r.cursor++
	if r.cursor >= len(r.rows) {
		r.cursor = 0
		r.pendingWrap = true
	}
}
