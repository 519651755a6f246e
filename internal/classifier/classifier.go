// Package classifier turns predicted-vs-measured deviation into events and
// derives per-panel health from the event logs.
package classifier

import (
	"math"
	"strconv"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/models"
)

// Thresholds configures event bands and fault escalation
type Thresholds struct {
	WarningPercent float64
	FaultPercent   float64
	FaultCount     int
}

// DefaultThresholds are the reference deployment values
var DefaultThresholds = Thresholds{WarningPercent: 5, FaultPercent: 10, FaultCount: 3}

// PercentDiff returns |predicted-measured|/measured*100. ok is false when
// the measured value is absent or zero or the prediction failed.
func PercentDiff(predicted models.Prediction, measured float64, measuredOK bool) (float64, bool) {
	if predicted.Failed || !measuredOK || measured == 0 || math.IsNaN(measured) || math.IsInf(measured, 0) {
		return 0, false
	}
	d := math.Abs((predicted.Value - measured) / measured * 100)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}

// Classify maps a percent difference to an event kind
func (t Thresholds) Classify(pdiff float64) models.EventKind {
	switch {
	case pdiff >= t.FaultPercent:
		return models.EventFault
	case pdiff >= t.WarningPercent:
		return models.EventWarning
	default:
		return models.EventNone
	}
}

// Status derives aggregate panel health from its event counts
func (t Thresholds) Status(faultCount, warningCount int) models.Status {
	switch {
	case faultCount >= t.FaultCount:
		return models.StatusFault
	case warningCount > 0:
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}

// Degradation computes 100 - |sumP-sumM| / ((sumP+sumM)/2) * 100, with the
// deviation rounded to two decimals. ok is false when it cannot be computed.
func Degradation(sumPredicted, sumMeasured float64) (float64, bool) {
	mean := (sumPredicted + sumMeasured) / 2
	if mean == 0 {
		return 0, false
	}
	deviation := math.Abs((sumPredicted-sumMeasured)/mean) * 100
	if math.IsNaN(deviation) || math.IsInf(deviation, 0) {
		return 0, false
	}
	return 100 - Round(deviation, 2), true
}

// Round rounds to the given number of decimals using the exact binary
// value, with exact ties going to the even digit
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}
