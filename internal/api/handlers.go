package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/solarguard-monitor/internal/query"
)

// Handlers exposes the query service over HTTP
type Handlers struct {
	log   *zap.Logger
	query *query.Service
}

// NewHandlers creates the HTTP handlers
func NewHandlers(logger *zap.Logger, svc *query.Service) *Handlers {
	return &Handlers{log: logger.Named("api"), query: svc}
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type panelDataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// number accepts a JSON number or a numeric string
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

type panelRequest struct {
	Panel *number `json:"panel"`
}

type ackRequest struct {
	Timestamp *number `json:"timestamp"`
	Panel     *number `json:"panel"`
}

func panelID(n *number) (int, error) {
	if n == nil {
		return 0, fmt.Errorf("panel is required")
	}
	id := int(*n)
	if float64(id) != float64(*n) {
		return 0, fmt.Errorf("panel must be an integer, got %v", float64(*n))
	}
	return id, nil
}

// writeJSON encodes before writing the header so an encoding error can
// still be reported as a failure body
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode response", zap.Error(err))
		status = http.StatusOK
		body, _ = json.Marshal(failure{Success: false, Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.log.Warn("write response", zap.Error(err))
	}
}

// Failures are reported with 200 and success=false, matching what the
// dashboard scripts expect
func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	h.writeJSON(w, http.StatusOK, failure{Success: false, Error: err.Error()})
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) sensorData(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.query.CurrentSnapshot())
}

func (h *Handlers) panelData(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn("bad panel data request", zap.Error(err))
		h.writeFailure(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	id, err := panelID(req.Panel)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	points, err := h.query.PanelHistory(id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, panelDataResponse{Success: true, Data: points})
}

func (h *Handlers) controlPanel(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.query.PanelStatusTable())
}

func (h *Handlers) maintenanceLog(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.query.MaintenanceLog())
}

func (h *Handlers) acknowledgeWarning(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn("bad acknowledge request", zap.Error(err))
		h.writeFailure(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Timestamp == nil {
		h.writeFailure(w, fmt.Errorf("timestamp is required"))
		return
	}
	id, err := panelID(req.Panel)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.query.Acknowledge(float64(*req.Timestamp), id))
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, failure{Success: false, Error: "Invalid request method"})
}
