package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers the query routes and /metrics
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sensor-data", h.sensorData).Methods(http.MethodGet)
	api.HandleFunc("/panel-data", h.panelData).Methods(http.MethodPost)
	api.HandleFunc("/control-panel", h.controlPanel).Methods(http.MethodGet)
	api.HandleFunc("/log", h.maintenanceLog).Methods(http.MethodGet)
	api.HandleFunc("/acknowledge-warning", h.acknowledgeWarning).Methods(http.MethodPost)

	return r
}

// Wrap adds access logging and panic recovery around the router
func Wrap(logger *zap.Logger, router http.Handler) http.Handler {
	stdLog := zap.NewStdLog(logger.Named("http"))
	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog))(router)
	return handlers.LoggingHandler(stdLog.Writer(), recovered)
}
