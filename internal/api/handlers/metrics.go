package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"hookrelay/internal/platform/metrics"
)

type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler() *MetricsHandler {
	metrics.RegisterDefault()
	return &MetricsHandler{handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
