// Package api wires the status endpoints, the swagger UI and the metrics
// endpoint onto a router.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"ors-matrix/internal/api/docs"
	"ors-matrix/internal/api/handler"
	"ors-matrix/pkg/router"
)

func RegisterRoutes(r *router.Router, status *handler.Status, gatherer prometheus.Gatherer) {
	r.GET("/api/v1/runs", status.ListRuns)
	r.GET("/api/v1/runs/*/chunks", status.ListChunks)
	r.GET("/api/v1/runs/*/failures", status.ListFailures)
	r.GET("/api/v1/runs/*", status.GetRun)
	r.GET("/api/v1/measurements", status.Measurements)
	r.GET("/api/v1/progress", status.Progress)

	r.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Handle(http.MethodGet, "/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
	))
}

// NewRouter returns a router serving the status API over reader. progress may
// be nil when no run is executing in this process.
func NewRouter(reader handler.Reader, progress handler.Progress, gatherer prometheus.Gatherer, logger *zap.Logger) *router.Router {
	r := router.New(logger)
	RegisterRoutes(r, handler.NewStatus(reader, progress, logger), gatherer)
	return r
}
