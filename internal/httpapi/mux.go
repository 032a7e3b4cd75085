package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// NewMux serves the health check and, when gatherer is not nil, the
// Prometheus metrics. Feature modules add their own routes.
func NewMux(db *sql.DB, broker ConnectionChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker)
	registerMetrics(mux, gatherer)
	return mux
}
