package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"idokep-uploader/internal/utils"
)

// ConnectionChecker reports whether a broker connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	broker ConnectionChecker
}

func NewHealthchecker(db *sql.DB, broker ConnectionChecker) healthchecker {
	return &healthcheckerImpl{db: db, broker: broker}
}

// handleHealthz fails only when the database is unreachable. The broker state
// is reported but records already archived keep being uploaded without it.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	body := map[string]string{"status": "ok"}
	if h.broker != nil {
		body["mqtt"] = "disconnected"
		if h.broker.IsConnected() {
			body["mqtt"] = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, broker ConnectionChecker) {
	healthchecker := NewHealthchecker(db, broker)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
