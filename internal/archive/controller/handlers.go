package controller

import (
	"log/slog"
	"net/http"
	"strings"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
	"idokep-uploader/internal/utils"
)

func (c *archiveControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLatestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := c.repository.LatestRecords(r.Context(), limit)
	if err != nil {
		slog.Error("latest records failed", "limit", limit, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load archive records")
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *archiveControllerImpl) handleUploads(w http.ResponseWriter, r *http.Request) {
	protocol := strings.ToUpper(strings.TrimSpace(r.PathValue("protocol")))
	if protocol == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing protocol")
		return
	}

	limit, err := parseLatestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploads, err := c.repository.LatestUploads(r.Context(), protocol, limit)
	if err != nil {
		slog.Error("latest uploads failed", "protocol", protocol, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load uploads")
		return
	}
	if uploads == nil {
		uploads = []repository.Upload{}
	}
	utils.WriteJSON(w, http.StatusOK, uploads)
}
