package controller

import (
	"net/http"

	"idokep-uploader/internal/archive/repository"
)

type ArchiveController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type archiveControllerImpl struct {
	repository repository.ArchiveRepository
}

func NewArchiveController(repository repository.ArchiveRepository) ArchiveController {
	return &archiveControllerImpl{repository: repository}
}

func (c *archiveControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/archive/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/uploads/{protocol}/latest", c.handleUploads)
}
