package httpapi

import (
	"net/http"
	"time"

	"idokep-uploader/internal/config"
)

func NewServer(config config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           requestLogger(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
