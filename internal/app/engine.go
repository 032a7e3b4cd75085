package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
)

const archiveTimeout = 5 * time.Second

// stationEngine archives records arriving from the broker and hands each
// new one to the registered uploaders.
type stationEngine struct {
	hardware string
	repo     repository.ArchiveRepository
	logger   *slog.Logger

	mu       sync.RWMutex
	bindings []func(archive.Record)
}

func newStationEngine(hardware string, repo repository.ArchiveRepository, logger *slog.Logger) *stationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &stationEngine{hardware: hardware, repo: repo, logger: logger}
}

func (e *stationEngine) StationHardware() string {
	return e.hardware
}

func (e *stationEngine) Archive() repository.ArchiveRepository {
	return e.repo
}

func (e *stationEngine) Bind(fn func(archive.Record)) {
	e.mu.Lock()
	e.bindings = append(e.bindings, fn)
	e.mu.Unlock()
}

// onRecord stores rec before notifying the uploaders, so rain totals read
// while uploading include it.
func (e *stationEngine) onRecord(rec archive.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := e.repo.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("archive record %d: %w", rec.DateTime, err)
	}

	e.mu.RLock()
	bindings := append([]func(archive.Record){}, e.bindings...)
	e.mu.RUnlock()

	for _, fn := range bindings {
		fn(rec.Clone())
	}
	e.logger.Debug("new archive record", "date_time", rec.DateTime, "listeners", len(bindings))
	return nil
}
