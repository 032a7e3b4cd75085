// Package idokep uploads archive records to IDOKEP (https://pro.idokep.hu).
package idokep

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
	"idokep-uploader/internal/restx"
)

// Engine is what the uploader needs from the station engine.
type Engine interface {
	// StationHardware names the station model, used when station_type is not configured.
	StationHardware() string
	// Archive gives access to the archive database.
	Archive() repository.ArchiveRepository
	// Bind registers fn to be called for every new archive record.
	Bind(fn func(archive.Record))
}

type options struct {
	client    *http.Client
	location  *time.Location
	userAgent string
	metrics   *restx.Metrics
}

type Option func(*options)

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithLocation sets the time zone of the calendar fields and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

func WithMetrics(m *restx.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Service is a registered uploader. It is either disabled, doing nothing,
// or active with a worker draining its queue.
type Service struct {
	active bool
	queue  *restx.Queue[archive.Record]
	done   chan struct{}
	err    error
}

// Active reports whether records are being uploaded.
func (s *Service) Active() bool {
	return s.active
}

// Wait blocks until the worker stops and returns the reason it stopped.
// A disabled service returns nil at once.
func (s *Service) Wait() error {
	if !s.active {
		return nil
	}
	<-s.done
	return s.err
}

// Register sets the uploader up from the StdRESTful section of the station
// configuration. A missing or incomplete IDOKEP section disables the
// uploader; it never fails the caller. The worker runs until ctx is done.
func Register(ctx context.Context, engine Engine, section map[string]any, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("protocol", Protocol)
	logger.Info("idokep uploader", "version", Version)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	site, err := restx.GetSiteDict(section, Protocol, "username", "password")
	if err != nil {
		logger.Error("data will not be posted, check configuration for missing parameters", "error", err)
		return &Service{}
	}
	if _, ok := site["station_type"]; !ok {
		site["station_type"] = engine.StationHardware()
	}

	siteOpts, err := restx.DecodeSiteOptions(site, restx.DefaultSiteOptions())
	if err != nil {
		logger.Error("data will not be posted, invalid configuration", "error", err)
		return &Service{}
	}

	repo := engine.Archive()
	thread := NewThread(ThreadConfig{
		Options:   siteOpts,
		Client:    o.client,
		Augmenter: restx.NewAugmenter(repo, o.location, logger),
		Location:  o.location,
		UserAgent: o.userAgent,
		Logger:    logger,
		Metrics:   o.metrics,
	})

	var journal restx.Journal
	if repo != nil {
		journal = repo
	}

	svc := &Service{
		active: true,
		queue:  restx.NewQueue[archive.Record](),
		done:   make(chan struct{}),
	}
	worker := restx.NewWorker(restx.WorkerConfig{
		Protocol:  Protocol,
		Queue:     svc.queue,
		Processor: thread,
		Options:   siteOpts,
		Logger:    logger,
		Metrics:   o.metrics,
		Journal:   journal,
	})
	go func() {
		defer close(svc.done)
		svc.err = worker.Run(ctx)
	}()

	engine.Bind(func(rec archive.Record) {
		o.metrics.RecordReceived(Protocol)
		svc.queue.Put(rec)
	})

	logger.Info("data will be uploaded", "user", siteOpts.Username)
	return svc
}
