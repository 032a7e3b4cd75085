package restx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
)

// Processor turns one archive record into an upload.
type Processor interface {
	ProcessRecord(ctx context.Context, rec archive.Record) error
}

// Journal stores the outcome of every processed record.
type Journal interface {
	RecordUpload(ctx context.Context, u repository.Upload) error
}

const (
	OutcomePublished   = "published"
	OutcomeAborted     = "aborted"
	OutcomeDryRun      = "dry_run"
	OutcomeBadLogin    = "bad_login"
	OutcomeCertificate = "certificate"
	OutcomeFailed      = "failed"
)

type WorkerConfig struct {
	Protocol  string
	Queue     *Queue[archive.Record]
	Processor Processor
	Options   SiteOptions
	Logger    *slog.Logger
	Metrics   *Metrics
	Journal   Journal
}

// Worker drains a queue of archive records, one post at a time, in
// arrival order.
type Worker struct {
	protocol  string
	queue     *Queue[archive.Record]
	processor Processor
	opts      SiteOptions
	logger    *slog.Logger
	metrics   *Metrics
	journal   Journal

	lastPost int64

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		protocol:  cfg.Protocol,
		queue:     cfg.Queue,
		processor: cfg.Processor,
		opts:      cfg.Options,
		logger:    logger,
		metrics:   cfg.Metrics,
		journal:   cfg.Journal,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run processes records until ctx is cancelled, which returns nil.
// A bad login or certificate failure without a retry delay, or an
// unexpected processing error, terminates the worker with an error.
func (w *Worker) Run(ctx context.Context) error {
	for {
		rec, err := w.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if w.skipThisPost(rec.DateTime) {
			continue
		}

		if err := w.handle(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("thread terminating", "error", err)
			return err
		}
	}
}

// next returns the next record, discarding the oldest ones while the
// queue is longer than max_backlog.
func (w *Worker) next(ctx context.Context) (archive.Record, error) {
	for {
		rec, err := w.queue.Get(ctx)
		if err != nil {
			return archive.Record{}, err
		}
		if w.queue.Len() <= w.opts.MaxBacklog {
			return rec, nil
		}
		w.logger.Debug("backlog exceeded, dropping record", "date_time", rec.DateTime, "backlog", w.queue.Len())
		w.metrics.recordSkipped(w.protocol, "backlog")
	}
}

func (w *Worker) skipThisPost(ts int64) bool {
	if w.opts.Stale > 0 {
		howOld := w.now().Sub(time.Unix(ts, 0))
		if howOld > w.opts.Stale {
			w.logger.Debug("record is stale", "date_time", ts, "age", howOld, "stale", w.opts.Stale)
			w.metrics.recordSkipped(w.protocol, "stale")
			return true
		}
	}
	if w.opts.PostInterval > 0 {
		howLong := time.Duration(ts-w.lastPost) * time.Second
		if howLong < w.opts.PostInterval {
			w.logger.Debug("wait interval has not passed", "date_time", ts, "post_interval", w.opts.PostInterval)
			w.metrics.recordSkipped(w.protocol, "interval")
			return true
		}
	}
	w.lastPost = ts
	return false
}

// handle processes one record and classifies the result. The returned
// error is non-nil only when the worker must stop.
func (w *Worker) handle(ctx context.Context, rec archive.Record) error {
	err := w.processor.ProcessRecord(ctx, rec)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	var (
		badLogin    *BadLoginError
		certificate *CertificateError
		failed      *FailedPostError
	)

	switch {
	case err == nil:
		if w.opts.LogSuccess {
			w.logger.Info("published record", "date_time", rec.DateTime, "time", rec.Time().Format(time.DateTime))
		}
		w.finish(ctx, rec, OutcomePublished, "")
		return nil

	case errors.Is(err, ErrDryRun):
		w.logger.Debug("dry run", "date_time", rec.DateTime)
		w.finish(ctx, rec, OutcomeDryRun, "")
		return nil

	case errors.Is(err, ErrAborted):
		if w.opts.LogSuccess {
			w.logger.Info("skipped record", "date_time", rec.DateTime, "reason", err)
		}
		w.finish(ctx, rec, OutcomeAborted, err.Error())
		return nil

	case errors.As(err, &badLogin):
		w.finish(ctx, rec, OutcomeBadLogin, err.Error())
		if w.opts.RetryLogin <= 0 {
			w.logger.Error("bad login, no retry specified", "status", badLogin.Status)
			return err
		}
		w.logger.Error("bad login, waiting before retrying", "status", badLogin.Status, "wait", w.opts.RetryLogin)
		return w.sleep(ctx, w.opts.RetryLogin)

	case errors.As(err, &certificate):
		w.finish(ctx, rec, OutcomeCertificate, err.Error())
		if w.opts.RetryCertificate <= 0 {
			w.logger.Error("certificate validation failed, no retry specified", "error", certificate.Err)
			return err
		}
		w.logger.Error("certificate validation failed, waiting before retrying", "error", certificate.Err, "wait", w.opts.RetryCertificate)
		return w.sleep(ctx, w.opts.RetryCertificate)

	case errors.As(err, &failed):
		if w.opts.LogFailure {
			w.logger.Error("failed to publish record", "date_time", rec.DateTime, "error", err)
		}
		w.finish(ctx, rec, OutcomeFailed, err.Error())
		return nil

	default:
		return fmt.Errorf("unexpected error processing record %d: %w", rec.DateTime, err)
	}
}

func (w *Worker) finish(ctx context.Context, rec archive.Record, outcome, detail string) {
	w.metrics.recordPost(w.protocol, outcome)
	if w.journal == nil {
		return
	}
	err := w.journal.RecordUpload(ctx, repository.Upload{
		Protocol: w.protocol,
		DateTime: rec.DateTime,
		Outcome:  outcome,
		Detail:   detail,
	})
	if err != nil {
		w.logger.Warn("could not journal upload", "date_time", rec.DateTime, "error", err)
	}
}
