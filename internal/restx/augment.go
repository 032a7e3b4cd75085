package restx

import (
	"context"
	"log/slog"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
)

// RainSource sums archived rain over dateTime in (from, to].
type RainSource interface {
	SumRain(ctx context.Context, from int64, to int64) (repository.RainSum, error)
}

// Augmenter adds the rain totals uploaders expect but stations rarely
// report: hourRain, rain24 and dayRain.
type Augmenter struct {
	source   RainSource
	location *time.Location
	logger   *slog.Logger
}

// NewAugmenter returns an Augmenter reading from source. A nil source makes
// GetRecord a plain copy. Day boundaries are taken in loc, time.Local if nil.
func NewAugmenter(source RainSource, loc *time.Location, logger *slog.Logger) *Augmenter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmenter{source: source, location: loc, logger: logger}
}

// GetRecord returns a copy of rec with the rain totals filled in from the
// archive when the record does not already carry them. A total is set to nil
// when the window is empty or was archived in a different unit system.
func (a *Augmenter) GetRecord(ctx context.Context, rec archive.Record) archive.Record {
	out := rec.Clone()
	if a == nil || a.source == nil {
		return out
	}

	ts := rec.DateTime
	y, m, d := time.Unix(ts, 0).In(a.location).Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, a.location).Unix()

	windows := []struct {
		field string
		from  int64
	}{
		{"hourRain", ts - 3600},
		{"rain24", ts - 86400},
		{"dayRain", startOfDay},
	}
	for _, w := range windows {
		if out.Has(w.field) {
			continue
		}
		out.Set(w.field, a.sum(ctx, rec, w.field, w.from))
	}
	return out
}

func (a *Augmenter) sum(ctx context.Context, rec archive.Record, field string, from int64) *float64 {
	res, err := a.source.SumRain(ctx, from, rec.DateTime)
	if err != nil {
		a.logger.Debug("rain total unavailable", "field", field, "error", err)
		return nil
	}
	if res.Total == nil {
		return nil
	}
	if res.MinUnits != rec.USUnits || res.MaxUnits != rec.USUnits {
		a.logger.Debug("inconsistent units in archive window",
			"field", field, "min_units", res.MinUnits, "max_units", res.MaxUnits, "record_units", rec.USUnits)
		return nil
	}
	return res.Total
}
