package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/units"
)

//go:embed sql/insert-record.sql
var insertRecordSQL string

//go:embed sql/get-latest-records.sql
var getLatestRecordsSQL string

//go:embed sql/sum-rain.sql
var sumRainSQL string

//go:embed sql/upsert-upload.sql
var upsertUploadSQL string

//go:embed sql/get-latest-uploads.sql
var getLatestUploadsSQL string

// RainSum is the total of the rain column over a time window together with
// the range of unit systems the summed rows were stored in.
// Total is nil when the window holds no rain values.
type RainSum struct {
	Total    *float64
	MinUnits units.System
	MaxUnits units.System
}

// Upload is the outcome of one upload attempt for an archive record.
type Upload struct {
	Protocol string    `json:"protocol"`
	DateTime int64     `json:"dateTime"`
	Outcome  string    `json:"outcome"`
	Detail   string    `json:"detail,omitempty"`
	LoggedAt time.Time `json:"loggedAt"`
}

type ArchiveRepository interface {
	InsertRecord(ctx context.Context, rec archive.Record) error
	LatestRecords(ctx context.Context, limit int) ([]archive.Record, error)
	SumRain(ctx context.Context, from int64, to int64) (RainSum, error)
	RecordUpload(ctx context.Context, u Upload) error
	LatestUploads(ctx context.Context, protocol string, limit int) ([]Upload, error)
}

type repositoryImpl struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRepository(db *sql.DB, logger *slog.Logger) ArchiveRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &repositoryImpl{db: db, logger: logger}
}

// InsertRecord stores rec. A record whose dateTime is already archived is ignored.
func (r *repositoryImpl) InsertRecord(ctx context.Context, rec archive.Record) error {
	if !rec.USUnits.Valid() {
		return fmt.Errorf("insert record %d: unknown unit system %d", rec.DateTime, int(rec.USUnits))
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.DateTime, err)
	}

	var rain any
	if v, ok := rec.Get("rain"); ok {
		rain = v
	}

	_, err = r.db.ExecContext(ctx, insertRecordSQL, rec.DateTime, int(rec.USUnits), rec.Interval, rain, string(body))
	if err != nil {
		return fmt.Errorf("insert record %d: %w", rec.DateTime, err)
	}
	return nil
}

func (r *repositoryImpl) LatestRecords(ctx context.Context, limit int) ([]archive.Record, error) {
	rows, err := r.db.QueryContext(ctx, getLatestRecordsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("close latest records rows", "error", err)
		}
	}()

	var out []archive.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec archive.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode archived record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SumRain sums rain over dateTime in (from, to].
func (r *repositoryImpl) SumRain(ctx context.Context, from int64, to int64) (RainSum, error) {
	var (
		total    sql.NullFloat64
		minUnits sql.NullInt64
		maxUnits sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, sumRainSQL, from, to).Scan(&total, &minUnits, &maxUnits)
	if err != nil {
		return RainSum{}, fmt.Errorf("sum rain (%d, %d]: %w", from, to, err)
	}

	var out RainSum
	if total.Valid {
		v := total.Float64
		out.Total = &v
	}
	out.MinUnits = units.System(minUnits.Int64)
	out.MaxUnits = units.System(maxUnits.Int64)
	return out, nil
}

func (r *repositoryImpl) RecordUpload(ctx context.Context, u Upload) error {
	var detail any
	if u.Detail != "" {
		detail = u.Detail
	}
	_, err := r.db.ExecContext(ctx, upsertUploadSQL, u.Protocol, u.DateTime, u.Outcome, detail)
	if err != nil {
		return fmt.Errorf("record upload %s/%d: %w", u.Protocol, u.DateTime, err)
	}
	return nil
}

func (r *repositoryImpl) LatestUploads(ctx context.Context, protocol string, limit int) ([]Upload, error) {
	rows, err := r.db.QueryContext(ctx, getLatestUploadsSQL, protocol, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("close latest uploads rows", "error", err)
		}
	}()

	var out []Upload
	for rows.Next() {
		var u Upload
		var ts string
		if err := rows.Scan(&u.Protocol, &u.DateTime, &u.Outcome, &u.Detail, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse logged_at %q: %w", ts, err)
		}
		u.LoggedAt = t
		out = append(out, u)
	}
	return out, rows.Err()
}
