package idokep

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/restx"
)

const (
	Protocol = "IDOKEP"
	Version  = "0.3"

	DefaultServerURL   = "https://pro.idokep.hu/sendws.php"
	DefaultStationType = "WS23XX"

	// successMarker appears in the response body of an accepted upload.
	successMarker = "sz!"
	passwordMask  = "XXX"
)

// formats maps archive fields to their printf verb. Fields not listed are
// printed with the shortest representation that round-trips.
var formats = map[string]string{
	"barometer":   "%.1f",
	"outTemp":     "%.1f",
	"outHumidity": "%.0f",
	"windSpeed":   "%.1f",
	"windDir":     "%.0f",
	"hourRain":    "%.2f",
	"dayRain":     "%.2f",
}

// parameters lists the query keys after the calendar fields, in the order
// the server expects them, with the archive field each one carries.
var parameters = []struct {
	key   string
	field string
}{
	{"hom", "outTemp"},
	{"rh", "outHumidity"},
	{"szelirany", "windDir"},
	{"szelero", "windSpeed"},
	{"szellokes", "windGust"},
	{"p", "barometer"},
	{"csap", "rain24"},
	{"csap1h", "hourRain"},
}

// RecordPoster submits a prepared request.
type RecordPoster interface {
	Post(ctx context.Context, req *http.Request) error
}

type ThreadConfig struct {
	Options   restx.SiteOptions
	Client    *http.Client
	Augmenter *restx.Augmenter
	Location  *time.Location
	UserAgent string
	Logger    *slog.Logger
	Metrics   *restx.Metrics
}

// Thread turns archive records into IDOKEP upload requests.
type Thread struct {
	opts      restx.SiteOptions
	augmenter *restx.Augmenter
	location  *time.Location
	userAgent string
	logger    *slog.Logger
	poster    RecordPoster
}

func NewThread(cfg ThreadConfig) *Thread {
	opts := cfg.Options
	if opts.ServerURL == "" {
		opts.ServerURL = DefaultServerURL
	}
	if opts.StationType == "" {
		opts.StationType = DefaultStationType
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "idokep-uploader/" + Version
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Thread{
		opts:      opts,
		augmenter: cfg.Augmenter,
		location:  loc,
		userAgent: userAgent,
		logger:    logger,
	}
	t.poster = restx.NewPoster(restx.PosterConfig{
		Protocol: Protocol,
		Client:   cfg.Client,
		Options:  opts,
		Checker:  t,
		Logger:   logger,
		Metrics:  cfg.Metrics,
	})
	return t
}

// GetRecord prepares rec for formatting. Rain totals missing from the
// record are filled from the archive.
func (t *Thread) GetRecord(ctx context.Context, rec archive.Record) archive.Record {
	return t.augmenter.GetRecord(ctx, rec)
}

// FormatURL builds the upload URL for rec. The record is converted to
// metric-wx units first; calendar fields are in the thread's local time.
func (t *Thread) FormatURL(rec archive.Record) (string, error) {
	metric, err := rec.ToMetricWX()
	if err != nil {
		return "", fmt.Errorf("convert record %d: %w", rec.DateTime, err)
	}

	u := t.buildURL(metric, url.QueryEscape(t.opts.Password))
	if t.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.logger.Debug("url", "url", t.maskURL(metric))
	}
	return u, nil
}

func (t *Thread) buildURL(rec archive.Record, pass string) string {
	ts := time.Unix(rec.DateTime, 0).In(t.location)

	values := make([]string, 0, 17)
	add := func(key, value string) {
		values = append(values, key+"="+value)
	}

	add("user", url.QueryEscape(t.opts.Username))
	add("pass", pass)
	add("ev", ts.Format("2006"))
	add("ho", ts.Format("01"))
	add("nap", ts.Format("02"))
	add("ora", ts.Format("15"))
	add("perc", ts.Format("04"))
	add("mp", ts.Format("05"))
	for _, p := range parameters {
		add(p.key, formatField(rec, p.field))
	}
	add("tipus", url.QueryEscape(t.opts.StationType))

	return t.opts.ServerURL + "?" + strings.Join(values, "&")
}

// maskURL renders the URL with the password replaced, for logging.
func (t *Thread) maskURL(rec archive.Record) string {
	masked := t.buildURL(rec, passwordMask)
	if t.opts.Password == "" {
		return masked
	}
	masked = strings.ReplaceAll(masked, url.QueryEscape(t.opts.Password), passwordMask)
	masked = strings.ReplaceAll(masked, t.opts.Password, passwordMask)
	if strings.Contains(masked, t.opts.Password) {
		// The password is part of the mask itself.
		return ""
	}
	return masked
}

func formatField(rec archive.Record, field string) string {
	v, ok := rec.Get(field)
	if !ok {
		return ""
	}
	if f, ok := formats[field]; ok {
		return fmt.Sprintf(f, v)
	}
	return formatFloat(v)
}

// formatFloat prints v the shortest way that reads back exactly, keeping
// a decimal point on integral values (21 prints as "21.0").
func formatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strings.ToLower(strconv.FormatFloat(v, 'f', -1, 64))
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// CheckResponse reports whether any line of the response carries the
// success marker. A response without it is logged as an error.
func (t *Thread) CheckResponse(lines []string) bool {
	ok := false
	for _, line := range lines {
		if strings.Contains(line, successMarker) {
			ok = true
			break
		}
	}
	if !ok {
		t.logger.Error("server returned an error", "response", strings.Join(lines, ", "))
	}
	t.logger.Info("upload response received", "response", lines)
	return ok
}

// ProcessRecord formats rec and posts it. With skip_upload set nothing is
// sent and restx.ErrDryRun is returned.
func (t *Thread) ProcessRecord(ctx context.Context, rec archive.Record) error {
	r := t.GetRecord(ctx, rec)
	u, err := t.FormatURL(r)
	if err != nil {
		return fmt.Errorf("%w: %v", restx.ErrAborted, err)
	}

	if t.opts.SkipUpload {
		t.logger.Info("skipping upload", "date_time", rec.DateTime)
		return restx.ErrDryRun
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", restx.ErrAborted, restx.RedactURL(err))
	}
	req.Header.Set("User-Agent", t.userAgent)

	err = t.poster.Post(ctx, req)
	t.logger.Info("upload request sent", "date_time", rec.DateTime, "server", t.opts.ServerURL)
	return err
}
