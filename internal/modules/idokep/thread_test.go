package idokep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idokep-uploader/internal/archive"
	"idokep-uploader/internal/archive/repository"
	"idokep-uploader/internal/restx"
	"idokep-uploader/internal/units"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	level slog.Level
	msg   string
	text  string
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	h.records = append(h.records, capturedRecord{level: r.Level, msg: r.Message, text: b.String()})
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) all() []capturedRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]capturedRecord(nil), h.records...)
}

func (h *captureHandler) count(level slog.Level, msg string) int {
	n := 0
	for _, r := range h.all() {
		if r.level == level && r.msg == msg {
			n++
		}
	}
	return n
}

func ptr(v float64) *float64 { return &v }

func sampleRecord() archive.Record {
	return archive.Record{
		DateTime: 1700000000,
		USUnits:  units.MetricWX,
		Interval: 5,
		Fields: map[string]*float64{
			"outTemp":     ptr(21.3),
			"outHumidity": ptr(55),
			"windDir":     ptr(180),
			"windSpeed":   ptr(3.2),
			"windGust":    ptr(5.1),
			"barometer":   ptr(1013.2),
			"rain24":      ptr(0.0),
			"hourRain":    ptr(0.0),
		},
	}
}

func sampleOptions() restx.SiteOptions {
	opts := restx.DefaultSiteOptions()
	opts.Username = "alice"
	opts.Password = "secret"
	opts.StationType = "WS23XX"
	return opts
}

func newTestThread(opts restx.SiteOptions, client *http.Client, h *captureHandler) *Thread {
	if h == nil {
		h = &captureHandler{}
	}
	return NewThread(ThreadConfig{
		Options:  opts,
		Client:   client,
		Location: time.UTC,
		Logger:   slog.New(h),
	})
}

const sampleQuery = "user=alice&pass=secret&ev=2023&ho=11&nap=14&ora=22&perc=13&mp=20" +
	"&hom=21.3&rh=55&szelirany=180&szelero=3.2&szellokes=5.1&p=1013.2&csap=0.0&csap1h=0.00&tipus=WS23XX"

func TestFormatURL_AllFields(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	got, err := thread.FormatURL(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL+"?"+sampleQuery, got)

	query := strings.SplitN(got, "?", 2)[1]
	var keys []string
	for _, kv := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(kv, "=")
		keys = append(keys, k)
		assert.NotEmpty(t, v, "value of %s", k)
	}
	assert.Equal(t, []string{
		"user", "pass", "ev", "ho", "nap", "ora", "perc", "mp",
		"hom", "rh", "szelirany", "szelero", "szellokes", "p", "csap", "csap1h", "tipus",
	}, keys)
}

func TestFormatURL_MissingFields(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	rec := sampleRecord()
	delete(rec.Fields, "windGust")
	rec.Fields["barometer"] = nil

	got, err := thread.FormatURL(rec)
	require.NoError(t, err)
	assert.Contains(t, got, "&szelero=3.2&szellokes=&p=&csap=0.0&")
	assert.Equal(t, 17, strings.Count(got, "="))
}

func TestFormatURL_ConvertsUnits(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	rec := archive.Record{
		DateTime: 1700000000,
		USUnits:  units.US,
		Fields: map[string]*float64{
			"outTemp":   ptr(70),
			"windSpeed": ptr(10),
			"barometer": ptr(29.92),
			"hourRain":  ptr(0.1),
			"rain24":    ptr(0.5),
		},
	}

	got, err := thread.FormatURL(rec)
	require.NoError(t, err)
	assert.Contains(t, got, "&hom=21.1&")
	assert.Contains(t, got, "&szelero=4.5&szellokes=&p=1013.2&csap=12.7&csap1h=2.54&")
}

func TestFormatURL_LocalTime(t *testing.T) {
	budapest := time.FixedZone("CET", 3600)
	thread := NewThread(ThreadConfig{Options: sampleOptions(), Location: budapest, Logger: slog.New(&captureHandler{})})

	got, err := thread.FormatURL(sampleRecord())
	require.NoError(t, err)
	assert.Contains(t, got, "&ev=2023&ho=11&nap=14&ora=23&perc=13&mp=20&")
}

func TestFormatURL_Idempotent(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	first, err := thread.FormatURL(sampleRecord())
	require.NoError(t, err)
	second, err := thread.FormatURL(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFormatURL_UnknownUnits(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	rec := sampleRecord()
	rec.USUnits = units.System(2)
	_, err := thread.FormatURL(rec)
	require.Error(t, err)
}

func TestFormatURL_MasksPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "plain", password: "s3cr3t"},
		{name: "needs escaping", password: "p&ss word"},
		{name: "also a value", password: "55"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &captureHandler{}
			opts := sampleOptions()
			opts.Password = tt.password
			thread := newTestThread(opts, nil, h)

			_, err := thread.FormatURL(sampleRecord())
			require.NoError(t, err)

			records := h.all()
			require.NotEmpty(t, records)
			for _, r := range records {
				assert.NotContains(t, r.text, tt.password)
			}
			require.Equal(t, 1, h.count(slog.LevelDebug, "url"))
		})
	}
}

func TestFormatURL_MaskedURLShape(t *testing.T) {
	h := &captureHandler{}
	thread := newTestThread(sampleOptions(), nil, h)

	_, err := thread.FormatURL(sampleRecord())
	require.NoError(t, err)

	records := h.all()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].text, "user=alice&pass=XXX&ev=2023")
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{5.1, "5.1"},
		{0, "0.0"},
		{21, "21.0"},
		{-3.5, "-3.5"},
		{0.1 + 0.2, "0.30000000000000004"},
		{1e16, "1e+16"},
		{0.00001, "1e-05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in), "formatFloat(%v)", tt.in)
	}
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		wantOK    bool
		wantError int
	}{
		{name: "marker inside line", lines: []string{"OK sz!thanks"}, wantOK: true},
		{name: "marker on a later line", lines: []string{"hello", "sz!"}, wantOK: true},
		{name: "rejected", lines: []string{"error: bad user"}, wantOK: false, wantError: 1},
		{name: "empty response", lines: nil, wantOK: false, wantError: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &captureHandler{}
			thread := newTestThread(sampleOptions(), nil, h)

			assert.Equal(t, tt.wantOK, thread.CheckResponse(tt.lines))
			assert.Equal(t, tt.wantError, h.count(slog.LevelError, "server returned an error"))
			assert.Equal(t, 1, h.count(slog.LevelInfo, "upload response received"))
		})
	}
}

func TestProcessRecord_Posts(t *testing.T) {
	requests := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		_, _ = fmt.Fprintln(w, "Koszonjuk, sz!")
	}))
	defer srv.Close()

	h := &captureHandler{}
	opts := sampleOptions()
	opts.ServerURL = srv.URL
	thread := newTestThread(opts, srv.Client(), h)

	require.NoError(t, thread.ProcessRecord(context.Background(), sampleRecord()))
	got := <-requests
	assert.Equal(t, sampleQuery, got.URL.RawQuery)
	assert.Equal(t, "idokep-uploader/"+Version, got.Header.Get("User-Agent"))
	assert.Equal(t, 1, h.count(slog.LevelInfo, "upload request sent"))
	assert.Zero(t, h.count(slog.LevelError, "server returned an error"))
}

func TestProcessRecord_FailureStillLogsDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := &captureHandler{}
	opts := sampleOptions()
	opts.ServerURL = srv.URL
	thread := newTestThread(opts, srv.Client(), h)

	err := thread.ProcessRecord(context.Background(), sampleRecord())
	var badLogin *restx.BadLoginError
	require.True(t, errors.As(err, &badLogin), "got %v", err)
	assert.Equal(t, 1, h.count(slog.LevelInfo, "upload request sent"))
}

func TestProcessRecord_SkipUpload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	h := &captureHandler{}
	opts := sampleOptions()
	opts.ServerURL = srv.URL
	opts.SkipUpload = true
	thread := newTestThread(opts, srv.Client(), h)

	for i := 0; i < 5; i++ {
		rec := sampleRecord()
		rec.DateTime += int64(i * 300)
		err := thread.ProcessRecord(context.Background(), rec)
		require.ErrorIs(t, err, restx.ErrDryRun)
	}
	assert.Zero(t, calls.Load())
	assert.Equal(t, 5, h.count(slog.LevelInfo, "skipping upload"))
}

func TestProcessRecord_UnknownUnitsAborts(t *testing.T) {
	thread := newTestThread(sampleOptions(), nil, nil)

	rec := sampleRecord()
	rec.USUnits = units.System(99)
	err := thread.ProcessRecord(context.Background(), rec)
	require.ErrorIs(t, err, restx.ErrAborted)
}

const leakyPassword = "s3cr3tpw"

func assertNoPassword(t *testing.T, h *captureHandler, err error) {
	t.Helper()
	if err != nil {
		assert.NotContains(t, err.Error(), leakyPassword)
	}
	for _, r := range h.all() {
		assert.NotContains(t, r.text, leakyPassword, "log record %q", r.msg)
	}
}

func TestProcessRecord_TransportErrorHidesPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	h := &captureHandler{}
	opts := sampleOptions()
	opts.Password = leakyPassword
	opts.ServerURL = srv.URL
	opts.MaxTries = 1
	thread := newTestThread(opts, srv.Client(), h)

	err := thread.ProcessRecord(context.Background(), sampleRecord())
	var failed *restx.FailedPostError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, err.Error(), srv.URL)
	assert.Equal(t, 1, h.count(slog.LevelDebug, "failed upload attempt"))
	assertNoPassword(t, h, err)
}

func TestProcessRecord_BadServerURLHidesPassword(t *testing.T) {
	h := &captureHandler{}
	opts := sampleOptions()
	opts.Password = leakyPassword
	opts.ServerURL = "http://bad host/sendws.php"
	thread := newTestThread(opts, nil, h)

	err := thread.ProcessRecord(context.Background(), sampleRecord())
	require.ErrorIs(t, err, restx.ErrAborted)
	assertNoPassword(t, h, err)
}

type captureJournal struct {
	mu      sync.Mutex
	uploads []repository.Upload
}

func (j *captureJournal) RecordUpload(_ context.Context, u repository.Upload) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.uploads = append(j.uploads, u)
	return nil
}

func (j *captureJournal) all() []repository.Upload {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]repository.Upload(nil), j.uploads...)
}

func TestWorker_FailedPostsHidePassword(t *testing.T) {
	refused := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	refused.Close()
	untrusted := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "sz!")
	}))
	defer untrusted.Close()

	tests := []struct {
		name        string
		serverURL   string
		wantOutcome string
		wantLog     string
		stops       bool
	}{
		{name: "connection refused", serverURL: refused.URL, wantOutcome: restx.OutcomeFailed, wantLog: "failed to publish record"},
		{name: "untrusted certificate", serverURL: untrusted.URL, wantOutcome: restx.OutcomeCertificate, wantLog: "certificate validation failed, no retry specified", stops: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &captureHandler{}
			opts := sampleOptions()
			opts.Password = leakyPassword
			opts.ServerURL = tt.serverURL
			opts.MaxTries = 1
			opts.RetryCertificate = 0

			// The default client does not trust the test server's certificate.
			thread := newTestThread(opts, &http.Client{Timeout: 5 * time.Second}, h)
			journal := &captureJournal{}
			queue := restx.NewQueue[archive.Record]()
			worker := restx.NewWorker(restx.WorkerConfig{
				Protocol:  Protocol,
				Queue:     queue,
				Processor: thread,
				Options:   opts,
				Logger:    slog.New(h),
				Metrics:   restx.NewMetrics(),
				Journal:   journal,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- worker.Run(ctx) }()
			queue.Put(sampleRecord())

			require.Eventually(t, func() bool { return len(journal.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
			if !tt.stops {
				cancel()
			}
			var runErr error
			select {
			case runErr = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("worker did not stop")
			}
			if tt.stops {
				require.Error(t, runErr)
			} else {
				require.NoError(t, runErr)
			}

			upload := journal.all()[0]
			assert.Equal(t, tt.wantOutcome, upload.Outcome)
			assert.NotEmpty(t, upload.Detail)
			assert.NotContains(t, upload.Detail, leakyPassword)
			assert.Equal(t, 1, h.count(slog.LevelError, tt.wantLog))
			assertNoPassword(t, h, runErr)
		})
	}
}
