package restx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResponseChecker inspects the body of a 2xx response, one entry per line,
// and reports whether the server accepted the upload.
type ResponseChecker interface {
	CheckResponse(lines []string) bool
}

type PosterConfig struct {
	Protocol string
	Client   *http.Client
	Options  SiteOptions
	Checker  ResponseChecker
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Poster submits requests with the retry policy of a site: up to max_tries
// attempts, retry_wait apart, each bounded by timeout.
type Poster struct {
	protocol  string
	client    *http.Client
	maxTries  int
	retryWait time.Duration
	timeout   time.Duration
	checker   ResponseChecker
	logger    *slog.Logger
	metrics   *Metrics

	sleep func(context.Context, time.Duration) error
}

func NewPoster(cfg PosterConfig) *Poster {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTries := cfg.Options.MaxTries
	if maxTries < 1 {
		maxTries = 1
	}
	return &Poster{
		protocol:  cfg.Protocol,
		client:    client,
		maxTries:  maxTries,
		retryWait: cfg.Options.RetryWait,
		timeout:   cfg.Options.Timeout,
		checker:   cfg.Checker,
		logger:    logger,
		metrics:   cfg.Metrics,
		sleep:     sleepContext,
	}
}

// Post sends req until it gets a 2xx answer or runs out of attempts.
// A 2xx body is handed to the ResponseChecker; its verdict is logged and
// counted but does not fail the post. 401 and 403 yield *BadLoginError,
// certificate failures *CertificateError, and exhausted attempts
// *FailedPostError.
func (p *Poster) Post(ctx context.Context, req *http.Request) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxTries; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.retryWait); err != nil {
				return err
			}
		}

		p.metrics.recordAttempt(p.protocol)
		status, lines, err := p.do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isCertificateError(err) {
				return &CertificateError{Err: err}
			}
			p.logger.Debug("failed upload attempt", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		switch {
		case status >= 200 && status <= 299:
			if p.checker != nil && !p.checker.CheckResponse(lines) {
				p.metrics.recordRejected(p.protocol)
			}
			return nil
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &BadLoginError{Status: status}
		default:
			p.logger.Debug("failed upload attempt", "attempt", attempt, "status", status)
			lastErr = fmt.Errorf("http status %d", status)
		}
	}
	return &FailedPostError{Tries: p.maxTries, Err: lastErr}
}

func (p *Poster) do(ctx context.Context, req *http.Request) (int, []string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Do(req.Clone(ctx))
	if err != nil {
		return 0, nil, RedactURL(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Debug("close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, splitLines(body), nil
}

// RedactURL strips the query and userinfo from the URL reported by a
// *url.Error, since upload queries carry credentials. Other errors are
// returned unchanged.
func RedactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	redacted := ""
	if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
		redacted = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
	}
	return &url.Error{Op: urlErr.Op, URL: redacted, Err: urlErr.Err}
}

// splitLines splits a response body the way a line scanner would, without
// a limit on line length.
func splitLines(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
