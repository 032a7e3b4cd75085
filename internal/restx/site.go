package restx

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
)

var (
	ErrNotConfigured = errors.New("no configuration section")
	ErrNotEnabled    = errors.New("posting not enabled")
)

// MissingOptionError names a required option that is absent, blank or
// still set to a placeholder value.
type MissingOptionError struct {
	Option string
}

func (e *MissingOptionError) Error() string {
	return fmt.Sprintf("missing option %q", e.Option)
}

// placeholders are values shipped in default configuration stubs.
var placeholders = map[string]bool{
	"replace_me":           true,
	"INSERT_USERNAME_HERE": true,
	"INSERT_PASSWORD_HERE": true,
}

// SiteOptions are the per-destination settings of an uploader.
// Keys match the station configuration file; durations are given in seconds.
type SiteOptions struct {
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	StationType      string        `mapstructure:"station_type"`
	ServerURL        string        `mapstructure:"server_url"`
	PostInterval     time.Duration `mapstructure:"post_interval"`
	MaxBacklog       int           `mapstructure:"max_backlog"`
	Stale            time.Duration `mapstructure:"stale"`
	LogSuccess       bool          `mapstructure:"log_success"`
	LogFailure       bool          `mapstructure:"log_failure"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxTries         int           `mapstructure:"max_tries"`
	RetryWait        time.Duration `mapstructure:"retry_wait"`
	RetryLogin       time.Duration `mapstructure:"retry_login"`
	RetryCertificate time.Duration `mapstructure:"retry_certificate"`
	SkipUpload       bool          `mapstructure:"skip_upload"`
}

// DefaultSiteOptions returns the settings used for keys absent from the
// site section. Stale is zero, meaning records are never considered stale.
func DefaultSiteOptions() SiteOptions {
	return SiteOptions{
		PostInterval:     300 * time.Second,
		MaxBacklog:       math.MaxInt,
		LogSuccess:       true,
		LogFailure:       true,
		Timeout:          10 * time.Second,
		MaxTries:         3,
		RetryWait:        5 * time.Second,
		RetryLogin:       3600 * time.Second,
		RetryCertificate: 3600 * time.Second,
	}
}

// GetSiteDict extracts the section for service from the uploader
// configuration (the StdRESTful level). Scalar options set at that level
// are inherited unless the service overrides them. The "enable" key is
// consumed here. Every missing required option is reported.
func GetSiteDict(section map[string]any, service string, required ...string) (map[string]any, error) {
	raw, ok := section[service]
	if !ok {
		return nil, fmt.Errorf("%s: %w", service, ErrNotConfigured)
	}
	svc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: section is %T, not a mapping", service, raw)
	}

	site := make(map[string]any, len(svc))
	for k, v := range section {
		if _, nested := v.(map[string]any); nested {
			continue
		}
		site[k] = v
	}
	for k, v := range svc {
		site[k] = v
	}

	if v, ok := site["enable"]; ok {
		enabled, err := toBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: enable: %w", service, err)
		}
		if !enabled {
			return nil, fmt.Errorf("%s: %w", service, ErrNotEnabled)
		}
	}
	delete(site, "enable")

	var result *multierror.Error
	for _, opt := range required {
		v, ok := site[opt]
		s := strings.TrimSpace(fmt.Sprint(v))
		if !ok || v == nil || s == "" || placeholders[s] {
			result = multierror.Append(result, &MissingOptionError{Option: opt})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", service, err)
	}

	return site, nil
}

// DecodeSiteOptions decodes a site dictionary over defaults. Values are
// weakly typed: "true"/"1" decode into booleans, numeric strings into
// integers, and seconds (or Go duration strings) into durations.
// "None" or an empty value disables a duration.
func DecodeSiteOptions(site map[string]any, defaults SiteOptions) (SiteOptions, error) {
	opts := defaults
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(boolHook, secondsHook),
	})
	if err != nil {
		return SiteOptions{}, err
	}
	if err := dec.Decode(site); err != nil {
		return SiteOptions{}, fmt.Errorf("decode site options: %w", err)
	}
	if opts.MaxTries < 1 {
		return SiteOptions{}, fmt.Errorf("max_tries must be >= 1, got %d", opts.MaxTries)
	}
	if opts.MaxBacklog < 0 {
		return SiteOptions{}, fmt.Errorf("max_backlog must be >= 0, got %d", opts.MaxBacklog)
	}
	return opts, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func boolHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Bool || from.Kind() != reflect.String {
		return data, nil
	}
	return toBool(data)
}

func secondsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	if d, ok := data.(time.Duration); ok {
		return d, nil
	}

	v := reflect.ValueOf(data)
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(v.Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(v.Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(v.Float() * float64(time.Second)), nil
	case reflect.String:
		s := strings.TrimSpace(v.String())
		if s == "" || strings.EqualFold(s, "none") {
			return time.Duration(0), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", s)
		}
		return d, nil
	}
	return data, nil
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0", "none":
			return false, nil
		}
	}
	return false, fmt.Errorf("cannot interpret %v as a boolean", v)
}
