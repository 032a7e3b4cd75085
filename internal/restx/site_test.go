package restx

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSiteDict(t *testing.T) {
	section := map[string]any{
		"log_success": false,
		"timeout":     30,
		"IDOKEP": map[string]any{
			"username": "alice",
			"password": "secret",
			"timeout":  20,
			"enable":   "true",
		},
		"Other": map[string]any{"username": "bob"},
	}

	site, err := GetSiteDict(section, "IDOKEP", "username", "password")
	require.NoError(t, err)

	assert.Equal(t, "alice", site["username"])
	assert.Equal(t, false, site["log_success"], "scalar inherited from the parent section")
	assert.Equal(t, 20, site["timeout"], "service value wins over the inherited one")
	assert.NotContains(t, site, "enable")
	assert.NotContains(t, site, "Other")
}

func TestGetSiteDict_Missing(t *testing.T) {
	tests := []struct {
		name    string
		section map[string]any
		wantErr error
		missing []string
	}{
		{
			name:    "no section",
			section: map[string]any{},
			wantErr: ErrNotConfigured,
		},
		{
			name:    "disabled",
			section: map[string]any{"IDOKEP": map[string]any{"enable": false, "username": "a", "password": "b"}},
			wantErr: ErrNotEnabled,
		},
		{
			name:    "placeholders",
			section: map[string]any{"IDOKEP": map[string]any{"username": "INSERT_USERNAME_HERE", "password": "replace_me"}},
			missing: []string{"username", "password"},
		},
		{
			name:    "blank password",
			section: map[string]any{"IDOKEP": map[string]any{"username": "alice", "password": "  "}},
			missing: []string{"password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, err := GetSiteDict(tt.section, "IDOKEP", "username", "password")
			require.Error(t, err)
			assert.Nil(t, site)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			for _, opt := range tt.missing {
				assert.Contains(t, err.Error(), `"`+opt+`"`)
			}
			if len(tt.missing) > 0 {
				var missing *MissingOptionError
				assert.True(t, errors.As(err, &missing))
			}
		})
	}
}

func TestDecodeSiteOptions_Defaults(t *testing.T) {
	opts, err := DecodeSiteOptions(map[string]any{"username": "alice", "password": "secret"}, DefaultSiteOptions())
	require.NoError(t, err)

	assert.Equal(t, "alice", opts.Username)
	assert.Equal(t, 300*time.Second, opts.PostInterval)
	assert.Equal(t, math.MaxInt, opts.MaxBacklog)
	assert.Zero(t, opts.Stale)
	assert.True(t, opts.LogSuccess)
	assert.True(t, opts.LogFailure)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.MaxTries)
	assert.Equal(t, 5*time.Second, opts.RetryWait)
	assert.Equal(t, time.Hour, opts.RetryLogin)
	assert.Equal(t, time.Hour, opts.RetryCertificate)
	assert.False(t, opts.SkipUpload)
}

func TestDecodeSiteOptions_WeakTypes(t *testing.T) {
	site := map[string]any{
		"station_type":  "WS23XX",
		"post_interval": "60",
		"max_backlog":   "10",
		"stale":         1800,
		"log_success":   "False",
		"timeout":       "1m30s",
		"max_tries":     "5",
		"retry_wait":    2.5,
		"retry_login":   "None",
		"skip_upload":   "yes",
	}

	opts, err := DecodeSiteOptions(site, DefaultSiteOptions())
	require.NoError(t, err)

	assert.Equal(t, "WS23XX", opts.StationType)
	assert.Equal(t, time.Minute, opts.PostInterval)
	assert.Equal(t, 10, opts.MaxBacklog)
	assert.Equal(t, 30*time.Minute, opts.Stale)
	assert.False(t, opts.LogSuccess)
	assert.Equal(t, 90*time.Second, opts.Timeout)
	assert.Equal(t, 5, opts.MaxTries)
	assert.Equal(t, 2500*time.Millisecond, opts.RetryWait)
	assert.Zero(t, opts.RetryLogin)
	assert.True(t, opts.SkipUpload)
}

func TestDecodeSiteOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		site map[string]any
	}{
		{name: "zero tries", site: map[string]any{"max_tries": 0}},
		{name: "negative backlog", site: map[string]any{"max_backlog": -1}},
		{name: "bad duration", site: map[string]any{"timeout": "soon"}},
		{name: "bad bool", site: map[string]any{"skip_upload": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSiteOptions(tt.site, DefaultSiteOptions())
			require.Error(t, err)
		})
	}
}
