package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, StoreDriverGraph, cfg.Store.Driver)
	assert.Equal(t, ProviderHTTP, cfg.Screening.Provider)
	assert.Equal(t, "5000", cfg.Rules.LargeAmount.String())
	assert.Equal(t, []string{"KP", "IR", "SY", "North Korea", "Iran", "Syria"}, cfg.Rules.HighRiskCountries)
	assert.Equal(t, 10*time.Minute, cfg.Rules.ShortInterval)
	assert.Equal(t, 5*time.Second, cfg.Review.Delay)
	assert.Equal(t, 256, cfg.Review.QueueSize)
	assert.Nil(t, cfg.Screening.Sources)
	assert.False(t, cfg.Alert.Enabled())
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("RULES_HIGH_RISK_COUNTRIES", "IR, KP ,")
	t.Setenv("RULES_LARGE_AMOUNT", "7500.50")
	t.Setenv("REVIEW_DELAY", "2s")
	t.Setenv("ALERT_MAILGUN_DOMAIN", "mg.example.com")
	t.Setenv("ALERT_MAILGUN_API_KEY", "key")
	t.Setenv("ALERT_RECIPIENTS", "a@example.com,b@example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, []string{"IR", "KP"}, cfg.Rules.HighRiskCountries)
	assert.Equal(t, "7500.5", cfg.Rules.LargeAmount.String())
	assert.Equal(t, 2*time.Second, cfg.Review.Delay)
	assert.True(t, cfg.Alert.Enabled())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Alert.Recipients)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 7070
screening:
  provider: watchlist
  watchlist_path: /etc/txscreen/watchlist.json
  sources: [sdn, un]
rules:
  high_risk_countries:
    - CU
    - VE
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SERVER_PORT", "6060")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.HTTP.Port, "environment wins over the file")
	assert.Equal(t, ProviderWatchlist, cfg.Screening.Provider)
	assert.Equal(t, "/etc/txscreen/watchlist.json", cfg.Screening.WatchlistPath)
	assert.Equal(t, []string{"sdn", "un"}, cfg.Screening.Sources)
	assert.Equal(t, []string{"CU", "VE"}, cfg.Rules.HighRiskCountries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"unknown provider", map[string]string{"SCREENING_PROVIDER": "carrier-pigeon"}},
		{"bad amount", map[string]string{"RULES_LARGE_AMOUNT": "lots"}},
		{"negative delta", map[string]string{"RULES_SIMILAR_AMOUNT_DELTA": "-1"}},
		{"rate without burst", map[string]string{"RATELIMIT_RPS": "5", "RATELIMIT_BURST": "0"}},
		{"delay equals timeout", map[string]string{"REVIEW_DELAY": "30s", "REVIEW_TIMEOUT": "30s"}},
		{"delay outlasts timeout", map[string]string{"REVIEW_DELAY": "10s", "REVIEW_TIMEOUT": "3s"}},
		{"negative delay", map[string]string{"REVIEW_DELAY": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReviewDelayWithinTimeout(t *testing.T) {
	t.Setenv("REVIEW_DELAY", "29s")
	t.Setenv("REVIEW_TIMEOUT", "30s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 29*time.Second, cfg.Review.Delay)
	assert.Equal(t, 30*time.Second, cfg.Review.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStringList(t *testing.T) {
	assert.Nil(t, stringList(nil))
	assert.Nil(t, stringList(" , "))
	assert.Equal(t, []string{"a", "b"}, stringList("a, b"))
	assert.Equal(t, []string{"1", "x"}, stringList([]any{1, " x "}))
}
