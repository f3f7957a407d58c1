package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/txscreen/internal/config"
	"github.com/vanshika/txscreen/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_SQLite(t *testing.T) {
	var cfg config.Config
	cfg.Store.Driver = config.StoreDriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "app.db")

	store, closeFn, err := OpenStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn(context.Background()) })

	require.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	var cfg config.Config
	cfg.Store.Driver = "mongo"

	_, _, err := OpenStore(context.Background(), cfg, discardLogger())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestNewScreener(t *testing.T) {
	_, err := NewScreener(config.ScreeningConfig{Provider: config.ProviderWatchlist}, discardLogger())
	require.ErrorIs(t, err, ErrMissingWatchlist)

	_, err = NewScreener(config.ScreeningConfig{Provider: config.ProviderHTTP}, discardLogger())
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "watchlist.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Ivan Petrov","nationalId":"X1","country":"RU"}]`), 0o600))

	screener, err := NewScreener(config.ScreeningConfig{
		Provider:      config.ProviderWatchlist,
		WatchlistPath: path,
	}, discardLogger())
	require.NoError(t, err)

	verdict := screener.ScreenName(context.Background(), "Ivan Petrov")
	assert.True(t, verdict.Match())
}

func TestNewNotifier(t *testing.T) {
	var cfg config.Config
	n, err := NewNotifier(cfg, discardLogger())
	require.NoError(t, err)
	assert.Len(t, n, 1)

	cfg.Alert = config.AlertConfig{
		MailgunDomain: "mg.example.com",
		MailgunAPIKey: "key",
		Sender:        "alerts@example.com",
		Recipients:    []string{"compliance@example.com"},
	}
	n, err = NewNotifier(cfg, discardLogger())
	require.NoError(t, err)
	require.IsType(t, notify.Multi{}, n)
	assert.Len(t, n.(notify.Multi), 2)

	cfg.Alert.Recipients = nil
	_, err = NewNotifier(cfg, discardLogger())
	require.ErrorIs(t, err, notify.ErrMailgunConfig)
}

func TestParseAllowedOrigins(t *testing.T) {
	assert.Nil(t, ParseAllowedOrigins(""))
	assert.Equal(t,
		[]string{"http://a.test", "http://b.test"},
		ParseAllowedOrigins(" http://a.test, ,http://b.test "),
	)
}
