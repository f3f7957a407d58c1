// Package app assembles the runtime components from configuration. It is
// shared by the server and ingest commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vanshika/txscreen/internal/config"
	"github.com/vanshika/txscreen/internal/graph"
	"github.com/vanshika/txscreen/internal/notify"
	"github.com/vanshika/txscreen/internal/repository"
	"github.com/vanshika/txscreen/internal/review"
	"github.com/vanshika/txscreen/internal/rules"
	"github.com/vanshika/txscreen/internal/screening"
	"github.com/vanshika/txscreen/internal/service"
	"github.com/vanshika/txscreen/internal/sqlstore"
)

// ErrMissingWatchlist is returned when the watchlist provider has no file.
var ErrMissingWatchlist = errors.New("screening.watchlist_path is required for the watchlist provider")

// CloseFunc releases a store's underlying connection.
type CloseFunc func(ctx context.Context) error

// OpenStore connects the configured persistence backend and prepares its schema.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (service.Store, CloseFunc, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		store, err := sqlstore.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.Store.SQLitePath)
		return store, func(context.Context) error { return store.Close() }, nil

	case config.StoreDriverGraph:
		client, err := graph.NewNeo4jClient(ctx, graph.Options{
			URI:            cfg.Graph.URI,
			Database:       cfg.Graph.Database,
			Username:       cfg.Graph.Username,
			Password:       cfg.Graph.Password,
			MaxConnections: cfg.Graph.MaxConnections,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := repository.New(client)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, nil, err
		}
		logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
		return repo, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewEvaluator builds the rule evaluator from the configured thresholds.
func NewEvaluator(cfg config.RulesConfig) *rules.Evaluator {
	return rules.NewEvaluator(rules.Config{
		HistorySize:           cfg.HistorySize,
		LargeAmount:           cfg.LargeAmount,
		HighRiskCountries:     cfg.HighRiskCountries,
		ShortInterval:         cfg.ShortInterval,
		SimilarAmountDelta:    cfg.SimilarAmountDelta,
		SimilarAmountWindow:   cfg.SimilarAmountWindow,
		MaxDistinctRecipients: cfg.MaxDistinctRecipients,
	})
}

// NewScreener builds the configured sanctions provider wrapped in the verdict cache.
func NewScreener(cfg config.ScreeningConfig, logger *slog.Logger) (screening.Screener, error) {
	var next screening.Screener
	switch cfg.Provider {
	case config.ProviderWatchlist:
		if cfg.WatchlistPath == "" {
			return nil, ErrMissingWatchlist
		}
		entries, err := screening.LoadWatchlist(cfg.WatchlistPath)
		if err != nil {
			return nil, err
		}
		w := screening.NewWatchlistScreener(entries, cfg.MinScore)
		logger.Info("loaded sanctions watchlist", "path", cfg.WatchlistPath, "entries", w.Len())
		next = w
	default:
		client, err := screening.NewClient(screening.Options{
			URL:      cfg.URL,
			APIKey:   cfg.APIKey,
			MinScore: cfg.MinScore,
			Sources:  cfg.Sources,
			Timeout:  cfg.Timeout,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		next = client
	}
	return screening.NewCachedScreener(next, cfg.CacheTTL), nil
}

// NewNotifier combines callback delivery with Mailgun alerts when configured.
func NewNotifier(cfg config.Config, logger *slog.Logger) (review.Notifier, error) {
	notifiers := notify.Multi{notify.NewCallbackNotifier(nil, cfg.Notify.CallbackTimeout, logger)}
	if cfg.Alert.Enabled() {
		alerter, err := notify.NewMailgunAlerter(notify.MailgunOptions{
			Domain:     cfg.Alert.MailgunDomain,
			APIKey:     cfg.Alert.MailgunAPIKey,
			APIBase:    cfg.Alert.MailgunAPIBase,
			Sender:     cfg.Alert.Sender,
			Recipients: cfg.Alert.Recipients,
		}, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, alerter)
	}
	return notifiers, nil
}

// NewReviewer builds the secondary reviewer. The caller starts it.
func NewReviewer(cfg config.ReviewConfig, store review.Store, notifier review.Notifier, logger *slog.Logger) *review.Reviewer {
	return review.NewReviewer(review.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Delay:     cfg.Delay,
		Timeout:   cfg.Timeout,
	}, store, review.NewRandomClassifier(nil), notifier, logger)
}

// ParseAllowedOrigins splits a comma separated origin list.
func ParseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(csv, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
