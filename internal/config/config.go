package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig
	Graph     GraphConfig
	Store     StoreConfig
	Logging   LoggingConfig
	Rules     RulesConfig
	Screening ScreeningConfig
	Review    ReviewConfig
	Notify    NotifyConfig
	Alert     AlertConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOriginsCSV string
}

// GraphConfig describes connectivity to the Neo4j graph database.
type GraphConfig struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string // graph|sqlite
	SQLitePath string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

// RulesConfig holds the business-rule thresholds.
type RulesConfig struct {
	HistorySize           int
	LargeAmount           decimal.Decimal
	HighRiskCountries     []string
	ShortInterval         time.Duration
	SimilarAmountDelta    decimal.Decimal
	SimilarAmountWindow   time.Duration
	MaxDistinctRecipients int
}

// ScreeningConfig configures the sanctions provider.
type ScreeningConfig struct {
	Provider      string // http|watchlist
	URL           string
	APIKey        string
	MinScore      int
	Sources       []string
	Timeout       time.Duration
	CacheTTL      time.Duration
	Policy        string // ignore|flag|reject
	WatchlistPath string
}

// ReviewConfig tunes the secondary reviewer worker pool.
type ReviewConfig struct {
	Workers   int
	QueueSize int
	Delay     time.Duration
	Timeout   time.Duration
}

// NotifyConfig configures callback delivery.
type NotifyConfig struct {
	CallbackTimeout time.Duration
}

// AlertConfig configures Mailgun compliance alerts. Empty Domain disables them.
type AlertConfig struct {
	MailgunDomain  string
	MailgunAPIKey  string
	MailgunAPIBase string
	Sender         string
	Recipients     []string
}

// Enabled reports whether alerting is configured.
func (a AlertConfig) Enabled() bool {
	return a.MailgunDomain != "" && a.MailgunAPIKey != ""
}

// AuthConfig configures bearer-token authentication. Empty JWTSecret disables it.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// RateLimitConfig configures the per-client request limiter. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

const (
	StoreDriverGraph  = "graph"
	StoreDriverSQLite = "sqlite"

	ProviderHTTP      = "http"
	ProviderWatchlist = "watchlist"
)

var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    15 * time.Second,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 10 * time.Second,
	"server.allowed_origins":  "",

	"graph.uri":             "",
	"graph.database":        "",
	"graph.username":        "",
	"graph.password":        "",
	"graph.max_connections": 10,

	"store.driver": StoreDriverGraph,
	"sqlite.path":  "txscreen.db",

	"log.level":          "info",
	"log.format":         "text",
	"log.include_caller": false,

	"rules.history_size":            5,
	"rules.large_amount":            "5000",
	"rules.high_risk_countries":     "KP,IR,SY,North Korea,Iran,Syria",
	"rules.short_interval":          10 * time.Minute,
	"rules.similar_amount_delta":    "100",
	"rules.similar_amount_window":   10 * time.Minute,
	"rules.max_distinct_recipients": 3,

	"screening.provider":       ProviderHTTP,
	"screening.url":            "",
	"screening.api_key":        "",
	"screening.min_score":      95,
	"screening.sources":        "",
	"screening.timeout":        5 * time.Second,
	"screening.cache_ttl":      10 * time.Minute,
	"screening.policy":         "ignore",
	"screening.watchlist_path": "",

	"review.workers":    2,
	"review.queue_size": 256,
	"review.delay":      5 * time.Second,
	"review.timeout":    30 * time.Second,

	"notify.callback_timeout": 10 * time.Second,

	"alert.mailgun_domain":   "",
	"alert.mailgun_api_key":  "",
	"alert.mailgun_api_base": "",
	"alert.sender":           "",
	"alert.recipients":       "",

	"auth.jwt_secret": "",
	"auth.issuer":     "txscreen",
	"auth.token_ttl":  24 * time.Hour,

	"ratelimit.rps":   0.0,
	"ratelimit.burst": 20,
}

// Load resolves configuration from defaults, an optional YAML file at path and
// environment variables (key server.port reads SERVER_PORT). A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:              v.GetString("server.host"),
			Port:              v.GetInt("server.port"),
			ReadTimeout:       v.GetDuration("server.read_timeout"),
			WriteTimeout:      v.GetDuration("server.write_timeout"),
			IdleTimeout:       v.GetDuration("server.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("server.shutdown_timeout"),
			AllowedOriginsCSV: v.GetString("server.allowed_origins"),
		},
		Graph: GraphConfig{
			URI:            v.GetString("graph.uri"),
			Database:       v.GetString("graph.database"),
			Username:       v.GetString("graph.username"),
			Password:       v.GetString("graph.password"),
			MaxConnections: v.GetInt("graph.max_connections"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
			SQLitePath: v.GetString("sqlite.path"),
		},
		Logging: LoggingConfig{
			Level:         v.GetString("log.level"),
			Format:        v.GetString("log.format"),
			IncludeCaller: v.GetBool("log.include_caller"),
		},
		Rules: RulesConfig{
			HistorySize:           v.GetInt("rules.history_size"),
			HighRiskCountries:     stringList(v.Get("rules.high_risk_countries")),
			ShortInterval:         v.GetDuration("rules.short_interval"),
			SimilarAmountWindow:   v.GetDuration("rules.similar_amount_window"),
			MaxDistinctRecipients: v.GetInt("rules.max_distinct_recipients"),
		},
		Screening: ScreeningConfig{
			Provider:      strings.ToLower(strings.TrimSpace(v.GetString("screening.provider"))),
			URL:           v.GetString("screening.url"),
			APIKey:        v.GetString("screening.api_key"),
			MinScore:      v.GetInt("screening.min_score"),
			Sources:       stringList(v.Get("screening.sources")),
			Timeout:       v.GetDuration("screening.timeout"),
			CacheTTL:      v.GetDuration("screening.cache_ttl"),
			Policy:        v.GetString("screening.policy"),
			WatchlistPath: v.GetString("screening.watchlist_path"),
		},
		Review: ReviewConfig{
			Workers:   v.GetInt("review.workers"),
			QueueSize: v.GetInt("review.queue_size"),
			Delay:     v.GetDuration("review.delay"),
			Timeout:   v.GetDuration("review.timeout"),
		},
		Notify: NotifyConfig{
			CallbackTimeout: v.GetDuration("notify.callback_timeout"),
		},
		Alert: AlertConfig{
			MailgunDomain:  v.GetString("alert.mailgun_domain"),
			MailgunAPIKey:  v.GetString("alert.mailgun_api_key"),
			MailgunAPIBase: v.GetString("alert.mailgun_api_base"),
			Sender:         v.GetString("alert.sender"),
			Recipients:     stringList(v.Get("alert.recipients")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("ratelimit.rps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
	}

	var err error
	if cfg.Rules.LargeAmount, err = decimal.NewFromString(v.GetString("rules.large_amount")); err != nil {
		return Config{}, fmt.Errorf("invalid rules.large_amount: %w", err)
	}
	if cfg.Rules.SimilarAmountDelta, err = decimal.NewFromString(v.GetString("rules.similar_amount_delta")); err != nil {
		return Config{}, fmt.Errorf("invalid rules.similar_amount_delta: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case StoreDriverGraph, StoreDriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Screening.Provider {
	case ProviderHTTP, ProviderWatchlist:
	default:
		return fmt.Errorf("unknown screening provider %q", c.Screening.Provider)
	}
	if c.Rules.LargeAmount.IsNegative() || c.Rules.SimilarAmountDelta.IsNegative() {
		return errors.New("rule amounts must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("ratelimit.burst must be positive when ratelimit.rps is set")
	}
	if c.Review.Delay < 0 {
		return errors.New("review.delay must not be negative")
	}
	if c.Review.Timeout > 0 && c.Review.Delay >= c.Review.Timeout {
		return fmt.Errorf("review.delay %s must be shorter than review.timeout %s", c.Review.Delay, c.Review.Timeout)
	}
	return nil
}

// stringList accepts a YAML sequence or a comma separated string.
func stringList(val any) []string {
	var parts []string
	switch v := val.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = []string{fmt.Sprint(v)}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
