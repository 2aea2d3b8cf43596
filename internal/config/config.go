// Package config loads and validates search engine configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	collyfetcher "github.com/JakeFAU/site-search/internal/fetcher/colly"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/indexer"
	"github.com/JakeFAU/site-search/internal/logging"
)

// Storage and visited-set backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig       `mapstructure:"server"`
	Logging  logging.Config     `mapstructure:"logging"`
	Sites    []index.SiteConfig `mapstructure:"sites"`
	Crawler  CrawlerConfig      `mapstructure:"crawler"`
	Headless HeadlessConfig     `mapstructure:"headless"`
	Storage  StorageConfig      `mapstructure:"storage"`
	Redis    RedisConfig        `mapstructure:"redis"`
	Search   SearchConfig       `mapstructure:"search"`
	Schedule ScheduleConfig     `mapstructure:"schedule"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CrawlerConfig governs site crawls and page fetches.
type CrawlerConfig struct {
	// Parallelism is the worker count per site; zero means runtime.NumCPU().
	Parallelism      int           `mapstructure:"parallelism"`
	Delay            time.Duration `mapstructure:"delay"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	Referer          string        `mapstructure:"referer"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxBodySize      int           `mapstructure:"max_body_size"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	RenderJavaScript bool          `mapstructure:"render_javascript"`
	RateLimitRPS     float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	VisitedBackend   string        `mapstructure:"visited_backend"`
	VisitedTTL       time.Duration `mapstructure:"visited_ttl"`
	ExtraExtensions  []string      `mapstructure:"extra_extensions"`
}

// HeadlessConfig configures the chromedp fetcher used when JavaScript rendering is on.
// Promote renders only the pages a plain fetch shows to be script-built.
type HeadlessConfig struct {
	Promote           bool          `mapstructure:"promote"`
	PromoteMinWords   int           `mapstructure:"promote_min_words"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
}

// StorageConfig selects and configures the index store.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// RedisConfig describes the Redis server holding shared visited sets.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SearchConfig tunes query answering.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// ScheduleConfig enables periodic full reindexing.
type ScheduleConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCHENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawler.parallelism", 0)
	v.SetDefault("crawler.delay", "250ms")
	v.SetDefault("crawler.timeout", "1h")
	v.SetDefault("crawler.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("crawler.referer", indexer.DefaultReferer)
	v.SetDefault("crawler.request_timeout", "15s")
	v.SetDefault("crawler.max_body_size", 10<<20)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.render_javascript", false)
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("crawler.visited_backend", BackendMemory)
	v.SetDefault("crawler.visited_ttl", "2h")
	v.SetDefault("crawler.extra_extensions", []string{})
	v.SetDefault("headless.promote", false)
	v.SetDefault("headless.promote_min_words", 50)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.navigation_timeout", "45s")
	v.SetDefault("headless.settle_delay", "500ms")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite_path", "searchengine.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval", "24h")
	v.SetDefault("metrics.enabled", true)
}

func (c *Config) normalize() {
	for i := range c.Sites {
		c.Sites[i].URL = index.NormalizeRoot(c.Sites[i].URL)
		c.Sites[i].Name = strings.TrimSpace(c.Sites[i].Name)
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Crawler.VisitedBackend = strings.ToLower(strings.TrimSpace(c.Crawler.VisitedBackend))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if err := validateSites(c.Sites); err != nil {
		return err
	}
	if c.Crawler.Parallelism < 0 {
		return errors.New("crawler.parallelism must be >= 0")
	}
	if c.Crawler.Delay < 0 {
		return errors.New("crawler.delay must be >= 0")
	}
	if c.Crawler.Timeout <= 0 {
		return errors.New("crawler.timeout must be > 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return errors.New("crawler.rate_limit_rps must be >= 0")
	}
	if (c.Crawler.RenderJavaScript || c.Headless.Promote) && c.Headless.MaxParallel <= 0 {
		return errors.New("headless.max_parallel must be > 0 when crawler.render_javascript or headless.promote is enabled")
	}
	switch c.Crawler.VisitedBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr must be set when crawler.visited_backend is redis")
		}
	default:
		return fmt.Errorf("crawler.visited_backend %q is not one of memory, redis", c.Crawler.VisitedBackend)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return errors.New("storage.sqlite_path must be set when storage.backend is sqlite")
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, sqlite, postgres", c.Storage.Backend)
	}
	if c.Search.DefaultLimit <= 0 {
		return errors.New("search.default_limit must be > 0")
	}
	if c.Schedule.Enabled && c.Schedule.Interval <= 0 {
		return errors.New("schedule.interval must be > 0 when schedule is enabled")
	}
	return nil
}

func validateSites(sites []index.SiteConfig) error {
	if len(sites) == 0 {
		return errors.New("sites must list at least one site")
	}
	seen := make(map[string]struct{}, len(sites))
	for i, site := range sites {
		u, err := url.Parse(site.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("sites[%d].url %q must be an absolute http(s) URL", i, site.URL)
		}
		if site.Name == "" {
			return fmt.Errorf("sites[%d].name must be set", i)
		}
		if _, dup := seen[site.URL]; dup {
			return fmt.Errorf("sites[%d].url %q is listed twice", i, site.URL)
		}
		seen[site.URL] = struct{}{}
	}
	return nil
}
