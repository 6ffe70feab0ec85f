package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob that changes crawl behaviour. Values come from
// DefaultConfig, then an optional config file, then SCRAPER_* env vars.
type Config struct {
	MaxPages       int           `mapstructure:"max_pages"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	DownloadDelay  time.Duration `mapstructure:"download_delay"`
	RandomDelay    time.Duration `mapstructure:"random_delay"`

	MaxRetries    int           `mapstructure:"max_retries"`
	RenderRetries int           `mapstructure:"render_retries"`
	RetryStatuses []int         `mapstructure:"retry_statuses"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	DetailAttempts    int           `mapstructure:"detail_attempts"`
	ScrollIterations  int           `mapstructure:"scroll_iterations"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"`

	Headless   bool     `mapstructure:"headless"`
	UserAgents []string `mapstructure:"user_agents"`
	ProxyURL   string   `mapstructure:"proxy_url"`

	Output   OutputConfig          `mapstructure:"output"`
	Postgres PostgresConfig        `mapstructure:"postgres"`
	Redis    RedisConfig           `mapstructure:"redis"`
	Sites    map[string]SiteConfig `mapstructure:"sites"`

	MetricsPath string `mapstructure:"metrics_path"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
}

type OutputConfig struct {
	CSVPath    string `mapstructure:"csv_path"`
	JSONLPath  string `mapstructure:"jsonl_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Name      string `mapstructure:"name"`
	SSLMode   string `mapstructure:"sslmode"`
	BatchSize int    `mapstructure:"batch_size"`
}

// DSN builds the pgx connection string.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Name,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig enables shared dedup when Addr is set. An empty Namespace
// scopes dedup to one run; a fixed one carries it across runs for TTL.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	Namespace string        `mapstructure:"namespace"`
}

// SiteConfig overrides crawl settings for one named site.
type SiteConfig struct {
	StartURL string `mapstructure:"start_url"`
	MaxPages int    `mapstructure:"max_pages"`
}

func DefaultConfig() *Config {
	return &Config{
		MaxPages:          0,
		MaxConcurrency:    8,
		DownloadDelay:     1 * time.Second,
		RandomDelay:       2 * time.Second,
		MaxRetries:        5,
		RenderRetries:     2,
		RetryStatuses:     []int{429, 500, 502, 503, 504, 408, 522, 524},
		BackoffBase:       1 * time.Second,
		BackoffMax:        30 * time.Second,
		RequestTimeout:    60 * time.Second,
		NavigationTimeout: 120 * time.Second,
		DetailAttempts:    3,
		ScrollIterations:  3,
		ScrollPause:       2 * time.Second,
		Headless:          true,
		Output: OutputConfig{
			CSVPath: "output/{site}.csv",
		},
		Postgres: PostgresConfig{
			Host:      "localhost",
			Port:      5433,
			User:      "postgres",
			Password:  "postgres",
			Name:      "listing_scraper",
			SSLMode:   "disable",
			BatchSize: 50,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path (optional) and the environment.
// Env vars use the SCRAPER_ prefix with dots replaced by underscores,
// e.g. SCRAPER_OUTPUT_CSV_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("scraper")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "env" || filepath.Base(path) == ".env" {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("download_delay", d.DownloadDelay)
	v.SetDefault("random_delay", d.RandomDelay)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("render_retries", d.RenderRetries)
	v.SetDefault("retry_statuses", d.RetryStatuses)
	v.SetDefault("backoff_base", d.BackoffBase)
	v.SetDefault("backoff_max", d.BackoffMax)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("navigation_timeout", d.NavigationTimeout)
	v.SetDefault("detail_attempts", d.DetailAttempts)
	v.SetDefault("scroll_iterations", d.ScrollIterations)
	v.SetDefault("scroll_pause", d.ScrollPause)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("user_agents", d.UserAgents)
	v.SetDefault("proxy_url", d.ProxyURL)

	v.SetDefault("output.csv_path", d.Output.CSVPath)
	v.SetDefault("output.jsonl_path", d.Output.JSONLPath)
	v.SetDefault("output.sqlite_path", d.Output.SQLitePath)

	v.SetDefault("postgres.enabled", d.Postgres.Enabled)
	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.name", d.Postgres.Name)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)
	v.SetDefault("postgres.batch_size", d.Postgres.BatchSize)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("redis.namespace", d.Redis.Namespace)

	v.SetDefault("metrics_path", d.MetricsPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxPages < 0 {
		errs = append(errs, errors.New("max_pages must be >= 0"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errors.New("max_concurrency must be >= 1"))
	}
	if c.MaxRetries < 0 || c.RenderRetries < 0 {
		errs = append(errs, errors.New("retry ceilings must be >= 0"))
	}
	if c.DetailAttempts < 1 {
		errs = append(errs, errors.New("detail_attempts must be >= 1"))
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		errs = append(errs, fmt.Errorf("backoff window invalid: base=%v max=%v", c.BackoffBase, c.BackoffMax))
	}
	if c.DownloadDelay < 0 || c.RandomDelay < 0 {
		errs = append(errs, errors.New("delays must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ForSite returns a copy of c with the named site's overrides applied,
// plus the start URL override (empty when none).
func (c *Config) ForSite(name string) (*Config, string) {
	out := *c
	sc, ok := c.Sites[name]
	if !ok {
		return &out, ""
	}
	if sc.MaxPages > 0 {
		out.MaxPages = sc.MaxPages
	}
	return &out, sc.StartURL
}

// CSVPathFor expands the {site} placeholder in the CSV output path.
func (c *Config) CSVPathFor(site string) string {
	return strings.ReplaceAll(c.Output.CSVPath, "{site}", site)
}
