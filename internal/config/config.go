package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/spf13/viper"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"

	// userAgentsEnv lists User-Agents separated by "|"; agents contain commas.
	userAgentsEnv = "SCRAPER_USER_AGENTS"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	DataDir         string        `mapstructure:"data_dir"`
}

// ScraperConfig overrides the per-site run constants. Zero values keep the
// site default.
type ScraperConfig struct {
	FetchMode   string        `mapstructure:"fetch_mode"`
	MaxItems    int           `mapstructure:"max_items"`
	MaxPages    int           `mapstructure:"max_pages"`
	DetailDelay time.Duration `mapstructure:"detail_delay"`
	PageDelay   time.Duration `mapstructure:"page_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgents  []string      `mapstructure:"user_agents"`
	OutputDir   string        `mapstructure:"output_dir"`
}

type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ProxyServer string        `mapstructure:"proxy_server"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.host":             "SERVER_HOST",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"server.allowed_origins":  "SERVER_ALLOWED_ORIGINS",
	"server.data_dir":         "SERVER_DATA_DIR",

	"scraper.fetch_mode":   "SCRAPER_FETCH_MODE",
	"scraper.max_items":    "SCRAPER_MAX_ITEMS",
	"scraper.max_pages":    "SCRAPER_MAX_PAGES",
	"scraper.detail_delay": "SCRAPER_DETAIL_DELAY",
	"scraper.page_delay":   "SCRAPER_PAGE_DELAY",
	"scraper.timeout":      "SCRAPER_TIMEOUT",
	"scraper.output_dir":   "SCRAPER_OUTPUT_DIR",

	"browser.headless":     "BROWSER_HEADLESS",
	"browser.timeout":      "BROWSER_TIMEOUT",
	"browser.proxy_server": "BROWSER_PROXY_SERVER",
	"browser.max_retries":  "BROWSER_MAX_RETRIES",

	"llm.base_url":            "LLM_BASE_URL",
	"llm.model":               "LLM_MODEL",
	"llm.temperature":         "LLM_TEMPERATURE",
	"llm.timeout":             "LLM_TIMEOUT",
	"llm.requests_per_second": "LLM_REQUESTS_PER_SECOND",
	"llm.burst":               "LLM_BURST",

	"database.enabled":   "DB_ENABLED",
	"database.host":      "DB_HOST",
	"database.port":      "DB_PORT",
	"database.user":      "DB_USER",
	"database.password":  "DB_PASSWORD",
	"database.name":      "DB_NAME",
	"database.ssl_mode":  "DB_SSL_MODE",
	"database.max_conns": "DB_MAX_CONNS",

	"redis.enabled":  "REDIS_ENABLED",
	"redis.addr":     "REDIS_ADDR",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"redis.stream":   "REDIS_STREAM",

	"relay.poll_interval": "RELAY_POLL_INTERVAL",
	"relay.batch_size":    "RELAY_BATCH_SIZE",

	"logging.level":  "LOG_LEVEL",
	"logging.format": "LOG_FORMAT",
}

// Load reads defaults, an optional config.yaml and the environment, in that
// order of precedence from lowest to highest.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if raw, ok := os.LookupEnv(userAgentsEnv); ok {
		cfg.Scraper.UserAgents = SplitUserAgents(raw)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "https://localhost:*"})
	v.SetDefault("server.data_dir", "data")

	v.SetDefault("scraper.fetch_mode", FetchModeHTTP)
	v.SetDefault("scraper.max_items", 0)
	v.SetDefault("scraper.max_pages", 0)
	v.SetDefault("scraper.detail_delay", "0s")
	v.SetDefault("scraper.page_delay", "0s")
	v.SetDefault("scraper.timeout", "0s")
	v.SetDefault("scraper.user_agents", []string{})
	v.SetDefault("scraper.output_dir", "data")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.max_retries", 3)

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.requests_per_second", 0.0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "vape_products")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "stream:vape_products")

	v.SetDefault("relay.poll_interval", "5s")
	v.SetDefault("relay.batch_size", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	if c.Scraper.FetchMode != FetchModeHTTP && c.Scraper.FetchMode != FetchModeBrowser {
		return fmt.Errorf("SCRAPER_FETCH_MODE must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.Scraper.FetchMode)
	}
	if c.Scraper.MaxItems < 0 {
		return fmt.Errorf("SCRAPER_MAX_ITEMS cannot be negative")
	}
	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("SCRAPER_MAX_PAGES cannot be negative")
	}
	if c.Scraper.DetailDelay < 0 || c.Scraper.PageDelay < 0 {
		return fmt.Errorf("scraper delays cannot be negative")
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Enabled && c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED: events are relayed from the database outbox")
	}
	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// SplitUserAgents splits a "|"-separated User-Agent list, dropping blanks.
func SplitUserAgents(raw string) []string {
	var agents []string
	for _, ua := range strings.Split(raw, "|") {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	return agents
}

// ApplyTo overlays the non-zero scraper settings on a site profile.
func (s ScraperConfig) ApplyTo(p parser.Profile) parser.Profile {
	if s.MaxItems > 0 {
		p.MaxItems = s.MaxItems
	}
	if s.MaxPages > 0 {
		p.MaxPages = s.MaxPages
	}
	if s.DetailDelay > 0 {
		p.DetailDelay = s.DetailDelay
	}
	if s.PageDelay > 0 {
		p.PageDelay = s.PageDelay
	}
	if s.Timeout > 0 {
		p.Timeout = s.Timeout
	}
	return p
}
