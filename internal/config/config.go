package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	MarketData MarketDataConfig `yaml:"market_data"`
	QuoteCache QuoteCacheConfig `yaml:"quote_cache"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Logging    logger.Config    `yaml:"logging"`
	HTTP       HTTPConfig       `yaml:"http"`
	Stream     StreamConfig     `yaml:"stream"`
}

type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// DatabaseConfig selects the ledger store. Driver is one of postgres,
// sqlite or memory.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type MarketDataConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APISecret    string        `yaml:"api_secret"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	Burst        int           `yaml:"burst"`
}

// QuoteCacheConfig controls the quote cache. WarmSymbols are refreshed
// every WarmInterval in the background.
type QuoteCacheConfig struct {
	ServeStaleOnError bool          `yaml:"serve_stale_on_error"`
	WarmSymbols       []string      `yaml:"warm_symbols"`
	WarmInterval      time.Duration `yaml:"warm_interval"`
}

type LedgerConfig struct {
	StartingBalance string        `yaml:"starting_balance"`
	Currency        string        `yaml:"currency"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

type HTTPConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// StreamConfig controls the websocket stream. Subscribed quotes are pushed
// every PushInterval; a client may follow at most MaxSymbols.
type StreamConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PushInterval time.Duration `yaml:"push_interval"`
	MaxSymbols   int           `yaml:"max_symbols"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "papertrade",
			Env:  "development",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 20,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		MarketData: MarketDataConfig{
			Provider:     "http",
			FetchTimeout: 5 * time.Second,
			RateLimit:    10,
			Burst:        20,
		},
		QuoteCache: QuoteCacheConfig{
			WarmInterval: 45 * time.Second,
		},
		Ledger: LedgerConfig{
			StartingBalance: "10000.00",
			Currency:        "USD",
			LockTimeout:     2 * time.Second,
			MaxRetries:      3,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimit:      20,
			Burst:          40,
			MaxBodyBytes:   1 << 16,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Stream: StreamConfig{
			Enabled:      true,
			PushInterval: 5 * time.Second,
			MaxSymbols:   100,
			SendBuffer:   64,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if env := os.Getenv("APP_ENV"); env != "" {
		c.App.Env = env
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.App.Port = p
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		dbConfig, err := parseDatabaseURL(url)
		if err != nil {
			return err
		}
		dbConfig.Driver = c.Database.Driver
		dbConfig.MaxConns = c.Database.MaxConns
		c.Database = *dbConfig
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		host, port, ok := strings.Cut(addr, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid REDIS_ADDR %q: %w", addr, err)
			}
			c.Redis.Port = p
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}

	if apiKey := os.Getenv("MARKET_DATA_API_KEY"); apiKey != "" {
		c.MarketData.APIKey = apiKey
	}

	if apiSecret := os.Getenv("MARKET_DATA_API_SECRET"); apiSecret != "" {
		c.MarketData.APISecret = apiSecret
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	return nil
}

func (c *Config) validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.App.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.MarketData.Provider {
	case "http":
		if c.MarketData.BaseURL == "" {
			return fmt.Errorf("market data base URL is required")
		}
	case "alpaca":
		if c.MarketData.APIKey == "" || c.MarketData.APISecret == "" {
			return fmt.Errorf("alpaca provider requires api key and secret")
		}
	default:
		return fmt.Errorf("unsupported market data provider: %q", c.MarketData.Provider)
	}

	if c.MarketData.FetchTimeout <= 0 {
		return fmt.Errorf("market data fetch timeout must be positive")
	}

	for i, symbol := range c.QuoteCache.WarmSymbols {
		c.QuoteCache.WarmSymbols[i] = strings.ToUpper(strings.TrimSpace(symbol))
	}

	balance, err := decimal.NewFromString(c.Ledger.StartingBalance)
	if err != nil {
		return fmt.Errorf("invalid starting balance %q: %w", c.Ledger.StartingBalance, err)
	}
	if balance.IsNegative() || !balance.Equal(balance.Truncate(2)) {
		return fmt.Errorf("starting balance must be non-negative with at most 2 decimal places")
	}

	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("ledger lock timeout must be positive")
	}

	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger max retries must not be negative")
	}

	if c.Stream.Enabled {
		if c.Stream.PushInterval <= 0 {
			return fmt.Errorf("stream push interval must be positive")
		}
		if c.Stream.MaxSymbols <= 0 || c.Stream.SendBuffer <= 0 {
			return fmt.Errorf("stream max symbols and send buffer must be positive")
		}
	}

	return nil
}

// StartingBalance returns the validated demo starting balance.
func (c *Config) StartingBalance() decimal.Decimal {
	return decimal.RequireFromString(c.Ledger.StartingBalance)
}

func parseDatabaseURL(raw string) (*DatabaseConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid database URL scheme %q", u.Scheme)
	}

	cfg := &DatabaseConfig{
		Host:    u.Hostname(),
		Port:    5432,
		Name:    strings.TrimPrefix(u.Path, "/"),
		SSLMode: "disable",
	}

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %v", err)
		}
		cfg.Port = port
	}

	if mode := u.Query().Get("sslmode"); mode != "" {
		cfg.SSLMode = mode
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + c.Database.SSLMode,
	}
	return u.String()
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
