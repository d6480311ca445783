package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/pipedesk/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the on-disk pipedesk configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Cache    CacheConfig    `toml:"cache"`
	Logging  LoggingConfig  `toml:"logging"`
	Client   ClientConfig   `toml:"client"`
	Board    BoardConfig    `toml:"board"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite | postgres
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	WSEndpoint  string `toml:"ws_endpoint"`
}

// AuthConfig holds bearer token settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
	TokenTTL  string `toml:"token_ttl"`
}

// CacheConfig enables the redis funnel cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string `toml:"redis_url"`
	TTL      string `toml:"ttl"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// ClientConfig points the TUI at a remote server. An empty BaseURL means local mode.
type ClientConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	User    string `toml:"user"`
}

type BoardConfig struct {
	DefaultScope string `toml:"default_scope"`
}

// Default returns the configuration used when no file exists.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			WSEndpoint:  "/ws",
		},
		Auth: AuthConfig{
			Issuer:   "pipedesk",
			TokenTTL: "24h",
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     ".pipedesk/log",
			},
		},
		Board: BoardConfig{
			DefaultScope: string(domain.ScopeProject),
		},
	}
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind is required")
	}

	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	if raw := strings.TrimSpace(c.Cache.RedisURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("invalid cache.redis_url: %q", c.Cache.RedisURL)
		}
	}

	if _, err := log.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil && strings.TrimSpace(c.Logging.Level) != "" {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when enabled")
	}

	if raw := strings.TrimSpace(c.Client.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid client.base_url: %q", c.Client.BaseURL)
		}
	}

	if _, err := domain.ParseFunnelScope(c.Board.DefaultScope); err != nil && strings.TrimSpace(c.Board.DefaultScope) != "" {
		return fmt.Errorf("invalid board.default_scope: %q", c.Board.DefaultScope)
	}
	return nil
}

// TokenTTL parses auth.token_ttl, defaulting to 24h.
func (c Config) TokenTTL() (time.Duration, error) {
	return parseDuration("auth.token_ttl", c.Auth.TokenTTL, 24*time.Hour)
}

// CacheTTL parses cache.ttl, defaulting to 5m.
func (c Config) CacheTTL() (time.Duration, error) {
	return parseDuration("cache.ttl", c.Cache.TTL, 5*time.Minute)
}

// DefaultScope returns the board scope, defaulting to project funnels.
func (c Config) DefaultScope() domain.FunnelScope {
	scope, err := domain.ParseFunnelScope(c.Board.DefaultScope)
	if err != nil {
		return domain.ScopeProject
	}
	return scope
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", field, raw)
	}
	return d, nil
}

// EnsureConfigDir creates the directory holding path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
