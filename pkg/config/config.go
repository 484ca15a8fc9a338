package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreNeo4j    = "neo4j"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds all configuration for whereabouts.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr        string        `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port            string        `yaml:"port" env:"PORT" env-default:"8480"`
	Env             string        `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	Version         string        `yaml:"-"` // Set at load time, not from config

	// Graph store selection
	Store StoreConfig `yaml:"store"`

	// Backend connections, only dialed when selected
	Database DatabaseConfig `yaml:"database"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Redis    RedisConfig    `yaml:"redis"`

	Locking LockingConfig `yaml:"locking"`
	Query   QueryConfig   `yaml:"query"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// StoreConfig selects the graph store backend.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"STORE_BACKEND" env-default:"memory"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"whereabouts"`
	Password        string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string        `yaml:"database" env:"PGDATABASE" env-default:"whereabouts"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
	// RunMigrations applies migrations/ on startup.
	RunMigrations bool `yaml:"run_migrations" env:"PGRUN_MIGRATIONS" env-default:"true"`
}

// Neo4jConfig holds Neo4j driver configuration.
type Neo4jConfig struct {
	URI            string        `yaml:"uri" env:"NEO4J_URI" env-default:"neo4j://localhost:7687"`
	User           string        `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password       string        `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	Database       string        `yaml:"database" env:"NEO4J_DATABASE" env-default:""`
	MaxPoolSize    int           `yaml:"max_pool_size" env:"NEO4J_MAX_POOL_SIZE" env-default:"50"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"NEO4J_CONNECT_TIMEOUT" env-default:"10s"`
}

// RedisConfig holds Redis configuration. An empty Host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LockingConfig controls per-key serialization of mutating operations.
type LockingConfig struct {
	Backend string `yaml:"backend" env:"LOCK_BACKEND" env-default:"local"`
	// TTL bounds how long a redis lease survives a crashed holder.
	TTL            time.Duration `yaml:"ttl" env:"LOCK_TTL" env-default:"10s"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"LOCK_ACQUIRE_TIMEOUT" env-default:"5s"`
	KeyPrefix      string        `yaml:"key_prefix" env:"LOCK_KEY_PREFIX" env-default:"whereabouts:lock:"`
}

// QueryConfig bounds proximity query fan-out.
type QueryConfig struct {
	ContactLimit int `yaml:"contact_limit" env:"QUERY_CONTACT_LIMIT" env-default:"1024"`
	HistoryLimit int `yaml:"history_limit" env:"QUERY_HISTORY_LIMIT" env-default:"1024"`
	FanOut       int `yaml:"fan_out" env:"QUERY_FAN_OUT" env-default:"8"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml (when present) with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path. A missing file falls back to environment only.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreNeo4j:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	c.Locking.Backend = strings.ToLower(strings.TrimSpace(c.Locking.Backend))
	switch c.Locking.Backend {
	case LockLocal:
	case LockRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("lock backend redis requires redis.host")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Locking.Backend)
	}
	if c.Locking.TTL <= 0 || c.Locking.AcquireTimeout <= 0 {
		return fmt.Errorf("locking ttl and acquire_timeout must be positive")
	}

	if c.Query.ContactLimit <= 0 || c.Query.HistoryLimit <= 0 {
		return fmt.Errorf("query contact_limit and history_limit must be positive")
	}
	if c.Query.FanOut <= 0 {
		c.Query.FanOut = 1
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// URL returns a PostgreSQL connection URL.
// Inside Docker, localhost is rewritten to host.docker.internal.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
