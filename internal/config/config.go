package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for SentinelEye.
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Poll     PollConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	RateLimitPerMin int
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StoreConfig struct {
	Backend    string
	HistoryCap int
	HistoryKey string
	SQLitePath string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL             string
	ResultsCacheTTL time.Duration
}

type PollConfig struct {
	Interval   time.Duration
	SlowAfter  time.Duration
	StuckAfter time.Duration
}

type AuthConfig struct {
	APIKeyHashes []string
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

var validBackends = map[string]bool{
	BackendMemory:   true,
	BackendRedis:    true,
	BackendPostgres: true,
	BackendSQLite:   true,
}

// Load reads configuration from environment variables (after merging any
// .env / .env.local files) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("SENTINEL_PORT", 8080),
			Env:             envString("SENTINEL_ENV", "development"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Remote: RemoteConfig{
			BaseURL: strings.TrimRight(os.Getenv("REMOTE_BASE_URL"), "/"),
			Timeout: envDuration("REMOTE_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Backend:    envString("STORE_BACKEND", BackendMemory),
			HistoryCap: envInt("JOB_HISTORY_CAP", 20),
			HistoryKey: envString("JOB_HISTORY_KEY", "sentineleye:job-history"),
			SQLitePath: envString("SQLITE_PATH", DefaultSQLitePath()),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:             os.Getenv("REDIS_URL"),
			ResultsCacheTTL: envDuration("RESULTS_CACHE_TTL", 30*time.Minute),
		},
		Poll: PollConfig{
			Interval:   envDuration("POLL_INTERVAL", 5*time.Second),
			SlowAfter:  envDuration("POLL_SLOW_AFTER", 2*time.Minute),
			StuckAfter: envDuration("POLL_STUCK_AFTER", 5*time.Minute),
		},
		Auth: AuthConfig{
			APIKeyHashes: envList("API_KEY_HASHES"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return fmt.Errorf("REMOTE_BASE_URL must start with http:// or https://, got %q", c.Remote.BaseURL)
	}

	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres, sqlite; got %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
	}
	if c.Store.Backend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when STORE_BACKEND is redis")
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is sqlite")
	}
	if c.Store.HistoryCap < 1 {
		return fmt.Errorf("JOB_HISTORY_CAP must be at least 1, got %d", c.Store.HistoryCap)
	}
	if c.Store.HistoryKey == "" {
		return fmt.Errorf("JOB_HISTORY_KEY must not be empty")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.SlowAfter <= 0 {
		return fmt.Errorf("POLL_SLOW_AFTER must be positive, got %s", c.Poll.SlowAfter)
	}
	if c.Poll.StuckAfter <= c.Poll.SlowAfter {
		return fmt.Errorf("POLL_STUCK_AFTER (%s) must be greater than POLL_SLOW_AFTER (%s)",
			c.Poll.StuckAfter, c.Poll.SlowAfter)
	}

	return nil
}

// DefaultSQLitePath is the per-user history database, falling back to the
// working directory when no config dir is known.
func DefaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sentineleye.db"
	}
	return filepath.Join(dir, "sentineleye", "history.db")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
