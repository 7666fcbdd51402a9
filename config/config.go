package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-envconfig"
)

const (
	StorageTypeDisk = "disk"
	StorageTypeS3   = "s3"
)

type Config struct {
	BindAddress string `env:"BIND_ADDRESS, default=0.0.0.0:8080"`
	TLSDomains  string `env:"TLS_DOMAINS"` // e.g. "example.com,example2.com"
	DebugMode   bool   `env:"DEBUG_MODE, default=false"`
	LogLevel    string `env:"LOG_LEVEL, default=info"`
	LogPretty   bool   `env:"LOG_PRETTY, default=false"`

	// BackendURL is the single photo backend host used by every screen
	BackendURL     string        `env:"BACKEND_URL, default=http://127.0.0.1:8000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT, default=2m"`

	SessionKey    string `env:"SESSION_KEY, default=photoman-session-key-change-me"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE, default=604800"` // seconds

	MySQLDSN   string `env:"MYSQL_DSN"`                        // MySQL will be used if this is set
	SQLiteFile string `env:"SQLITE_FILE, default=photoman.db"` // otherwise SQLite

	Storage StorageConfig
	Redis   RedisConfig

	MaxPhotos         int           `env:"MAX_PHOTOS, default=30"`
	VideoPollInterval time.Duration `env:"VIDEO_POLL_INTERVAL, default=10s"`
	SubmitTimeout     time.Duration `env:"SUBMIT_TIMEOUT, default=10m"` // guard TTL for in-flight submissions
	WorkspaceIdle     time.Duration `env:"WORKSPACE_IDLE, default=24h"` // staged photos of idle workspaces are dropped
}

type StorageConfig struct {
	Type     string `env:"STORAGE_TYPE, default=disk"`
	Path     string `env:"STORAGE_PATH, default=/tmp/photoman"` // directory on disk or key prefix in S3
	Bucket   string `env:"S3_BUCKET"`
	Region   string `env:"S3_REGION, default=us-east-1"`
	Endpoint string `env:"S3_ENDPOINT"`
	Auth     string `env:"S3_AUTH"` // "key:secret"
	SSE      string `env:"S3_SSE"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"` // in-memory guard when empty
	DB   int    `env:"REDIS_DB, default=0"`
}

// Load reads the configuration from the environment and validates it.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: invalid BACKEND_URL %q", c.BackendURL)
	}
	if c.MaxPhotos <= 0 {
		return errors.New("config: MAX_PHOTOS must be positive")
	}
	if c.WorkspaceIdle < time.Minute {
		return errors.New("config: WORKSPACE_IDLE must be at least 1m")
	}
	if c.VideoPollInterval <= 0 {
		return errors.New("config: VIDEO_POLL_INTERVAL must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return errors.New("config: SUBMIT_TIMEOUT must be positive")
	}
	if c.MySQLDSN != "" {
		if _, err := mysql.ParseDSN(c.MySQLDSN); err != nil {
			return fmt.Errorf("config: MYSQL_DSN: %w", err)
		}
	} else if c.SQLiteFile == "" {
		return errors.New("config: either MYSQL_DSN or SQLITE_FILE is required")
	}
	switch c.Storage.Type {
	case StorageTypeDisk:
		if c.Storage.Path == "" {
			return errors.New("config: STORAGE_PATH is required for disk storage")
		}
	case StorageTypeS3:
		if c.Storage.Bucket == "" {
			return errors.New("config: S3_BUCKET is required for s3 storage")
		}
		if c.Storage.Auth != "" && !strings.Contains(c.Storage.Auth, ":") {
			return errors.New(`config: S3_AUTH must look like "key:secret"`)
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

// TLSDomainList splits TLS_DOMAINS, empty when TLS is off
func (c *Config) TLSDomainList() []string {
	if c.TLSDomains == "" {
		return nil
	}
	return strings.Split(c.TLSDomains, ",")
}
