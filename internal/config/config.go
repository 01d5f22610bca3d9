package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the settings of `gate serve`. Values come from an optional
// TOML file named by GATE_CONFIG and are overridden by GATE_* variables.
// A .env file in the working directory is loaded first when present.
type Config struct {
	DatabaseURL string `toml:"database_url"` // GATE_DATABASE_URL (empty = in-memory register)
	GRPCAddr    string `toml:"grpc_addr"`    // GATE_GRPC_ADDR (default ":9090")
	HTTPAddr    string `toml:"http_addr"`    // GATE_HTTP_ADDR (default ":8080")
	NATSURL     string `toml:"nats_url"`     // GATE_NATS_URL (optional, empty = no events)
	RedisAddr   string `toml:"redis_addr"`   // GATE_REDIS_ADDR (optional, empty = in-process cache and locks)
	RedisDB     int    `toml:"redis_db"`     // GATE_REDIS_DB (default 0)

	JWTSecret   string        `toml:"jwt_secret"`   // GATE_JWT_SECRET (required)
	SessionIdle time.Duration `toml:"session_idle"` // GATE_SESSION_IDLE (default 30m)

	GatewayURL     string        `toml:"gateway_url"`     // GATE_GATEWAY_URL (required unless sandboxed)
	GatewayToken   string        `toml:"gateway_token"`   // GATE_GATEWAY_TOKEN
	GatewayTimeout time.Duration `toml:"gateway_timeout"` // GATE_GATEWAY_TIMEOUT (default 30s)

	PhoneRegion string        `toml:"phone_region"` // GATE_PHONE_REGION (default "IN")
	RolesFile   string        `toml:"roles_file"`   // GATE_ROLES_FILE (optional, embedded roles otherwise)
	LockTTL     time.Duration `toml:"lock_ttl"`     // GATE_LOCK_TTL (default 30s)
	CatalogTTL  time.Duration `toml:"catalog_ttl"`  // GATE_CATALOG_TTL (default 15m)

	LogFormat string `toml:"log_format"` // GATE_LOG_FORMAT ("text" or "json")
	LogLevel  string `toml:"log_level"`  // GATE_LOG_LEVEL (default "info")

	// Sync settings
	SyncInterval   time.Duration `toml:"sync_interval"`    // GATE_SYNC_INTERVAL (default 15m; 0 = disabled)
	SyncS3Bucket   string        `toml:"sync_s3_bucket"`   // GATE_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        `toml:"sync_s3_endpoint"` // GATE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        `toml:"sync_s3_region"`   // GATE_SYNC_S3_REGION (default "ap-south-1")
	SyncS3Key      string        `toml:"sync_s3_key"`      // GATE_SYNC_S3_KEY (default "gatepass/register.jsonl")
	SyncGitRepo    string        `toml:"sync_git_repo"`    // GATE_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        `toml:"sync_git_file"`    // GATE_SYNC_GIT_FILE (default "register.jsonl")
	SyncGitBranch  string        `toml:"sync_git_branch"`  // GATE_SYNC_GIT_BRANCH (default "main")
}

func defaults() *Config {
	return &Config{
		GRPCAddr:       ":9090",
		HTTPAddr:       ":8080",
		SessionIdle:    30 * time.Minute,
		GatewayTimeout: 30 * time.Second,
		PhoneRegion:    "IN",
		LockTTL:        30 * time.Second,
		CatalogTTL:     15 * time.Minute,
		LogFormat:      "text",
		LogLevel:       "info",
		SyncInterval:   15 * time.Minute,
		SyncS3Region:   "ap-south-1",
		SyncS3Key:      "gatepass/register.jsonl",
		SyncGitFile:    "register.jsonl",
		SyncGitBranch:  "main",
	}
}

// Load reads .env, the optional GATE_CONFIG file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	c := defaults()
	if path := os.Getenv("GATE_CONFIG"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if c.JWTSecret == "" {
		return nil, fmt.Errorf("GATE_JWT_SECRET is required")
	}
	return c, nil
}

// loadFile overlays the TOML file at path. Durations are written as
// strings ("30s").
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("reading config %s: unknown key %s", path, undecoded[0])
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, s := range []struct {
		key string
		dst *string
	}{
		{"GATE_DATABASE_URL", &c.DatabaseURL},
		{"GATE_GRPC_ADDR", &c.GRPCAddr},
		{"GATE_HTTP_ADDR", &c.HTTPAddr},
		{"GATE_NATS_URL", &c.NATSURL},
		{"GATE_REDIS_ADDR", &c.RedisAddr},
		{"GATE_JWT_SECRET", &c.JWTSecret},
		{"GATE_GATEWAY_URL", &c.GatewayURL},
		{"GATE_GATEWAY_TOKEN", &c.GatewayToken},
		{"GATE_PHONE_REGION", &c.PhoneRegion},
		{"GATE_ROLES_FILE", &c.RolesFile},
		{"GATE_LOG_FORMAT", &c.LogFormat},
		{"GATE_LOG_LEVEL", &c.LogLevel},
		{"GATE_SYNC_S3_BUCKET", &c.SyncS3Bucket},
		{"GATE_SYNC_S3_ENDPOINT", &c.SyncS3Endpoint},
		{"GATE_SYNC_S3_REGION", &c.SyncS3Region},
		{"GATE_SYNC_S3_KEY", &c.SyncS3Key},
		{"GATE_SYNC_GIT_REPO", &c.SyncGitRepo},
		{"GATE_SYNC_GIT_FILE", &c.SyncGitFile},
		{"GATE_SYNC_GIT_BRANCH", &c.SyncGitBranch},
	} {
		*s.dst = envOrDefault(s.key, *s.dst)
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"GATE_SESSION_IDLE", &c.SessionIdle},
		{"GATE_GATEWAY_TIMEOUT", &c.GatewayTimeout},
		{"GATE_LOCK_TTL", &c.LockTTL},
		{"GATE_CATALOG_TTL", &c.CatalogTTL},
		{"GATE_SYNC_INTERVAL", &c.SyncInterval},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("GATE_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GATE_REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
