package config

import (
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/swcache"
)

// Blob backends.
const (
	BlobBackendNone = "none"
	BlobBackendFS   = "fs"
	BlobBackendS3   = "s3"
)

// Config holds runtime settings shared by the storyd daemon and the CLI.
//
// Durations are time.Duration values; in the environment they use Go
// duration syntax ("30s"), in JSON either that or integer nanoseconds.
type Config struct {
	APIBaseURL string `env:"API_BASE_URL"`
	WebOrigin  string `env:"WEB_ORIGIN"`
	DBPath     string `env:"DB_PATH"`
	ListenAddr string `env:"LISTEN_ADDR"`
	HealthAddr string `env:"HEALTH_ADDR"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT"`

	RetryBackoff  time.Duration `env:"RETRY_BACKOFF"`
	RetryMaxDelay time.Duration `env:"RETRY_MAX_DELAY"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS"`
	UploadRate    float64       `env:"UPLOAD_RATE"`
	UploadBurst   int           `env:"UPLOAD_BURST"`

	BlobBackend string `env:"BLOB_BACKEND"`
	BlobDir     string `env:"BLOB_DIR"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Prefix    string `env:"S3_PREFIX"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	ShellCache     string `env:"SHELL_CACHE"`
	RuntimeCache   string `env:"RUNTIME_CACHE"`
	DiscoverAssets bool   `env:"DISCOVER_ASSETS"`

	RefreshSpec string        `env:"REFRESH_SPEC"`
	PurgeSpec   string        `env:"PURGE_SPEC"`
	PurgeTTL    time.Duration `env:"PURGE_TTL"`

	LogFormat string `env:"LOG_FORMAT"`
	LogLevel  string `env:"LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = client.DefaultBaseURL
	c.WebOrigin = "http://127.0.0.1:5173"
	c.DBPath = "storykeeper.db"
	c.ListenAddr = "127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"

	c.OnlineCheckInterval = 10 * time.Second
	c.RequestTimeout = 15 * time.Second

	c.RetryBackoff = 5 * time.Second
	c.RetryMaxDelay = 10 * time.Minute
	c.MaxAttempts = 20
	c.UploadRate = 2
	c.UploadBurst = 4

	c.BlobBackend = BlobBackendFS
	c.BlobDir = "blobs"
	c.S3Region = "us-east-1"
	c.S3Bucket = "storykeeper"
	c.S3Prefix = "outbox"

	c.ShellCache = swcache.DefaultShellCache
	c.RuntimeCache = swcache.DefaultRuntimeCache

	c.RefreshSpec = "@every 5m"
	c.PurgeSpec = "@hourly"
	c.PurgeTTL = 7 * 24 * time.Hour

	c.LogFormat = "text"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment (including a .env file), JSON (if present) and command-line
// flags (if present). Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// CacheConfig derives the response cache configuration.
func (c *Config) CacheConfig() swcache.Config {
	sc := swcache.DefaultConfig(c.WebOrigin, c.APIBaseURL)
	sc.ShellCache = c.ShellCache
	sc.RuntimeCache = c.RuntimeCache
	sc.DiscoverAssets = c.DiscoverAssets
	return sc
}
