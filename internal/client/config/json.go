package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/flagx"
	"github.com/dmitrijs2005/storykeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	APIBaseURL string `json:"api_base_url"`
	WebOrigin  string `json:"web_origin"`
	DBPath     string `json:"db_path"`
	ListenAddr string `json:"listen_addr"`
	HealthAddr string `json:"health_addr"`

	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`

	RetryBackoff  timex.Duration `json:"retry_backoff"`
	RetryMaxDelay timex.Duration `json:"retry_max_delay"`
	MaxAttempts   int            `json:"max_attempts"`
	UploadRate    float64        `json:"upload_rate"`
	UploadBurst   int            `json:"upload_burst"`

	BlobBackend string `json:"blob_backend"`
	BlobDir     string `json:"blob_dir"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3Region    string `json:"s3_region"`
	S3Bucket    string `json:"s3_bucket"`
	S3Prefix    string `json:"s3_prefix"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`

	ShellCache     string `json:"shell_cache"`
	RuntimeCache   string `json:"runtime_cache"`
	DiscoverAssets *bool  `json:"discover_assets"`

	RefreshSpec string         `json:"refresh_spec"`
	PurgeSpec   string         `json:"purge_spec"`
	PurgeTTL    timex.Duration `json:"purge_ttl"`

	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Only fields present with a non-zero value override.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.WebOrigin, jc.WebOrigin)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.HealthAddr, jc.HealthAddr)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)

	setDuration(&cfg.RetryBackoff, jc.RetryBackoff)
	setDuration(&cfg.RetryMaxDelay, jc.RetryMaxDelay)
	if jc.MaxAttempts != 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.UploadRate != 0 {
		cfg.UploadRate = jc.UploadRate
	}
	if jc.UploadBurst != 0 {
		cfg.UploadBurst = jc.UploadBurst
	}

	setString(&cfg.BlobBackend, jc.BlobBackend)
	setString(&cfg.BlobDir, jc.BlobDir)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Prefix, jc.S3Prefix)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)

	setString(&cfg.ShellCache, jc.ShellCache)
	setString(&cfg.RuntimeCache, jc.RuntimeCache)
	if jc.DiscoverAssets != nil {
		cfg.DiscoverAssets = *jc.DiscoverAssets
	}

	setString(&cfg.RefreshSpec, jc.RefreshSpec)
	setString(&cfg.PurgeSpec, jc.PurgeSpec)
	setDuration(&cfg.PurgeTTL, jc.PurgeTTL)

	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
