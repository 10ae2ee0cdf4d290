// Package config loads runtime configuration for the storyd daemon and the
// storykeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed with STORYKEEPER_, after loading an
//     optional .env file from the working directory (see parseEnv).
//  3. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "api_base_url": "https://story-api.dicoding.dev/v1",
//	  "web_origin": "http://127.0.0.1:5173",
//	  "online_check_interval": "10s",
//	  "retry_backoff": "5s",
//	  "blob_backend": "s3",
//	  "s3_endpoint": "http://127.0.0.1:9000",
//	  "purge_ttl": "168h"
//	}
package config
