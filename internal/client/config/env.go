package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "STORYKEEPER_"

// dotEnvFile is loaded into the process environment before parsing.
// Variables already set in the environment win over the file.
var dotEnvFile = ".env"

// parseEnv overlays Config with STORYKEEPER_* environment variables.
// Unset variables leave the current values untouched. Panics on malformed
// values, like the other loaders.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
