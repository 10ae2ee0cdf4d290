package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the story API
//	-o string   web application origin
//	-d string   path to the local database
//	-l string   daemon listen address
//	-g string   gRPC health listen address
//	-i int      online check interval in seconds
//	-t int      request timeout in seconds
//	-b string   blob backend: none, fs or s3
//	-v string   log level
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-o", "-d", "-l", "-g", "-i", "-t", "-b", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "story API base URL")
	fs.StringVar(&cfg.WebOrigin, "o", cfg.WebOrigin, "web application origin")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "daemon listen address")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "gRPC health listen address")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.BlobBackend, "b", cfg.BlobBackend, "blob backend (none, fs, s3)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
