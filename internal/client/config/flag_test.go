package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "http://api.local/v1", "-o", "http://web.local", "-d", "x.db", "-l", ":8081",
			"-g", ":50052", "-i", "10", "-t", "4", "-b", "s3", "-v", "debug",
		}, expectPanic: false,
			expected: &Config{
				APIBaseURL:          "http://api.local/v1",
				WebOrigin:           "http://web.local",
				DBPath:              "x.db",
				ListenAddr:          ":8081",
				HealthAddr:          ":50052",
				OnlineCheckInterval: 10 * time.Second,
				RequestTimeout:      4 * time.Second,
				BlobBackend:         "s3",
				LogLevel:            "debug",
			}},
		{name: "Test2 unknown flags are ignored", args: []string{"cmd", "-x", "1", "-i", "2"}, expectPanic: false,
			expected: &Config{OnlineCheckInterval: 2 * time.Second}},
		{name: "Test3 incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
