// Package config loads the configuration shared by the server and the cli.
package config

import (
	"errors"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/internal/session"
	"esimassist-backend/internal/target"
	"esimassist-backend/pkg/configutil"
	"esimassist-backend/pkg/sqliteutil"
	"os"
	"path/filepath"
	"time"
)

type FetchConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	BackoffSeconds float64 `json:"backoff_seconds"`
}

type SessionConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
}

type ServerConfig struct {
	Port        int    `json:"port"`
	AccessToken string `json:"access_token"`
}

type Config struct {
	credentials.Config

	// Headers is the user agent every session identifies itself with.
	Headers   string            `json:"headers"`
	Domain    string            `json:"domain"`
	Fetch     FetchConfig       `json:"fetch"`
	Session   SessionConfig     `json:"session"`
	Keychain  sqliteutil.Config `json:"keychain"`
	Server    ServerConfig      `json:"server"`
	Telemetry telemetry.Config  `json:"telemetry"`
}

var Defaults = Config{
	Headers: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	Domain:  target.DefaultDomain,
	Fetch: FetchConfig{
		MaxAttempts:    fetch.DefaultMaxAttempts,
		BackoffSeconds: fetch.DefaultBackoff.Seconds(),
	},
	Session: SessionConfig{
		RequestsPerSecond: 2,
		TimeoutSeconds:    30,
	},
	Server: ServerConfig{
		Port: 8000,
	},
}

// Load reads the configuration file at path and its local override. A bare file name is
// searched for from the working directory up to the filesystem root. A missing file is not
// an error, everything can also come from the environment. getenv defaults to os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var cfg Config
	var err error
	if filepath.Base(path) == path {
		cfg, err = configutil.ReadRecursively[Config](path)
	} else {
		cfg, err = configutil.ReadConfig[Config](path)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if headers := getenv("headers"); headers != "" {
		cfg.Headers = headers
	}
	return configutil.WithDefaults(cfg, Defaults)
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		MaxAttempts: c.Fetch.MaxAttempts,
		Backoff:     time.Duration(c.Fetch.BackoffSeconds * float64(time.Second)),
	}
}

func (c Config) SessionOptions() session.Options {
	return session.Options{
		UserAgent:         c.Headers,
		Timeout:           time.Duration(c.Session.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Session.RequestsPerSecond,
	}
}
