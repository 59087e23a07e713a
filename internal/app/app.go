// Package app assembles the session pool, fetcher, credentials and auth manager from
// configuration. Both binaries start from here.
package app

import (
	"database/sql"
	"esimassist-backend/internal/auth"
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/chrono"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/config"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/internal/session"
	"esimassist-backend/internal/stopper"
	"fmt"
	"net/http"
)

type App struct {
	Config   config.Config
	Pool     *session.Pool
	Fetcher  fetch.Fetcher
	Manager  *auth.Manager
	Stops    *stopper.Store
	Resolver credentials.Resolver
	// Keychain is nil when no keychain database is configured.
	Keychain *credentials.Keychain

	db *sql.DB
}

type Option func(o *options)

type options struct {
	transport http.RoundTripper
	dump      telemetry.DumpOutput
	sleep     chrono.SleepAPI
	getenv    func(string) string
}

// WithTransport replaces the network transport of every session.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithDump writes a transcript of every exchange made by every session to output.
func WithDump(output telemetry.DumpOutput) Option {
	return func(o *options) {
		o.dump = output
	}
}

func WithSleep(sleep chrono.SleepAPI) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

func WithGetenv(getenv func(string) string) Option {
	return func(o *options) {
		o.getenv = getenv
	}
}

func New(cfg config.Config, tel telemetry.API, opts ...Option) (*App, error) {
	assert.NotNil(tel)

	o := options{sleep: chrono.StandardSleep{}}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Stops:  stopper.NewStore(),
	}

	a.Resolver = credentials.NewConfigResolver(cfg.Config, o.getenv)
	if !cfg.Keychain.Empty() {
		db, err := cfg.Keychain.OpenDB(credentials.Schema)
		if err != nil {
			return nil, fmt.Errorf("open keychain: %w", err)
		}
		a.db = db
		a.Keychain = credentials.NewKeychain(db, a.Resolver, chrono.StandardTime{}, tel)
		a.Resolver = a.Keychain
	}

	sessionOpts := cfg.SessionOptions()
	sessionOpts.Transport = o.transport
	sessionOpts.Dump = o.dump
	a.Pool = session.NewPool(sessionOpts, tel)
	a.Fetcher = fetch.NewFetcher(cfg.FetchOptions(), o.sleep, tel)
	a.Manager = auth.NewManager(cfg.Domain, a.Pool, a.Fetcher, a.Resolver, tel)

	return a, nil
}

// Close releases every session and closes the keychain.
func (a *App) Close() error {
	a.Pool.Close()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
