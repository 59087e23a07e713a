// Package credentials resolves the identity and secret used to log into each target.
package credentials

import (
	"context"
	"errors"
	"esimassist-backend/internal/target"
	"fmt"
	"os"
)

var ErrNoCredentials = errors.New("no credentials configured")

type Credentials struct {
	Nick     string
	Password string
}

func (c Credentials) complete() bool {
	return c.Nick != "" && c.Password != ""
}

// Resolver is anything that can look up the credentials of a target.
type Resolver interface {
	Resolve(ctx context.Context, id target.ID) (Credentials, error)
}

type TargetConfig struct {
	Nick     string `json:"nick"`
	Password string `json:"pw"`
}

type Config struct {
	Nick     string                  `json:"nick"`
	Password string                  `json:"pw"`
	Targets  map[string]TargetConfig `json:"targets"`
}

// ConfigResolver resolves credentials from configuration and the environment. A target's own
// entry wins over the global one, and within each the environment (`<target>_pw`, `pw` and
// `nick`) wins over the file.
type ConfigResolver struct {
	config Config
	getenv func(string) string
}

// NewConfigResolver returns a resolver over config, getenv defaults to os.Getenv.
func NewConfigResolver(config Config, getenv func(string) string) ConfigResolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return ConfigResolver{config: config, getenv: getenv}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r ConfigResolver) Resolve(ctx context.Context, id target.ID) (Credentials, error) {
	own := r.config.Targets[string(id)]
	creds := Credentials{
		Nick: firstNonEmpty(own.Nick, r.getenv("nick"), r.config.Nick),
		Password: firstNonEmpty(
			r.getenv(string(id)+"_pw"),
			own.Password,
			r.getenv("pw"),
			r.config.Password,
		),
	}
	if !creds.complete() {
		return Credentials{}, fmt.Errorf("%w for %s", ErrNoCredentials, id)
	}
	return creds, nil
}
