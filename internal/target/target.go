// Package target derives the game server a URL belongs to. Every session and every set of
// credentials is scoped to exactly one target.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultDomain is the parent domain every game server lives under.
const DefaultDomain = "e-sim.org"

var ErrForeignHost = errors.New("url does not belong to a game server")

// ID is the subdomain of a game server, ex. "alpha" for https://alpha.e-sim.org/.
type ID string

// Root returns the server's index page.
func (id ID) Root(domain string) string {
	return fmt.Sprintf("https://%s.%s/", id, domain)
}

// LoginURL returns the endpoint credentials are posted to.
func (id ID) LoginURL(domain string) string {
	return id.Root(domain) + "login.html"
}

// Link is a normalized URL together with the target it belongs to.
type Link struct {
	Target ID
	URL    string
}

// Normalize drops the fragment and forces the https scheme.
func Normalize(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrForeignHost, raw)
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Scheme == "" || u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u, nil
}

// Parse normalizes raw and derives its target from the subdomain under domain.
func Parse(raw, domain string) (Link, error) {
	u, err := Normalize(raw)
	if err != nil {
		return Link{}, err
	}

	host := strings.ToLower(u.Hostname())
	suffix := "." + strings.ToLower(domain)
	if !strings.HasSuffix(host, suffix) || len(host) == len(suffix) {
		return Link{}, fmt.Errorf("%w: %s is not under %s", ErrForeignHost, host, domain)
	}

	return Link{
		Target: ID(strings.TrimSuffix(host, suffix)),
		URL:    u.String(),
	}, nil
}
