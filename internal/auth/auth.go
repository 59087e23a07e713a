// Package auth turns the fetch primitive into a fetch that survives expired sessions: when a
// session turns out to be logged out, it logs the target back in and tries exactly once more.
package auth

import (
	"context"
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/internal/session"
	"esimassist-backend/internal/target"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("esimassist/auth")

// loginTimeout bounds a login shared by every caller waiting on it.
const loginTimeout = 2 * time.Minute

const (
	report_auth_fetch = "auth.fetch"
	report_auth_login = "auth.login"
)

// Attempter is the fetch primitive the manager drives, fetch.Fetcher implements it.
type Attempter interface {
	Attempt(ctx context.Context, s *session.Session, req fetch.Request) (fetch.Outcome, error)
}

type Manager struct {
	domain  string
	pool    *session.Pool
	fetcher Attempter
	creds   credentials.Resolver
	tel     telemetry.API

	logins singleflight.Group

	mu sync.Mutex
	// generation of the last session of each target that logged in successfully
	authenticated map[target.ID]uint64
}

func NewManager(
	domain string,
	pool *session.Pool,
	fetcher Attempter,
	creds credentials.Resolver,
	tel telemetry.API,
) *Manager {
	assert.NotEmptyStr(domain)
	assert.NotNil(pool)
	assert.NotNil(fetcher)
	assert.NotNil(creds)
	assert.NotNil(tel)

	return &Manager{
		domain:        domain,
		pool:          pool,
		fetcher:       fetcher,
		creds:         creds,
		tel:           telemetry.NewScopedAPI("auth", tel),
		authenticated: map[target.ID]uint64{},
	}
}

// Fetch performs req against the target its url belongs to. If the target's session has
// expired it logs in again and retries once, or twice if the first retry came back empty.
func (m *Manager) Fetch(ctx context.Context, req fetch.Request) (fetch.Outcome, error) {
	ctx, span := tracer.Start(ctx, "auth:Fetch")
	defer span.End()

	link, err := target.Parse(req.URL, m.domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid url")
		return fetch.Outcome{}, err
	}
	req.URL = link.URL
	span.SetAttributes(
		attribute.String("target", string(link.Target)),
		attribute.String("url", link.URL),
	)

	out, generation, err := m.attempt(ctx, link.Target, req)
	if err == nil {
		return out, nil
	}
	if !fetch.IsSessionExpired(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fetch.Outcome{}, err
	}

	span.AddEvent("session expired")
	m.tel.ReportDebug(report_auth_fetch, "session expired", link.Target, generation)

	err = m.renew(ctx, link.Target, generation, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fetch.Outcome{}, err
	}

	out, _, err = m.attempt(ctx, link.Target, req)
	if err == nil && out.Empty() {
		span.AddEvent("empty result after login")
		out, _, err = m.attempt(ctx, link.Target, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fetch.Outcome{}, err
	}
	return out, nil
}

// Login replaces the target's session with a freshly logged in one.
func (m *Manager) Login(ctx context.Context, id target.ID) error {
	return m.renew(ctx, id, 0, true)
}

// attempt holds the target's guard for reading so the session cannot be replaced under it.
func (m *Manager) attempt(ctx context.Context, id target.ID, req fetch.Request) (fetch.Outcome, uint64, error) {
	guard := m.pool.Guard(id)
	guard.RLock()
	defer guard.RUnlock()

	s, err := m.pool.Acquire(id)
	if err != nil {
		return fetch.Outcome{}, 0, err
	}
	out, err := m.fetcher.Attempt(ctx, s, req)
	return out, s.Generation, err
}

// renew logs the target in again unless the session that observed the expiry was already
// replaced by a logged in one. Concurrent callers for the same target share one login, which
// keeps running under loginTimeout when a caller gives up waiting on it.
func (m *Manager) renew(ctx context.Context, id target.ID, observed uint64, force bool) error {
	detached := context.WithoutCancel(ctx)
	results := m.logins.DoChan(string(id), func() (any, error) {
		loginCtx, cancel := context.WithTimeout(detached, loginTimeout)
		defer cancel()

		guard := m.pool.Guard(id)
		guard.Lock()
		defer guard.Unlock()

		if !force && m.renewedSince(id, observed) {
			return nil, nil
		}
		return nil, m.login(loginCtx, id)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-results:
		return res.Err
	}
}

func (m *Manager) renewedSince(id target.ID, observed uint64) bool {
	current, ok := m.pool.Peek(id)
	if !ok || current.Generation == observed {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated[id] == current.Generation
}

// login must be called with the target's guard held for writing.
func (m *Manager) login(ctx context.Context, id target.ID) error {
	ctx, span := tracer.Start(ctx, "auth:Login")
	defer span.End()

	span.SetAttributes(attribute.String("target", string(id)))

	creds, err := m.creds.Resolve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve credentials")
		return &fetch.ClassifiedError{
			Kind:   fetch.KindAuth,
			Reason: fmt.Sprintf("resolve credentials of %s", id),
			Err:    err,
		}
	}
	span.SetAttributes(attribute.String("nick", creds.Nick))

	m.pool.Release(id)
	s, err := m.pool.Acquire(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session")
		return err
	}

	_, err = s.Http.R().
		SetContext(ctx).
		Get(id.Root(m.domain))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prime session")
		return &fetch.ClassifiedError{
			Kind:   fetch.KindAuth,
			Reason: fmt.Sprintf("%s - failed to reach %s", creds.Nick, id),
			URL:    id.Root(m.domain),
			Err:    err,
		}
	}

	loginURL := id.LoginURL(m.domain)
	res, err := s.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"login":    creds.Nick,
			"password": creds.Password,
			"submit":   "Login",
		}).
		Post(loginURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return &fetch.ClassifiedError{
			Kind:   fetch.KindAuth,
			Reason: fmt.Sprintf("%s - failed to login to %s", creds.Nick, id),
			URL:    loginURL,
			Err:    err,
		}
	}

	final := fetch.FinalURL(res, loginURL)
	if !fetch.LoginSucceeded(final) {
		err := &fetch.ClassifiedError{
			Kind:   fetch.KindAuth,
			Reason: fmt.Sprintf("%s - failed to login to %s", creds.Nick, id),
			URL:    final,
		}
		m.tel.ReportWarning(report_auth_login, err, id)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.mu.Lock()
	m.authenticated[id] = s.Generation
	m.mu.Unlock()

	m.tel.ReportDebug(report_auth_login, "logged in", id, creds.Nick, s.Generation)
	return nil
}
