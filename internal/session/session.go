package session

import (
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/target"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Options configures every Session a Pool creates.
type Options struct {
	// UserAgent is the fixed identification string sent with every request.
	UserAgent string
	// Timeout bounds a single request including redirects, zero means no timeout.
	Timeout time.Duration
	// RequestsPerSecond limits each session, zero means unlimited.
	RequestsPerSecond float64
	// Transport replaces the default network transport, tests use this to serve responses
	// from memory.
	Transport http.RoundTripper
	// Dump receives a transcript of every exchange when set.
	Dump telemetry.DumpOutput
}

// Session is a long-lived client bound to one target, it carries the target's cookies and
// authentication state.
type Session struct {
	Target target.ID
	Http   *resty.Client
	// Generation increases every time the pool creates a session, it tells apart a session
	// from the one that replaced it.
	Generation uint64

	// transport is the network transport underneath the anti-bot wrapper
	transport http.RoundTripper
}

func newSession(id target.ID, generation uint64, opts Options, tel telemetry.API) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	client := resty.New()
	transport := opts.Transport
	if transport == nil {
		transport = client.GetClient().Transport
	}
	client.SetTransport(cloudflarebp.AddCloudFlareByPass(transport))
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", opts.UserAgent)
	// redirects are followed across domains so the final url can reveal an anti-bot challenge
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	// max burst >= 1 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(limit, max(1, int(opts.RequestsPerSecond)))
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel)
	if opts.Dump != nil {
		telemetry.DumpResty(client, fmt.Sprintf("%s-%d", id, generation), opts.Dump)
	}

	return &Session{
		Target:     id,
		Http:       client,
		Generation: generation,
		transport:  transport,
	}, nil
}

type idleCloser interface {
	CloseIdleConnections()
}

// close drops the session's pooled connections, it is best-effort.
func (s *Session) close() {
	if closer, ok := s.transport.(idleCloser); ok {
		closer.CloseIdleConnections()
	}
}
