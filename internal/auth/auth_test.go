package auth

import (
	"context"
	"esimassist-backend/internal/components/chrono"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/internal/session"
	"esimassist-backend/internal/target"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
	<form id="command" action="login.html" method="post">
		<input name="login"><input name="password"><input type="submit" name="submit">
	</form>
</body></html>`

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// gameServer imitates a game server that only serves pages to sessions carrying the cookie
// it hands out on a successful login.
type gameServer struct {
	t testing.TB

	// rejectLogin makes every login fail
	rejectLogin bool
	// forgetLogins makes pages ignore the session cookie
	forgetLogins bool
	// page is served to logged in sessions
	page string
	// loginGate holds login requests until it is closed, loginStarted is signalled when one
	// arrives
	loginGate    chan struct{}
	loginStarted chan struct{}

	mu     sync.Mutex
	calls  map[string]int
	logins []map[string]string
}

func newGameServer(t testing.TB) *gameServer {
	return &gameServer{
		t:     t,
		page:  "<html><body>work done</body></html>",
		calls: map[string]int{},
	}
}

func (g *gameServer) count(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[key]
}

func (g *gameServer) response(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func (g *gameServer) RoundTrip(req *http.Request) (*http.Response, error) {
	g.mu.Lock()
	g.calls[req.Method+" "+req.URL.Path]++
	g.mu.Unlock()

	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/":
		return g.response(req, http.StatusOK, "<html>welcome</html>"), nil
	case req.Method == http.MethodPost && req.URL.Path == "/login.html":
		require.NoError(g.t, req.ParseForm())
		g.mu.Lock()
		g.logins = append(g.logins, map[string]string{
			"login":    req.PostForm.Get("login"),
			"password": req.PostForm.Get("password"),
			"submit":   req.PostForm.Get("submit"),
		})
		g.mu.Unlock()

		if g.loginGate != nil {
			select {
			case g.loginStarted <- struct{}{}:
			default:
			}
			<-g.loginGate
		}
		if g.rejectLogin {
			return g.response(req, http.StatusOK, loginPage), nil
		}
		res := g.response(req, http.StatusFound, "")
		res.Header.Set("Location", "https://"+req.URL.Host+"/index.html?act=login")
		res.Header.Add("Set-Cookie", "session=ok; Path=/")
		return res, nil
	case req.URL.Path == "/index.html":
		return g.response(req, http.StatusOK, "<html>home</html>"), nil
	case strings.HasPrefix(req.URL.Path, "/api"):
		return g.response(req, http.StatusOK, `{"error": "Battle not found"}`), nil
	}

	cookie, err := req.Cookie("session")
	if err != nil || cookie.Value != "ok" || g.forgetLogins {
		return g.response(req, http.StatusOK, loginPage), nil
	}
	return g.response(req, http.StatusOK, g.page), nil
}

type harness struct {
	server  *gameServer
	pool    *session.Pool
	manager *Manager
}

func newHarness(t testing.TB, server *gameServer, creds credentials.Resolver) harness {
	t.Helper()

	tel := telemetry.NewRecorder()
	pool := session.NewPool(session.Options{
		UserAgent: "esimassist-test/1.0",
		Transport: roundTripFunc(server.RoundTrip),
	}, tel)
	t.Cleanup(pool.Close)

	fetcher := fetch.NewFetcher(fetch.Options{Backoff: time.Second}, &chrono.RecordingSleep{}, tel)
	if creds == nil {
		creds = credentials.NewConfigResolver(credentials.Config{
			Nick:     "Hermes",
			Password: "hunter2",
		}, func(string) string { return "" })
	}

	return harness{
		server:  server,
		pool:    pool,
		manager: NewManager(target.DefaultDomain, pool, fetcher, creds, tel),
	}
}

func TestExpiredSessionLogsInOnce(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)

	out, err := h.manager.Fetch(context.Background(), fetch.Request{
		URL:   "https://alpha.e-sim.org/work.html",
		Shape: fetch.ShapeDocumentWithURL,
	})
	require.NoError(t, err)
	require.Equal(t, "work done", out.Document.Find("body").Text())
	require.Equal(t, "https://alpha.e-sim.org/work.html", out.FinalURL)

	require.Equal(t, 2, h.server.count("GET /work.html"))
	require.Equal(t, 1, h.server.count("GET /"))
	require.Equal(t, 1, h.server.count("POST /login.html"))
	require.Equal(t, []map[string]string{
		{"login": "Hermes", "password": "hunter2", "submit": "Login"},
	}, h.server.logins)

	// the first session was released and exactly one replacement was created
	s, ok := h.pool.Peek("alpha")
	require.True(t, ok)
	require.Equal(t, uint64(2), s.Generation)
}

func TestLoggedInSessionIsReused(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)
	ctx := context.Background()

	require.NoError(t, h.manager.Login(ctx, "alpha"))
	for i := 0; i < 3; i++ {
		_, err := h.manager.Fetch(ctx, fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
		require.NoError(t, err)
	}

	require.Equal(t, 3, h.server.count("GET /work.html"))
	require.Equal(t, 1, h.server.count("POST /login.html"))
}

func TestFailedLoginIsFatal(t *testing.T) {
	server := newGameServer(t)
	server.rejectLogin = true
	h := newHarness(t, server, nil)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.Equal(t, fetch.KindAuth, fetch.KindOf(err))
	require.Contains(t, err.Error(), "Hermes")
	require.Contains(t, err.Error(), "alpha")
	require.Contains(t, err.Error(), "https://alpha.e-sim.org/login.html")

	require.Equal(t, 1, server.count("GET /work.html"))
	require.Equal(t, 1, server.count("POST /login.html"))
}

func TestAtMostOneLoginPerFetch(t *testing.T) {
	server := newGameServer(t)
	server.forgetLogins = true
	h := newHarness(t, server, nil)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.True(t, fetch.IsSessionExpired(err))
	require.Equal(t, 2, server.count("GET /work.html"))
	require.Equal(t, 1, server.count("POST /login.html"))
}

func TestUpstreamErrorSkipsLogin(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/apiBattles.html?battleId=3"})
	require.Equal(t, fetch.KindUpstream, fetch.KindOf(err))
	require.Contains(t, err.Error(), "Battle not found")
	require.Equal(t, 1, h.server.count("GET /apiBattles.html"))
	require.Zero(t, h.server.count("POST /login.html"))
}

func TestMissingCredentials(t *testing.T) {
	creds := credentials.NewConfigResolver(credentials.Config{}, func(string) string { return "" })
	h := newHarness(t, newGameServer(t), creds)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.ErrorIs(t, err, credentials.ErrNoCredentials)
	require.Equal(t, fetch.KindAuth, fetch.KindOf(err))
	require.Zero(t, h.server.count("POST /login.html"))
}

func TestForeignHostIsRejected(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://example.com/work.html"})
	require.ErrorIs(t, err, target.ErrForeignHost)
	require.Zero(t, h.pool.Len())
}

func TestUrlIsNormalized(t *testing.T) {
	server := newGameServer(t)
	h := newHarness(t, server, nil)
	require.NoError(t, h.manager.Login(context.Background(), "alpha"))

	out, err := h.manager.Fetch(context.Background(), fetch.Request{
		URL: "http://alpha.e-sim.org/work.html#top",
	})
	require.NoError(t, err)
	require.Equal(t, "https://alpha.e-sim.org/work.html", out.FinalURL)
}

func TestTargetsAreIndependent(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)
	ctx := context.Background()

	_, err := h.manager.Fetch(ctx, fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.NoError(t, err)
	_, err = h.manager.Fetch(ctx, fetch.Request{URL: "https://secura.e-sim.org/work.html"})
	require.NoError(t, err)

	// each target had to log in on its own
	require.Equal(t, 2, h.server.count("POST /login.html"))

	alpha, ok := h.pool.Peek("alpha")
	require.True(t, ok)
	secura, ok := h.pool.Peek("secura")
	require.True(t, ok)
	require.NotSame(t, alpha, secura)
}

func TestConcurrentExpiryLogsInOnce(t *testing.T) {
	h := newHarness(t, newGameServer(t), nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.manager.Fetch(context.Background(), fetch.Request{
				URL: "https://alpha.e-sim.org/work.html",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, h.server.count("POST /login.html"))
}

type attemptResult struct {
	out fetch.Outcome
	err error
}

// scriptedAttempter returns its results in order, the last one is repeated.
type scriptedAttempter struct {
	mu      sync.Mutex
	results []attemptResult
	calls   int
}

func (s *scriptedAttempter) Attempt(ctx context.Context, _ *session.Session, _ fetch.Request) (fetch.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return res.out, res.err
}

func TestEmptyResultAfterLoginIsFetchedAgain(t *testing.T) {
	server := newGameServer(t)
	h := newHarness(t, server, nil)

	attempter := &scriptedAttempter{results: []attemptResult{
		{err: &fetch.ClassifiedError{Kind: fetch.KindSessionExpired, Reason: "logged out"}},
		{out: fetch.Outcome{}},
		{out: fetch.Outcome{FinalURL: "https://alpha.e-sim.org/work.html"}},
	}}
	creds := credentials.NewConfigResolver(credentials.Config{
		Nick:     "Hermes",
		Password: "hunter2",
	}, func(string) string { return "" })
	manager := NewManager(target.DefaultDomain, h.pool, attempter, creds, telemetry.NewRecorder())

	out, err := manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.NoError(t, err)
	require.False(t, out.Empty())
	require.Equal(t, "https://alpha.e-sim.org/work.html", out.FinalURL)
	require.Equal(t, 3, attempter.calls)
	require.Equal(t, 1, server.count("POST /login.html"))
}

func TestCancelledCallerDoesNotFailSharedLogin(t *testing.T) {
	server := newGameServer(t)
	server.loginGate = make(chan struct{})
	server.loginStarted = make(chan struct{}, 1)
	h := newHarness(t, server, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		first <- h.manager.Login(ctx, "alpha")
	}()
	<-server.loginStarted

	second := make(chan error, 1)
	go func() {
		second <- h.manager.Login(context.Background(), "alpha")
	}()

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(server.loginGate)
	require.NoError(t, <-second)

	_, err := h.manager.Fetch(context.Background(), fetch.Request{URL: "https://alpha.e-sim.org/work.html"})
	require.NoError(t, err)
	require.Equal(t, 1, server.count("GET /work.html"))
}
