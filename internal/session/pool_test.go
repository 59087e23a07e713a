package session

import (
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/target"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPool(t testing.TB, transport http.RoundTripper) *Pool {
	t.Helper()
	return NewPool(Options{
		UserAgent: "esimassist-test/1.0",
		Transport: transport,
	}, telemetry.NewRecorder())
}

func TestAcquireReturnsSameSession(t *testing.T) {
	pool := newTestPool(t, nil)

	first, err := pool.Acquire("alpha")
	require.NoError(t, err)
	second, err := pool.Acquire("alpha")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, pool.Len())
}

func TestReleaseRecreatesSession(t *testing.T) {
	pool := newTestPool(t, nil)

	seen := []*Session{}
	for i := 0; i < 3; i++ {
		s, err := pool.Acquire("alpha")
		require.NoError(t, err)
		for _, previous := range seen {
			require.NotSame(t, previous, s)
			require.Greater(t, s.Generation, previous.Generation)
		}
		seen = append(seen, s)
		pool.Release("alpha")
	}
	require.Equal(t, 0, pool.Len())
}

func TestReleaseWithoutSession(t *testing.T) {
	pool := newTestPool(t, nil)

	require.NotPanics(t, func() {
		pool.Release("alpha")
		pool.Release("alpha")
	})
	_, ok := pool.Peek("alpha")
	require.False(t, ok)
}

func TestTargetsAreIsolated(t *testing.T) {
	pool := newTestPool(t, nil)

	alpha, err := pool.Acquire("alpha")
	require.NoError(t, err)
	secura, err := pool.Acquire("secura")
	require.NoError(t, err)
	require.NotSame(t, alpha, secura)
	require.NotSame(t, alpha.Http, secura.Http)

	pool.Release("alpha")
	still, ok := pool.Peek("secura")
	require.True(t, ok)
	require.Same(t, secura, still)
	require.Same(t, pool.Guard("alpha"), pool.Guard("alpha"))
	require.NotSame(t, pool.Guard("alpha"), pool.Guard("secura"))

	pool.Close()
	require.Equal(t, 0, pool.Len())
}

func TestConcurrentAcquire(t *testing.T) {
	pool := newTestPool(t, nil)

	const n = 32
	results := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := pool.Acquire(target.ID("alpha"))
			if err == nil {
				results[i] = s
			}
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		require.Same(t, results[0], s)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSessionSendsUserAgentAndKeepsCookies(t *testing.T) {
	var agents []string
	var cookies []string
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		agents = append(agents, req.Header.Get("User-Agent"))
		cookies = append(cookies, req.Header.Get("Cookie"))
		header := http.Header{}
		header.Set("Set-Cookie", "PLAY_SESSION=abc; Path=/")
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader("ok")),
			Request:    req,
		}, nil
	})

	pool := newTestPool(t, transport)
	s, err := pool.Acquire("alpha")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := s.Http.R().Get("https://alpha.e-sim.org/")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode())
	}

	require.Equal(t, []string{"esimassist-test/1.0", "esimassist-test/1.0"}, agents)
	require.Equal(t, "", cookies[0])
	require.Equal(t, "PLAY_SESSION=abc", cookies[1])

	pool.Release("alpha")
	fresh, err := pool.Acquire("alpha")
	require.NoError(t, err)
	_, err = fresh.Http.R().Get("https://alpha.e-sim.org/")
	require.NoError(t, err)
	require.Equal(t, "", cookies[2])
}

type idleCountingTransport struct {
	roundTripFunc
	closed atomic.Int32
}

func (t *idleCountingTransport) CloseIdleConnections() {
	t.closed.Add(1)
}

func TestReleaseClosesTransport(t *testing.T) {
	transport := &idleCountingTransport{}
	pool := newTestPool(t, transport)

	_, err := pool.Acquire("alpha")
	require.NoError(t, err)
	require.Zero(t, transport.closed.Load())

	pool.Release("alpha")
	require.Equal(t, int32(1), transport.closed.Load())

	_, err = pool.Acquire("alpha")
	require.NoError(t, err)
	pool.Close()
	require.Equal(t, int32(2), transport.closed.Load())
}
