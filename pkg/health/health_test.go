package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func fail(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func probeAt(s *Service, readiness bool, i int) *probe {
	if readiness {
		return s.readiness[i]
	}
	return s.liveness[i]
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) probeReport {
	t.Helper()
	var body probeReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("all passing", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("a", time.Second, pass())
		s.AddLivenessCheck("b", time.Second, pass())

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "ok", decodeReport(t, w).Status)
	})

	t.Run("no probes registered", func(t *testing.T) {
		s := New()

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("failing past threshold", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("db", time.Second, fail("connection refused"))

		ctx := context.Background()
		for range defaultFailureThreshold {
			probeAt(s, false, 0).poll(ctx)
		}

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeReport(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["db"])
	})

	t.Run("failing below threshold stays healthy", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("flaky", time.Second, fail("temporary"))

		ctx := context.Background()
		for range defaultFailureThreshold - 1 {
			probeAt(s, false, 0).poll(ctx)
		}

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready and passing", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("postgres", time.Second, pass())
		s.SetReady(true)

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decodeReport(t, w).Status)
	})

	t.Run("gate closed by default", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("postgres", time.Second, pass())

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeReport(t, w).Checks, "_readiness")
	})

	t.Run("gate reclosed on shutdown", func(t *testing.T) {
		s := New()
		s.SetReady(true)

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		s.SetReady(false)

		w = httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("one failing probe named, passing one omitted", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("postgres", time.Second, pass())
		s.AddReadinessCheck("cache", time.Second, fail("cache miss"))
		s.SetReady(true)

		ctx := context.Background()
		for range defaultFailureThreshold {
			probeAt(s, true, 1).poll(ctx)
		}

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeReport(t, w)
		assert.Contains(t, body.Checks, "cache")
		assert.NotContains(t, body.Checks, "postgres")
	})
}

func TestIsReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("postgres", time.Second, pass())

	assert.False(t, s.IsReady())

	s.SetReady(true)
	assert.True(t, s.IsReady())

	s.SetReady(false)
	assert.False(t, s.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	down := true
	s := New()
	s.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := probeAt(s, false, 0)
	ctx := context.Background()

	for range defaultFailureThreshold {
		p.poll(ctx)
	}
	assert.False(t, p.healthy())

	down = false
	p.poll(ctx)
	assert.True(t, p.healthy(), "one pass recovers the probe")
}

func TestStartStop(t *testing.T) {
	s := New()
	s.AddLivenessCheck("noop", time.Second, pass())

	s.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestConcurrentEndpointAccess(t *testing.T) {
	s := New()
	s.AddLivenessCheck("live", time.Second, fail("err"))
	s.AddReadinessCheck("ready", time.Second, pass())
	s.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.IsReady()

				w := httptest.NewRecorder()
				s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

				w = httptest.NewRecorder()
				s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	s.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(_ context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(stubPinger{})(context.Background()))

	err := PingCheck(stubPinger{err: errors.New("refused")})(context.Background())
	assert.Error(t, err)
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
