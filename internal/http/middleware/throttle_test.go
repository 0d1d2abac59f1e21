package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, defaultCfg, positionCfg RateConfig) *Throttle {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewThrottle(client, defaultCfg, positionCfg)
}

func serve(t *testing.T, limiter *Throttle, path, clientID string) *httptest.ResponseRecorder {
	t.Helper()
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestThrottleAllowsWithinBurst(t *testing.T) {
	limiter := newTestThrottle(t, RateConfig{Rate: 1, Burst: 3}, RateConfig{Rate: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		rec := serve(t, limiter, "/v1/pickups", "c1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}
}

func TestThrottleRejectsBeyondBurst(t *testing.T) {
	limiter := newTestThrottle(t, RateConfig{Rate: 1, Burst: 2}, RateConfig{Rate: 1, Burst: 2})

	serve(t, limiter, "/v1/pickups", "c1")
	serve(t, limiter, "/v1/pickups", "c1")
	rec := serve(t, limiter, "/v1/pickups", "c1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestThrottleBucketsPerClient(t *testing.T) {
	limiter := newTestThrottle(t, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 1})

	require.Equal(t, http.StatusOK, serve(t, limiter, "/v1/pickups", "c1").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(t, limiter, "/v1/pickups", "c1").Code)
	require.Equal(t, http.StatusOK, serve(t, limiter, "/v1/pickups", "c2").Code)
}

func TestThrottlePositionBucketIsSeparate(t *testing.T) {
	limiter := newTestThrottle(t, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 5})

	require.Equal(t, http.StatusOK, serve(t, limiter, "/v1/pickups", "c1").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(t, limiter, "/v1/pickups", "c1").Code)

	// Position reports draw from their own, larger bucket.
	for i := 0; i < 5; i++ {
		rec := serve(t, limiter, "/v1/truck/position", "c1")
		require.Equal(t, http.StatusOK, rec.Code, "position report %d", i)
	}
	require.Equal(t, http.StatusTooManyRequests, serve(t, limiter, "/v1/truck/position", "c1").Code)
}

func TestThrottleNilClientDisables(t *testing.T) {
	require.Nil(t, NewThrottle(nil, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 1}))
}

func TestThrottleZeroRatePassesThrough(t *testing.T) {
	limiter := newTestThrottle(t, RateConfig{}, RateConfig{})
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, serve(t, limiter, "/v1/pickups", "c1").Code)
	}
}
