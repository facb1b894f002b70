package ratelimit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_HeadersAndRejection(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 2)
	stats := ratelimit.NewMemoryStats()

	var observed []bool
	h := ratelimit.Middleware(l, ratelimit.MiddlewareOptions{
		Stats: stats,
		OnDecision: func(_ string, d ratelimit.Decision) {
			observed = append(observed, d.Allowed)
		},
	})(okHandler())

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/validate", nil)
		req.RemoteAddr = "198.51.100.7:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	clock.Advance(15 * time.Second)
	require.Equal(t, http.StatusOK, do().Code)

	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "45", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_ERROR", body["code"])
	assert.EqualValues(t, 45, body["retryAfter"])

	assert.Equal(t, []bool{true, true, false}, observed)
	assert.Equal(t, ratelimit.Counters{Allowed: 2, Denied: 1}, stats.Total())
	assert.Equal(t, ratelimit.Counters{Allowed: 2, Denied: 1}, stats.ByRoute()["POST /validate"])
}

func TestMiddleware_BucketsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 5)

	bulk := ratelimit.Middleware(l, ratelimit.MiddlewareOptions{Bucket: ratelimit.BucketBulk})(okHandler())
	single := ratelimit.Middleware(l, ratelimit.MiddlewareOptions{})(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "198.51.100.7:1"
		return r
	}

	rec := httptest.NewRecorder()
	bulk.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	bulk.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	single.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_APIKeysAreSeparateClients(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, 1)
	h := ratelimit.Middleware(l, ratelimit.MiddlewareOptions{})(okHandler())

	for _, key := range []string{"alpha", "beta"} {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "198.51.100.7:1"
		r.Header.Set(ratelimit.APIKeyHeader, key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code, key)
	}
}
