package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	r.RemoteAddr = "10.0.0.1:4321"
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimit(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute, KeyFunc: ClientKey("api_key")})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	h := l.middleware(ok())

	w := get(h, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusOK, get(h, nil).Code)

	w = get(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])

	// Same address, but an API key gets its own bucket.
	w = get(h, func(r *http.Request) { r.Header.Set("api_key", "k1") })
	assert.Equal(t, http.StatusOK, w.Code)

	// Another client is unaffected.
	w = get(h, func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, wait := l.reserve("a")
	assert.Zero(t, wait)
	_, wait = l.reserve("a")
	assert.InDelta(t, time.Minute.Seconds(), wait.Seconds(), 0.001)

	now = now.Add(2 * time.Minute)
	l.evict()
	assert.Empty(t, l.buckets)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"RemoteAddr", nil, "ip:10.0.0.1"},
		{"ForwardedFor", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "ip:1.1.1.1"},
		{"RealIP", map[string]string{"X-Real-IP": "3.3.3.3"}, "ip:3.3.3.3"},
		{"APIKey", map[string]string{"api_key": "k", "X-Real-IP": "3.3.3.3"}, "key:k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.1:4321"
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey("api_key")(r))
		})
	}
}

func TestCORS(t *testing.T) {
	preflight := func(origin string) func(r *http.Request) {
		return func(r *http.Request) {
			r.Method = http.MethodOptions
			r.Header.Set("Origin", origin)
			r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			r.Header.Set("Access-Control-Request-Headers", "api_key")
		}
	}

	t.Run("Preflight", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://Shop.example"}, MaxAge: 600})(ok())
		w := get(h, preflight("https://shop.example"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "api_key", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})
	t.Run("PreflightRejected", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://shop.example"}})(ok())
		w := get(h, preflight("https://evil.example"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("Wildcard", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"*"}})(ok())
		w := get(h, func(r *http.Request) { r.Header.Set("Origin", "https://any.example") })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Values("Vary"))
	})
	t.Run("WildcardWithCredentials", func(t *testing.T) {
		h := CORS(CORSConfig{AllowCredentials: true, ExposeHeaders: []string{RequestIDHeader}})(ok())
		w := get(h, func(r *http.Request) { r.Header.Set("Origin", "https://any.example") })
		assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
		assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := get(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "abc-123") })
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = get(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, strings.Repeat("x", 129)) })
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	w = get(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "bad\x01id") })
	assert.NotEqual(t, "bad\x01id", seen)
}

func TestRecoveryAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/{id}", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Handled")
		w.WriteHeader(http.StatusAccepted)
	})
	h := Wrap(mux, RequestID(), InjectLogger(zap.New(core)), Recovery(), LogRequests())

	w := get(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "req-1") })
	assert.Equal(t, http.StatusAccepted, w.Code)

	handled := logs.FilterMessage("Handled").All()
	require.Len(t, handled, 1)
	assert.Equal(t, "req-1", handled[0].ContextMap()["request_id"])

	request := logs.FilterMessage("Request").All()
	require.Len(t, request, 1)
	assert.Equal(t, "GET /api/products", request[0].ContextMap()["route"])
	assert.Equal(t, int64(http.StatusAccepted), request[0].ContextMap()["status"])

	r := httptest.NewRequest(http.MethodGet, "/api/products/p1", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
	assert.Len(t, logs.FilterMessage("Panic recovered").All(), 1)
}
