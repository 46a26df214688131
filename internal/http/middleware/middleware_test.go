package middleware

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func init() { gin.SetMode(gin.TestMode) }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func serve(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad log line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.String(http.StatusOK, asString(c.Value(requestIDKey))) })

	w := serve(r, http.MethodGet, "/rid", nil)
	if gen := w.Header().Get(requestIDHeader); gen == "" || w.Body.String() != gen {
		t.Fatalf("generated id header=%q body=%q", gen, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/rid", map[string]string{"x-request-id": "abc-123"})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}
}

func TestAccessLog_LevelsAndRedaction(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), AccessLog(LogOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ok/:id", func(c *gin.Context) {
		LoggerFrom(c).Debug().Msg("inside")
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/ok/42?page=2", map[string]string{
		"Authorization": "Bearer s3cret",
		"X-Api-Key":     "k",
		"X-Trace":       "visible",
	})
	serve(r, http.MethodGet, "/bad", nil)
	serve(r, http.MethodGet, "/err", nil)
	serve(r, http.MethodGet, "/missing", nil)

	var access []map[string]any
	for _, m := range logLines(t, buf) {
		if m["message"] == "request" {
			access = append(access, m)
		}
	}
	if len(access) != 4 {
		t.Fatalf("want 4 access lines, got %d: %s", len(access), buf.String())
	}
	if access[0]["level"] != "info" || access[0]["path"] != "/ok/:id" || access[0]["query"] != "page=2" {
		t.Fatalf("ok line = %v", access[0])
	}
	if access[0]["component"] != "http" || access[0]["request_id"] == "" {
		t.Fatalf("missing context fields: %v", access[0])
	}
	hdr := access[0]["headers"].(map[string]any)
	if hdr["Authorization"] != redacted || hdr["X-Api-Key"] != redacted || hdr["X-Trace"] != "visible" {
		t.Fatalf("headers = %v", hdr)
	}
	if strings.Contains(buf.String(), "s3cret") {
		t.Fatalf("token leaked into logs")
	}
	if access[1]["level"] != "warn" || access[2]["level"] != "error" {
		t.Fatalf("levels = %v / %v", access[1]["level"], access[2]["level"])
	}
	if access[3]["path"] != "/missing" {
		t.Fatalf("unmatched path fallback = %v", access[3]["path"])
	}
}

func TestRecovery_JSON500WithRequestID(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), AccessLog(LogOptions{}), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", map[string]string{requestIDHeader: "rid-7"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["request_id"] != "rid-7" || body["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged")
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatalf("nil fallback logger")
	}
}

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AdminAuth("tok"))
	r.GET("/x", func(c *gin.Context) {
		p, _ := Principal(c)
		c.String(http.StatusOK, p)
	})

	cases := []struct {
		auth string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Basic tok", http.StatusUnauthorized},
		{"Bearer tok", http.StatusOK},
		{"bearer  tok ", http.StatusOK},
	}
	for _, tc := range cases {
		w := serve(r, http.MethodGet, "/x", map[string]string{"Authorization": tc.auth})
		if w.Code != tc.want {
			t.Fatalf("%q -> %d; want %d", tc.auth, w.Code, tc.want)
		}
		if tc.want == http.StatusOK && w.Body.String() != PrincipalAdmin {
			t.Fatalf("principal = %q", w.Body.String())
		}
		if tc.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("missing challenge header")
		}
	}
}

func TestAdminAuth_EmptyTokenDisablesCheck(t *testing.T) {
	r := gin.New()
	r.Use(AdminAuth(""))
	r.GET("/x", func(c *gin.Context) {
		if _, ok := Principal(c); ok {
			t.Errorf("no principal expected")
		}
		c.Status(http.StatusNoContent)
	})
	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestKeyByIP(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyByIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("key = %q", key)
	}
	c.Set(principalKey, PrincipalAdmin)
	if key := KeyByIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("authenticated caller key = %q", key)
	}
}

func TestRateLimiter_BurstCoercionAndReuse(t *testing.T) {
	rl := NewRateLimiter(2, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	if a, b := rl.limiterFor("k"), rl.limiterFor("k"); a != b {
		t.Fatalf("bucket not reused")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.ttl = time.Nanosecond
	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = rl.gcEvery - 1
	rl.mu.Unlock()

	rl.limiterFor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle bucket survived")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatalf("new bucket missing")
	}
}

func TestRateLimiter_HandlerDeniesAndSkips(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Skip = SkipPaths("/health")

	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/ok", nil); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/ok", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second = %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "rate_limited" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}
	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("skipped path limited: %d", w.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) { c.Header("Access-Control-Expose-Headers", "Content-Length"); c.Next() })
	r.Use(SecurityHeaders(SecurityOptions{NoStore: true, EnablePolicy: true}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	h := serve(r, http.MethodGet, "/x", nil).Header()
	for k, v := range map[string]string{
		"X-Content-Type-Options":            "nosniff",
		"X-Frame-Options":                   "DENY",
		"Referrer-Policy":                   "no-referrer",
		"Cache-Control":                     "no-store",
		"X-Permitted-Cross-Domain-Policies": "none",
		"Access-Control-Expose-Headers":     "Content-Length, X-Request-ID",
	} {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}

	plain := gin.New()
	plain.Use(SecurityHeaders(SecurityOptions{}))
	plain.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	h = serve(plain, http.MethodGet, "/x", nil).Header()
	if h.Get("Cache-Control") != "" || h.Get("Permissions-Policy") != "" || h.Get("Access-Control-Expose-Headers") != "" {
		t.Fatalf("optional headers leaked: %v", h)
	}
}

func TestMetrics_CountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/m/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	before := testutil.ToFloat64(httpReqs.WithLabelValues(http.MethodGet, "/m/:id", "202"))
	serve(r, http.MethodGet, "/m/1", nil)
	serve(r, http.MethodGet, "/m/2", nil)
	if got := testutil.ToFloat64(httpReqs.WithLabelValues(http.MethodGet, "/m/:id", "202")); got != before+2 {
		t.Fatalf("count = %v; want %v", got, before+2)
	}

	unmatched := testutil.ToFloat64(httpReqs.WithLabelValues(http.MethodGet, "unmatched", "404"))
	serve(r, http.MethodGet, "/nowhere/123", nil)
	if got := testutil.ToFloat64(httpReqs.WithLabelValues(http.MethodGet, "unmatched", "404")); got != unmatched+1 {
		t.Fatalf("unmatched count = %v", got)
	}
	if testutil.ToFloat64(httpInflight) != 0 {
		t.Fatalf("inflight gauge leaked")
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abcdef", 3) != "abc…" || truncate("abc", 0) != "abc" || truncate("ab", 5) != "ab" {
		t.Fatalf("truncate broken")
	}
}
