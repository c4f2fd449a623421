package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sensive/blog/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSink struct {
	mu    sync.Mutex
	paths []string
}

func (s *recordingSink) AddPageViews(_ context.Context, _ time.Time, path string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return nil
}

func TestPageViewRecorder(t *testing.T) {
	sink := &recordingSink{}
	r := gin.New()
	r.Use(PageViewRecorder(utils.NewPageViewCounter(nil, sink)))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", ok)
	r.GET("/post/:slug", ok)
	r.GET("/health", ok)
	r.GET("/api/stats", ok)
	r.POST("/contacts", ok)
	r.GET("/missing", func(c *gin.Context) { c.String(http.StatusNotFound, "") })

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/post/hello"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/stats"},
		{http.MethodPost, "/contacts"},
		{http.MethodGet, "/missing"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(req.method, req.path, nil))
	}

	assert.Equal(t, []string{"/", "/post/hello"}, sink.paths)
}

func TestCountablePath(t *testing.T) {
	assert.True(t, countablePath("/tag/go"))
	assert.False(t, countablePath("/metrics"))
	assert.False(t, countablePath("/static/css/style.css"))
	assert.False(t, countablePath("/media/posts/a.png"))
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(4)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	// burst is perMinute/2
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"), "buckets are per IP")

	// one token refills every 15s
	fixed = fixed.Add(15 * time.Second)
	assert.True(t, l.Allow("1.1.1.1"))
}

func TestIPRateLimiterForgetsIdleVisitors(t *testing.T) {
	l := NewIPRateLimiter(2)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Allow("1.1.1.1")
	fixed = fixed.Add(limiterIdleTTL + time.Second)
	l.Allow("2.2.2.2")

	_, ok := l.visitors["1.1.1.1"]
	assert.False(t, ok)
}

func TestRateLimitUsesOnLimitedHandler(t *testing.T) {
	r := gin.New()
	limited := RateLimit(NewIPRateLimiter(1), func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "slow down")
	})
	r.POST("/contacts", limited, func(c *gin.Context) { c.String(http.StatusOK, "sent") })

	codes := []int{}
	var body string
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contacts", nil))
		codes = append(codes, w.Code)
		body = w.Body.String()
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "slow down", body)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(utils.RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestMetricsExposesRouteCounters(t *testing.T) {
	m := NewMetrics()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/post/:slug", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/post/hello", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(),
		`blog_http_requests_total{method="GET",route="/post/:slug",status="200"} 1`))
}

func TestMetricsInFlightSurvivesPanics(t *testing.T) {
	m := NewMetrics()
	r := gin.New()
	r.Use(utils.RecoveryWithZap(zap.NewNop(), false))
	r.Use(m.Middleware())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	// scrape from a separate engine so the scrape itself is not in flight
	scrape := gin.New()
	scrape.GET("/metrics", m.Handler())
	w = httptest.NewRecorder()
	scrape.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "\nblog_http_requests_in_flight 0\n")
}
