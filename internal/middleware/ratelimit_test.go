package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// requestAs はviewerとして、またはviewerがnilの場合はremoteAddrの匿名クライアントとしてリクエストを生成する。
func requestAs(viewer *model.Viewer, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/feed/global", nil)
	req.RemoteAddr = remoteAddr
	if viewer != nil {
		req = req.WithContext(ContextWithViewer(req.Context(), *viewer))
	}
	return req
}

func serveStatus(h http.Handler, req *http.Request) int {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_BurstThen429(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 3})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if got := serveStatus(handler, requestAs(&testViewer, "10.0.0.1:1234")); got != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, got)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(&testViewer, "10.0.0.1:1234"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ra, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || ra < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if body := decodeErrorBody(t, w); body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestRateLimitMiddleware_RetryAfterReflectsRate(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(1, 1)) // 1 req/min
	handler := rl.GeneralMiddleware()(okHandler())

	serveStatus(handler, requestAs(&testViewer, "10.0.0.1:1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(&testViewer, "10.0.0.1:1"))

	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestRateLimitMiddleware_KeysAreIsolated(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 0.001, GeneralBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())
	other := model.Viewer{UserID: "user-999", Username: "bob"}

	requests := []struct {
		name string
		req  func() *http.Request
	}{
		{"alice", func() *http.Request { return requestAs(&testViewer, "10.0.0.1:1") }},
		{"bob 同一IP", func() *http.Request { return requestAs(&other, "10.0.0.1:1") }},
		{"匿名 IP-A", func() *http.Request { return requestAs(nil, "192.0.2.1:5555") }},
		{"匿名 IP-B", func() *http.Request { return requestAs(nil, "192.0.2.2:5555") }},
	}

	for _, r := range requests {
		if got := serveStatus(handler, r.req()); got != http.StatusOK {
			t.Errorf("%s first request: status = %d, want 200", r.name, got)
		}
	}
	for _, r := range requests {
		if got := serveStatus(handler, r.req()); got != http.StatusTooManyRequests {
			t.Errorf("%s second request: status = %d, want 429", r.name, got)
		}
	}
	if n := rl.GeneralLimiterCount(); n != 4 {
		t.Errorf("limiter entries = %d, want 4", n)
	}
}

// 匿名クライアントはポートが異なっても同一IPなら同じ枠を共有する
func TestRateLimitMiddleware_AnonymousKeyIgnoresPort(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 0.001, GeneralBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	serveStatus(handler, requestAs(nil, "192.0.2.1:1000"))
	if got := serveStatus(handler, requestAs(nil, "192.0.2.1:2000")); got != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", got)
	}
}

func TestPostCreationRateLimit_IndependentFromGeneral(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 0.001, GeneralBurst: 1,
		PostRate: 0.001, PostBurst: 2,
	})
	general := rl.GeneralMiddleware()(okHandler())
	posts := rl.PostCreationMiddleware()(okHandler())

	serveStatus(general, requestAs(&testViewer, "10.0.0.1:1"))
	if got := serveStatus(general, requestAs(&testViewer, "10.0.0.1:1")); got != http.StatusTooManyRequests {
		t.Fatalf("general limit should be exhausted, status = %d", got)
	}

	for i := 0; i < 2; i++ {
		if got := serveStatus(posts, requestAs(&testViewer, "10.0.0.1:1")); got != http.StatusOK {
			t.Errorf("post request %d: status = %d, want 200", i, got)
		}
	}
	if got := serveStatus(posts, requestAs(&testViewer, "10.0.0.1:1")); got != http.StatusTooManyRequests {
		t.Errorf("third post: status = %d, want 429", got)
	}
	if n := rl.PostLimiterCount(); n != 1 {
		t.Errorf("post limiter entries = %d, want 1", n)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, PostRate: 1, PostBurst: 1})
	rl.config.CleanupInterval = time.Minute

	serveStatus(rl.GeneralMiddleware()(okHandler()), requestAs(&testViewer, "10.0.0.1:1"))
	serveStatus(rl.PostCreationMiddleware()(okHandler()), requestAs(&testViewer, "10.0.0.1:1"))

	rl.cleanup(time.Now().Add(time.Minute))
	if rl.GeneralLimiterCount() != 1 || rl.PostLimiterCount() != 1 {
		t.Fatal("entries within the TTL must survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.PostLimiterCount() != 0 {
		t.Errorf("idle entries should be evicted, got general=%d post=%d", rl.GeneralLimiterCount(), rl.PostLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.PostBurst != 10 {
		t.Errorf("PostBurst = %d, want 10", cfg.PostBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}
