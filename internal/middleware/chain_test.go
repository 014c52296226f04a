package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialnet/internal/model"
)

// newChainRouter はアプリケーションと同じ順序でミドルウェアを組んだchiルーターを返す。
func newChainRouter(t *testing.T) http.Handler {
	t.Helper()
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 100, GeneralBurst: 100, PostRate: 100, PostBurst: 100})
	csrfCfg := testCSRFConfig()

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), nil))
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfCfg).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewViewerMiddleware(resolverFor(map[string]model.Viewer{"sess": testViewer})))
		r.Use(rl.GeneralMiddleware())
		r.Use(NewCSRFMiddleware(csrfCfg))

		r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"user_id": ViewerFromContext(r.Context()).UserID})
		})
		r.With(RequireAuth(), rl.PostCreationMiddleware()).Post("/api/posts", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func TestMiddlewareChain_AnonymousRead(t *testing.T) {
	router := newChainRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["user_id"] != "" {
		t.Errorf("user_id = %q, want empty for anonymous", body["user_id"])
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
}

func TestMiddlewareChain_AnonymousWrite_Returns401(t *testing.T) {
	router := newChainRouter(t)
	token := mustCSRFToken(t, testCSRFSecret)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", bytes.NewBufferString(`{"body":"hi"}`))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	req.Header.Set(csrfHeaderName, token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewareChain_CSRFTokenFlow(t *testing.T) {
	router := newChainRouter(t)

	// 1. トークン取得
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&tok); err != nil || tok.Token == "" {
		t.Fatalf("failed to obtain CSRF token: %v", err)
	}

	// 2. トークンなしのPOSTは403
	req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("without token: status = %d, want 403", w.Code)
	}

	// 3. トークン付きのPOSTは通る
	req = httptest.NewRequest(http.MethodPost, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok.Token})
	req.Header.Set(csrfHeaderName, tok.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("with token: status = %d, want 201", w.Code)
	}
}
