// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialnet/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// viewerContextKey はリクエストコンテキストに閲覧者を格納するためのキー。
var viewerContextKey = contextKey("viewer")

// ViewerResolver はセッションIDから閲覧者を解決する。
// auth.Serviceが実装する。
type ViewerResolver interface {
	ResolveViewer(ctx context.Context, sessionID string) (model.Viewer, error)
}

// NewViewerMiddleware はHTTP Only Cookieのセッションから閲覧者を解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストも匿名の閲覧者として通過させる。
// 永続化層の障害時のみ503を返す。
func NewViewerMiddleware(resolver ViewerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			viewer, err := resolver.ResolveViewer(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to resolve viewer",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
				return
			}

			if !viewer.IsAnonymous() {
				annotateUserID(r.Context(), viewer.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithViewer(r.Context(), viewer)))
		})
	}
}

// RequireAuth は匿名の閲覧者に401を返すミドルウェアを返す。
// NewViewerMiddlewareの後に配置する。
func RequireAuth() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ViewerFromContext(r.Context()).IsAnonymous() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ViewerFromContext はリクエストコンテキストから閲覧者を取得する。
// 未設定の場合は匿名の閲覧者を返す。
func ViewerFromContext(ctx context.Context) model.Viewer {
	viewer, ok := ctx.Value(viewerContextKey).(model.Viewer)
	if !ok {
		return model.Anonymous
	}
	return viewer
}

// ContextWithViewer はコンテキストに閲覧者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithViewer(ctx context.Context, viewer model.Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey, viewer)
}
