package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialnet/internal/metrics"
	"github.com/hitoshi/socialnet/internal/middleware"
)

// HealthChecker は永続化層の疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	ViewerResolver    middleware.ViewerResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	HSTS              bool

	// 運用エンドポイント
	HealthChecker  HealthChecker // nilの場合は常にok
	MetricsHandler http.Handler  // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// フィード・推薦
	FeedService FeedServiceInterface
	Recommender RecommenderInterface

	// 投稿
	PostService PostServiceInterface

	// ユーザー・フォロー
	UserService   UserServiceInterface
	FollowService FollowServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Viewer → RateLimit(General) → CSRF
//
// 書き込み系のルートには更にRequireAuthを適用し、投稿作成には専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	feedHandler := NewFeedHandler(deps.FeedService, deps.Recommender)
	postHandler := NewPostHandler(deps.PostService)
	userHandler := NewUserHandler(deps.UserService, deps.FollowService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- アプリケーションのルート ---
	// 匿名でも閲覧できるため、閲覧者の解決は必須にしない
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewViewerMiddleware(deps.ViewerResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		requireAuth := middleware.RequireAuth()

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(requireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/api/feed", func(r chi.Router) {
			r.Get("/global", feedHandler.Global)
			r.With(requireAuth).Get("/following", feedHandler.Following)
		})
		r.With(requireAuth).Get("/api/recommendations", feedHandler.Recommendations)

		r.Route("/api/posts", func(r chi.Router) {
			// POST /api/posts - 投稿作成（専用レート制限を追加）
			r.With(requireAuth, deps.RateLimiter.PostCreationMiddleware()).Post("/", postHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.Get)
				r.With(requireAuth).Put("/", postHandler.Edit)
				r.With(requireAuth).Post("/like", postHandler.ToggleLike)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.With(requireAuth).Put("/me", userHandler.UpdateMe)

			r.Route("/{username}", func(r chi.Router) {
				r.Get("/", userHandler.Profile)
				r.Get("/posts", feedHandler.Profile)
				r.Get("/followers", userHandler.Followers)
				r.Get("/following", userHandler.Following)
				r.With(requireAuth).Post("/follow", userHandler.Follow)
			})
		})
	})

	return r
}

// healthHandler は永続化層への疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
