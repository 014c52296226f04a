// Package app は設定の読み込みから各サブコマンドの起動までのワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/socialnet/internal/auth"
	"github.com/hitoshi/socialnet/internal/config"
	"github.com/hitoshi/socialnet/internal/database"
	"github.com/hitoshi/socialnet/internal/feed"
	"github.com/hitoshi/socialnet/internal/follow"
	"github.com/hitoshi/socialnet/internal/handler"
	"github.com/hitoshi/socialnet/internal/logger"
	"github.com/hitoshi/socialnet/internal/metrics"
	"github.com/hitoshi/socialnet/internal/middleware"
	"github.com/hitoshi/socialnet/internal/post"
	"github.com/hitoshi/socialnet/internal/recommend"
	"github.com/hitoshi/socialnet/internal/repository"
	"github.com/hitoshi/socialnet/internal/security"
	"github.com/hitoshi/socialnet/internal/user"
	"github.com/hitoshi/socialnet/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("unknown LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		var rest []string
		if len(args) > 1 {
			rest = args[1:]
		}
		return runMigrate(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// openStore は設定されたバックエンドのStoreを開く。
// postgresの場合は*sql.DBも返す。呼び出し側でCloseすること。
func openStore(cfg *config.Config) (*repository.Store, *sql.DB, error) {
	if cfg.UsesMemoryStore() {
		slog.Warn("using in-memory store; data will be lost on restart")
		return repository.NewMemoryStore().Store(), nil, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return repository.NewPostgresStore(db), db, nil
}

// newMetrics はメトリクス収集器と/metricsハンドラーを構築する。
// 無効な場合はNopと nil ハンドラーを返す。
func newMetrics(cfg *config.Config) (metrics.MetricsCollector, http.Handler) {
	if !cfg.MetricsEnabled {
		return metrics.Nop{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), metrics.Handler(reg)
}

// server はHTTPサーバーに必要な構成要素をまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	metrics     metrics.MetricsCollector
}

// buildServer はStoreの上に全サービスとルーターを構築する。
// dbがnilの場合（インメモリストア）はヘルスチェックで疎通確認を行わない。
func buildServer(cfg *config.Config, store *repository.Store, db *sql.DB) *server {
	mc, metricsHandler := newMetrics(cfg)

	// 1. セキュリティサービス
	text := security.NewTextNormalizer()
	urlGuard := security.NewPictureURLGuard()
	var prober security.PictureProberService
	if cfg.PictureProbeEnabled {
		prober = security.NewPictureProber(urlGuard.NewSafeClient(cfg.PictureProbeTimeout))
	}

	// 2. ドメインサービス
	authService := auth.NewService(store.Users, store.Sessions, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})
	sampler := recommend.NewSampler(store.Users, cfg.RecommendCount)
	feedService := feed.NewService(store.Users, store.Posts, sampler, mc, cfg.FeedPageSize)
	postService := post.NewService(store.Posts, store.Likes, text, mc, post.Config{MaxLength: cfg.PostMaxLength})
	followService := follow.NewService(store.Users, store.Follows, mc)
	userService := user.NewService(store.Users, store.Follows, text, urlGuard, prober, cfg.PictureProbeTimeout)

	// 3. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPost),
	)

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           mc,
		ViewerResolver:    authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			Secret:       cfg.SessionSecret,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		HSTS:           cfg.CookieSecure,
		MetricsHandler: metricsHandler,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		FeedService: feedService,
		Recommender: sampler,
		PostService: postService,

		UserService:   userService,
		FollowService: followService,
	}
	// nilの*sql.DBをインターフェースに入れるとnil判定できないため、明示的に分岐する
	if db != nil {
		deps.HealthChecker = db
	}

	return &server{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
		metrics:     mc,
	}
}

// runServe はAPIサーバーモードで起動する。
// Storeを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	srv := buildServer(cfg, store, db)
	defer srv.rateLimiter.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// インメモリストアはworkerプロセスと共有できないため、同一プロセスでセッション削除を行う
	if cfg.UsesMemoryStore() {
		job := cleanup.NewCleanupJob(store.Sessions, slog.Default(), srv.metrics)
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.UsesMemoryStore() {
		return errors.New("worker requires STORE_BACKEND=postgres; the in-memory store runs cleanup inside serve")
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// ワーカーは/metricsを公開しないため、ログのみで記録する
	job := cleanup.NewCleanupJob(store.Sessions, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// up（デフォルト）/ down [N] / version をサポートする。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.UsesMemoryStore() {
		return errors.New("migrate requires STORE_BACKEND=postgres")
	}

	action, steps, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("current schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
