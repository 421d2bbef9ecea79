package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rideboard/internal/metrics"
	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/model"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DB がこれを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// リクエストログ用。nilの場合はslog.Default()を使用する。
	Logger *slog.Logger
	// リクエスト単位のメトリクス記録用。nilの場合は記録しない。
	HTTPMetrics middleware.HTTPMetricsRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ライド掲示板
	RideService RideServiceInterface

	// メトリクス公開用。nilの場合は/metricsを公開しない。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS →（保護ルートのみ）Session → RateLimit → CSRF
//
// 認証ルート（/auth/*）はセッション発行前のユーザーが使うため、
// セッションミドルウェアの外に配置する。認証エンドポイント自体の
// 試行回数制限はサービス層のAttemptLimiterが担当する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPMetrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	rideHandler := NewRideHandler(deps.RideService)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// メール検証フロー
		r.Get("/verify", authHandler.Verify)
		r.Get("/verification", authHandler.Verification)
		r.Post("/resend-verification", authHandler.ResendVerification)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.Middleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/rides", func(r chi.Router) {
			r.Post("/", rideHandler.Create)
			r.Get("/", rideHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", rideHandler.Update)
				r.Delete("/", rideHandler.Delete)
			})
		})
	})

	return r
}

// newHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// DBへの到達性を確認し、到達できない場合は503を返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				middleware.WriteError(w, model.NewBackendUnavailableError(err))
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
