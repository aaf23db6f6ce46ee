package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plerouge/enrollman/internal/appstate"
	"github.com/plerouge/enrollman/internal/middleware"
	"github.com/plerouge/enrollman/internal/security"
	"github.com/plerouge/enrollman/internal/store"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	Logger            *slog.Logger

	// 認証
	Directory  DirectoryAuthInterface
	AuthConfig AuthHandlerConfig

	// ストアと画面状態
	Gateway   store.Gateway
	State     *appstate.State
	Sanitizer security.TextSanitizerService

	// 登録操作
	Reconciler ReconcilerInterface

	// 監視
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeadersMiddleware → RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）と監視ルート（/health, /metrics）はレート制限の外に配置する。
// ストア接続が前提のルートはConnectionGuardMiddlewareで保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.Directory, deps.AuthConfig)
	connectHandler := NewConnectHandler(deps.Gateway, deps.State, deps.Directory, deps.Sanitizer, deps.Logger)
	stateHandler := NewStateHandler(deps.Gateway, deps.State)
	enrollmentHandler := NewEnrollmentHandler(deps.Reconciler, deps.Gateway, deps.State, deps.Sanitizer, deps.Logger)

	// --- レート制限の外のルート ---

	// 監視
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth/microsoft", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 接続管理（接続前でも叩けるため保護の外）
		r.With(deps.RateLimiter.MutationMiddleware()).Post("/api/connect", connectHandler.Connect)
		r.With(deps.RateLimiter.MutationMiddleware()).Post("/api/disconnect", connectHandler.Disconnect)
		r.Get("/api/connection", connectHandler.Connection)

		// ストア接続が前提のルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewConnectionGuardMiddleware(deps.Gateway))

			r.Get("/api/users", stateHandler.ListUsers)
			r.Get("/api/sites", stateHandler.ListSites)
			r.Get("/api/stats", stateHandler.Stats)

			// 選択管理
			r.Route("/api/selection", func(r chi.Router) {
				r.Get("/", stateHandler.GetSelection)
				r.Delete("/", stateHandler.ClearSelection)
				r.Post("/{userID}/toggle", stateHandler.ToggleSelection)
			})

			// 登録操作（変更専用レート制限を追加）
			r.Route("/api/enrollments", func(r chi.Router) {
				r.With(deps.RateLimiter.MutationMiddleware()).Post("/", enrollmentHandler.Enroll)
				r.With(deps.RateLimiter.MutationMiddleware()).Delete("/", enrollmentHandler.Unenroll)
			})
		})
	})

	return r
}
