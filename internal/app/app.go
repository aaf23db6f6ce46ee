// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/plerouge/enrollman/internal/appstate"
	"github.com/plerouge/enrollman/internal/config"
	"github.com/plerouge/enrollman/internal/database"
	"github.com/plerouge/enrollman/internal/graph"
	"github.com/plerouge/enrollman/internal/handler"
	"github.com/plerouge/enrollman/internal/logger"
	"github.com/plerouge/enrollman/internal/metrics"
	"github.com/plerouge/enrollman/internal/middleware"
	"github.com/plerouge/enrollman/internal/reconcile"
	"github.com/plerouge/enrollman/internal/security"
	"github.com/plerouge/enrollman/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ストア接続は起動時には必須ではなく、STORE_URL/STORE_KEYが設定されている
// 場合のみ自動接続を試みる。失敗してもUIの接続フォームから再接続できるため
// 起動自体は継続する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. セキュリティサービス
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. Microsoft Graphクライアント
	provider := graph.NewOAuthProvider(graph.OAuthConfig{
		ClientID:     cfg.MSClientID,
		ClientSecret: cfg.MSClientSecret,
		TenantID:     cfg.MSTenantID,
		RedirectURL:  cfg.MSRedirectURL,
	})
	graphClient := graph.NewClient(
		ssrfGuard.NewSafeClient(cfg.GraphTimeout),
		slog.Default(), provider, collector,
	)

	// 4. ストアゲートウェイと画面状態
	gateway := store.NewGateway()
	state := appstate.NewState()

	// 5. 調停サービス
	reconciler := reconcile.NewService(gateway, graphClient, ssrfGuard, slog.Default(), collector)

	// 6. 起動時自動接続（設定されている場合のみ）
	if cfg.AutoConnectEnabled() {
		autoConnect(cfg, gateway, state, sanitizer)
	}

	// 7. レートリミッター（configはreq/min単位なのでreq/secに変換する）
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.MutationRate = rate.Limit(float64(cfg.RateLimitMutation) / 60.0)
	rlCfg.MutationBurst = cfg.RateLimitMutation
	limiter := middleware.NewRateLimiter(rlCfg)
	defer limiter.Stop()

	// 8. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		StatusRecorder:    collector,
		Logger:            slog.Default(),

		Directory: graphClient,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieSecure: cfg.CookieSecure,
		},

		Gateway:   gateway,
		State:     state,
		Sanitizer: sanitizer,

		Reconciler: reconciler,

		MetricsHandler: metrics.Handler(registry),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := gateway.Disconnect(); err != nil {
		slog.Warn("store disconnect failed", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// autoConnect は環境変数の接続情報でストアへの自動接続を試みる。
// 接続または初回データ取得に失敗した場合は未接続のまま起動を継続する。
func autoConnect(cfg *config.Config, gateway store.Gateway, state *appstate.State, sanitizer security.TextSanitizerService) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	state.SetStatus(appstate.StatusConnecting)

	if err := gateway.Connect(ctx, cfg.StoreURL, cfg.StoreKey); err != nil {
		state.SetStatus(appstate.StatusError)
		slog.Warn("auto-connect to store failed", slog.String("error", err.Error()))
		return
	}

	if ok, message := gateway.TestConnection(ctx); !ok {
		gateway.Disconnect()
		state.SetStatus(appstate.StatusError)
		slog.Warn("auto-connect probe failed", slog.String("message", message))
		return
	}

	if err := handler.ReloadStateData(ctx, gateway, state, sanitizer); err != nil {
		gateway.Disconnect()
		state.SetStatus(appstate.StatusError)
		slog.Warn("auto-connect initial load failed", slog.String("error", err.Error()))
		return
	}

	state.SetStatus(appstate.StatusConnected)
	slog.Info("store auto-connect established")
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required for migrate")
	}

	connURL, err := store.BuildConnURL(cfg.StoreURL, cfg.StoreKey)
	if err != nil {
		return fmt.Errorf("invalid store URL: %w", err)
	}

	slog.Info("running database migrations",
		slog.String("store_url", maskStoreURL(cfg.StoreURL)),
	)

	if err := database.RunMigrations(connURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskStoreURL はストアURLの認証情報をマスクする。
func maskStoreURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
