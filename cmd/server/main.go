// Package main はAPIサーバーのエントリポイント。
// 起動時にマイグレーションを最新まで適用してからサーバーを開始する。
// マイグレーションに失敗した場合はサーバーを起動せず終了する。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"metricflow/config"
	"metricflow/internal/handler"
	"metricflow/internal/infra"
	"metricflow/internal/repository"
	"metricflow/internal/usecase"
)

// defaultMigrationsDir はマイグレーションファイルの既定ディレクトリ。
const defaultMigrationsDir = "migrations"

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, infra.ParseLogLevel(cfg.LogLevel))

	// 必須設定の確認
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	if cfg.SecretKey == "" {
		slog.Error("SECRET_KEY is not set")
		os.Exit(1)
	}

	// DB初期化
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// マイグレーションを最新まで適用する。
	// 失敗した場合はリクエストを受け付けずに終了する。
	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = defaultMigrationsDir
	}
	migrationRepo := repository.NewMigrationRepository(db)
	migrationSvc := usecase.NewMigrationService(migrationRepo, db, migrationsDir)
	applied, err := migrationSvc.ApplyMigrations(ctx)
	if err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	if applied > 0 {
		slog.Info("migrations applied", "count", applied)
	} else {
		slog.Info("database schema is up to date")
	}

	// DI
	orgRepo := repository.NewOrganizationRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	kpiRepo := repository.NewKPIRepository(db)
	entryRepo := repository.NewEntryRepository(db)
	insightRepo := repository.NewInsightRepository(db)
	roomRepo := repository.NewRoomRepository(db)

	authSvc := usecase.NewAuthService(userRepo, orgRepo, tokenRepo, cfg)
	kpiSvc := usecase.NewKPIService(kpiRepo, entryRepo)
	entrySvc := usecase.NewEntryService(entryRepo, kpiRepo)
	statsSvc := usecase.NewStatisticsService(kpiRepo, entryRepo)
	insightSvc := usecase.NewInsightService(insightRepo, kpiRepo, entryRepo, statsSvc)
	roomSvc := usecase.NewRoomService(roomRepo, kpiRepo, userRepo)
	userSvc := usecase.NewUserService(userRepo)

	handlers := &handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		KPI:     handler.NewKPIHandler(kpiSvc, statsSvc),
		Entry:   handler.NewEntryHandler(entrySvc),
		Insight: handler.NewInsightHandler(insightSvc),
		Room:    handler.NewRoomHandler(roomSvc),
		User:    handler.NewUserHandler(userSvc),
	}
	router := handler.NewRouter(handlers, authSvc, db, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "addr", cfg.Addr())
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
