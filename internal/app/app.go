// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitpress/internal/config"
	"github.com/hitoshi/fitpress/internal/database"
	"github.com/hitoshi/fitpress/internal/logger"
	"github.com/hitoshi/fitpress/internal/worker"
)

// shutdownTimeout はHTTPサーバーのグレースフルシャットダウン待ち時間。
const shutdownTimeout = 30 * time.Second

// jobWriteTimeout はジョブ起動エンドポイントの応答待ちを許容する時間。
// ダイジェスト配信は購読者数×送信間隔の時間がかかる。
const jobWriteTimeout = 30 * time.Minute

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	l := logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, l, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はアプリケーションのメインエントリーポイント。
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

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd == CommandMigrate {
		var sub []string
		if len(args) > 1 {
			sub = args[1:]
		}
		return runMigrate(cfg, log, sub)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established")

	c, err := buildComponents(cfg, db, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, c, c.router(cfg, db, prometheus.DefaultGatherer, log), log)
	case CommandIngest:
		report, err := c.ingest.Run(ctx)
		return logSummary(log, report, err)
	case CommandDigest:
		report, err := c.runDigest(ctx)
		return logSummary(log, report, err)
	case CommandCleanup:
		report, err := c.cleanup.Run(ctx)
		return logSummary(log, report, err)
	default:
		return serveHTTP(ctx, cfg, c.router(cfg, db, prometheus.DefaultGatherer, log), log)
	}
}

type summarizer interface {
	Summary() string
}

// logSummary は1回実行したジョブの要約をログに出力する。
func logSummary[R summarizer](log *slog.Logger, report R, err error) error {
	if err != nil {
		return err
	}
	log.Info(report.Summary())
	return nil
}

// serveHTTP はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func serveHTTP(ctx context.Context, cfg *config.Config, h http.Handler, log *slog.Logger) error {
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: jobWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 取り込み、クリーンアップ、ダイジェスト配信をそれぞれの間隔で実行し、
// 同じプロセスで/healthと/metrics、ジョブ起動エンドポイントを公開する。
func runWorker(ctx context.Context, cfg *config.Config, c *components, h http.Handler, log *slog.Logger) error {
	log.Info("worker starting",
		slog.Duration("ingest_interval", cfg.IngestInterval),
		slog.Duration("digest_interval", cfg.DigestInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("categories", len(c.registry.Categories())),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// HTTPサーバーが起動できない場合はスケジューラも止める
	srvErr := make(chan error, 1)
	go func() {
		err := serveHTTP(ctx, cfg, h, log)
		if err != nil {
			cancel()
		}
		srvErr <- err
	}()

	worker.NewScheduler(log, c.schedules(cfg)...).Start(ctx)

	if err := <-srvErr; err != nil {
		return err
	}
	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
//
//	migrate            未適用のマイグレーションをすべて適用
//	migrate down [n]   n件（既定1件）ロールバック
//	migrate version    現在のバージョンを表示
func runMigrate(cfg *config.Config, log *slog.Logger, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "up":
		log.Info("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("database migrations completed successfully")
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Info("database migrations rolled back", slog.Int("steps", steps))
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		log.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		return fmt.Errorf("unknown migrate action: %q", action)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
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
