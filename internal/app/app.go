package app

import (
	"cmp"
	"context"
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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ethergreen/internal/config"
	"github.com/hitoshi/ethergreen/internal/database"
	"github.com/hitoshi/ethergreen/internal/handler"
	"github.com/hitoshi/ethergreen/internal/logger"
)

// Init は設定を読み込み、wへ出力するJSONロガーをデフォルトにする。
// 設定の読み込み中もInfoレベルでログを出せるよう、先に仮のロガーを設定する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はos.Args[1:]からサブコマンドを選んで実行する。
// healthcheckとversionは必須の環境変数がなくても動く。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHealthcheck:
		return runHealthcheck(cmp.Or(os.Getenv("SERVER_PORT"), "8080"))
	case CommandVersion:
		_, err := fmt.Fprintf(w, "%s %s\n", handler.AppName, handler.AppVersion)
		return err
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// shutdownTimeout は停止シグナル受信後、処理中のリクエストを待つ上限。
const shutdownTimeout = 30 * time.Second

// runServe はAPIサーバーを起動し、SIGINT/SIGTERMで停止する。
func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	srv, err := buildServer(cfg, db, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, slog.Default())
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	// 音声合成と会話はAIの応答を待つため、書き込みタイムアウトはOpenAIのタイムアウトより長くする
	return serveHTTP(ctx, &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.OpenAITimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	})
}

// serveHTTP はctxがキャンセルされるまでserverを動かし、その後グレースフルに停止する。
// リッスンに失敗した場合はそのエラーを返す。
func serveHTTP(ctx context.Context, server *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は決済の状態同期とチェックアウト期限切れのジョブを定期実行する。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	scheduler, err := buildScheduler(cfg, db, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.String("reconcile_schedule", cfg.ReconcileSchedule),
		slog.Duration("checkout_expiry", cfg.CheckoutExpiry),
	)
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はローカルの/api/healthを叩く。シェルのないdistrolessイメージのHEALTHCHECK用。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/api/health", port))
}

func checkHealth(target string) error {
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check %s returned status %d", target, resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
