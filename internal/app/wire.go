package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ethergreen/internal/auth"
	"github.com/hitoshi/ethergreen/internal/bio"
	"github.com/hitoshi/ethergreen/internal/community"
	"github.com/hitoshi/ethergreen/internal/config"
	"github.com/hitoshi/ethergreen/internal/handler"
	"github.com/hitoshi/ethergreen/internal/metrics"
	"github.com/hitoshi/ethergreen/internal/middleware"
	"github.com/hitoshi/ethergreen/internal/oracle"
	"github.com/hitoshi/ethergreen/internal/payment"
	"github.com/hitoshi/ethergreen/internal/random"
	"github.com/hitoshi/ethergreen/internal/repository"
	"github.com/hitoshi/ethergreen/internal/security"
	"github.com/hitoshi/ethergreen/internal/tarot"
	"github.com/hitoshi/ethergreen/internal/user"
	"github.com/hitoshi/ethergreen/internal/worker"
	"github.com/hitoshi/ethergreen/internal/worker/cleanup"
	"github.com/hitoshi/ethergreen/internal/worker/reconcile"
)

// stripeTimeout はStripe API呼び出しのタイムアウト。
const stripeTimeout = 30 * time.Second

// server はAPIサーバーモードで組み立てた依存関係。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// newOutboundClient は外部プロバイダ向けのHTTPクライアントを生成する。
// SSRF防止が有効な場合はsafeurlのクライアントを使う。
func newOutboundClient(cfg *config.Config, guard security.SSRFGuardService, timeout time.Duration) *http.Client {
	if cfg.OutboundSSRFGuard {
		return guard.NewSafeClient(timeout)
	}
	return &http.Client{Timeout: timeout}
}

// validateProviderURLs は起動時にプロバイダのベースURLを検証する。
func validateProviderURLs(cfg *config.Config, guard security.SSRFGuardService) error {
	if !cfg.OutboundSSRFGuard {
		return nil
	}
	for name, u := range map[string]string{
		"OPENAI_BASE_URL": cfg.OpenAIBaseURL,
		"STRIPE_BASE_URL": cfg.StripeBaseURL,
	} {
		if err := guard.ValidateURL(u); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// newPaymentService はStripeクライアントと決済サービスを組み立てる。
// recorderはnilでもよい。ワーカーからも使用する。
func newPaymentService(
	cfg *config.Config,
	db *sql.DB,
	guard security.SSRFGuardService,
	recorder payment.EventRecorder,
	logger *slog.Logger,
) *payment.Service {
	stripe := payment.NewStripeClient(
		newOutboundClient(cfg, guard, stripeTimeout),
		cfg.StripeBaseURL, cfg.StripeAPIKey, logger,
	)
	return payment.NewService(
		repository.NewPostgresPaymentRepo(db),
		repository.NewPostgresUserRepo(db),
		stripe,
		guard,
		payment.Config{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			WebhookSecret:  cfg.StripeWebhookSecret,
		},
		recorder,
		logger,
	)
}

// buildServer はリポジトリ・サービス・ハンドラーを組み立てる。
// regにはPrometheusメトリクスを登録し、gathererから/metricsを公開する。
func buildServer(
	cfg *config.Config,
	db *sql.DB,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (*server, error) {
	// 1. セキュリティ
	guard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	if err := validateProviderURLs(cfg, guard); err != nil {
		return nil, err
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set; all webhooks will be rejected")
	}

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	readingRepo := repository.NewPostgresReadingRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)
	scanRepo := repository.NewPostgresBioScanRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)

	// 4. 外部プロバイダ
	oracleClient := oracle.NewClient(
		newOutboundClient(cfg, guard, cfg.OpenAITimeout),
		oracle.Config{
			BaseURL:   cfg.OpenAIBaseURL,
			APIKey:    cfg.OpenAIAPIKey,
			ChatModel: cfg.OpenAIChatModel,
			TTSModel:  cfg.OpenAITTSModel,
			STTModel:  cfg.OpenAISTTModel,
		},
		collector,
		logger,
	)

	// 5. ドメインサービス
	rng := random.NewSource()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(userRepo, tokens)
	userService := user.NewService(userRepo, sanitizer, rng, logger)
	oracleService := oracle.NewService(
		chatRepo, userRepo, oracleClient, oracleClient, oracleClient,
		cfg.OpenAITTSVoice, logger,
	)
	tarotService := tarot.NewService(
		readingRepo, userRepo,
		tarot.NewAssembler(oracleClient, collector, logger),
		rng, collector,
	)
	bioService := bio.NewService(scanRepo, oracleClient, oracleClient, rng, logger)
	communityService := community.NewService(postRepo, userRepo, sanitizer, logger)
	paymentService := newPaymentService(cfg, db, guard, collector, logger)

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitOracle),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             logger,
		TokenVerifier:      authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		StatusRecorder:     collector,
		MetricsHandler:     metrics.Handler(gatherer),
		HealthChecker:      db,

		AuthService:      authService,
		UserService:      userService,
		OracleService:    oracleService,
		TarotService:     tarotService,
		BioService:       bioService,
		CommunityService: communityService,
		PaymentService:   paymentService,
	})

	return &server{handler: router, rateLimiter: rateLimiter}, nil
}

// buildScheduler はワーカーのジョブを登録したスケジューラを組み立てる。
// 決済の状態同期はRECONCILE_SCHEDULE、チェックアウトの期限切れ処理は日次で実行する。
func buildScheduler(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*worker.Scheduler, error) {
	guard := security.NewSSRFGuard()
	if err := validateProviderURLs(cfg, guard); err != nil {
		return nil, err
	}

	paymentService := newPaymentService(cfg, db, guard, nil, logger)
	reconcileJob := reconcile.NewJob(paymentService, cfg.CheckoutExpiry, logger)
	expiryJob := cleanup.NewExpiryJob(db, cfg.CheckoutExpiry, logger)

	scheduler := worker.NewScheduler(logger)
	if err := scheduler.Register("payment_reconcile", cfg.ReconcileSchedule, reconcileJob.Run); err != nil {
		return nil, err
	}
	if err := scheduler.Register("checkout_expiry", "@daily", expiryJob.Run); err != nil {
		return nil, err
	}
	return scheduler, nil
}
