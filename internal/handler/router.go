package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ethergreen/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	TokenVerifier      middleware.TokenVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	StatusRecorder     middleware.StatusRecorder // nilの場合はHTTPステータスを記録しない
	MetricsHandler     http.Handler              // nilの場合は/metricsを公開しない

	HealthChecker Pinger

	AuthService      AuthServiceInterface
	UserService      UserServiceInterface
	OracleService    OracleServiceInterface
	TarotService     TarotServiceInterface
	BioService       BioServiceInterface
	CommunityService CommunityServiceInterface
	PaymentService   PaymentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  → [Auth → RateLimit(General)] 認証が必要なルート
//	  → [RateLimit(Oracle)] AIプロバイダーを呼び出すルート
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	oracleHandler := NewOracleHandler(deps.OracleService)
	tarotHandler := NewTarotHandler(deps.TarotService)
	bioHandler := NewBioHandler(deps.BioService)
	communityHandler := NewCommunityHandler(deps.CommunityService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/tarot/cards", tarotHandler.Cards)
		r.Get("/community/feed", communityHandler.Feed)
		r.Get("/database/search", SearchCatalog)
		// Webhookは署名で認証する
		r.Post("/webhook/stripe", paymentHandler.Webhook)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Auth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/auth/me", authHandler.Me)

			r.Put("/profile", userHandler.UpdateProfile)
			r.Get("/profile/soulprint", userHandler.Soulprint)
			r.Delete("/users/me", userHandler.Withdraw)

			r.Get("/oracle/history", oracleHandler.History)
			r.Get("/tarot/history", tarotHandler.History)
			r.Get("/bio/history", bioHandler.History)

			r.Post("/community/post", communityHandler.Post)

			r.Post("/payments/checkout", paymentHandler.Checkout)
			r.Get("/payments/status/{session_id}", paymentHandler.Status)

			// AIプロバイダーを呼び出すルートには専用のレート制限を追加する
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.OracleMiddleware())

				r.Post("/oracle/chat", oracleHandler.Chat)
				r.Post("/oracle/speak", oracleHandler.Speak)
				r.Post("/oracle/listen", oracleHandler.Listen)
				r.Post("/tarot/draw", tarotHandler.Draw)
				r.Post("/bio/scan", bioHandler.Scan)
			})
		})
	})

	return r
}
