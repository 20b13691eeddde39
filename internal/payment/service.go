// Package payment はプレミアム会員の決済（Stripe Checkout）を扱う。
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// 決済メトリクスのイベント名
const (
	EventCheckoutCreated  = "checkout_created"
	EventPaid             = "paid"
	EventWebhookReceived  = "webhook_received"
	EventWebhookRejected  = "webhook_rejected"
	EventReconcileFailure = "reconcile_failure"
)

// packages は購入可能なパッケージ。
var packages = map[string]model.Package{
	"premium_monthly": {
		ID:          "premium_monthly",
		Name:        "Premium Monthly",
		Description: "Unlimited tarot, voice meditations, AI coaching",
		AmountCents: 1999,
		Currency:    "usd",
	},
}

// LookupPackage はパッケージIDからパッケージを返す。
func LookupPackage(id string) (model.Package, bool) {
	p, ok := packages[id]
	return p, ok
}

// Provider は決済プロバイダーのインターフェース。StripeClientが実装する。
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error)
}

// OriginValidator はチェックアウトの戻り先オリジンを検証するインターフェース。
// security.SSRFGuardServiceの部分集合。
type OriginValidator interface {
	ValidateOrigin(origin string, allowed []string) error
}

// EventRecorder は決済イベントのメトリクスを記録するインターフェース。
type EventRecorder interface {
	RecordPaymentEvent(event string)
}

// StatusResult はステータス照会の結果。Amountは主通貨単位。
type StatusResult struct {
	Status        string
	PaymentStatus string
	Amount        float64
	Currency      string
}

// Service は決済のユースケースを提供する。
type Service struct {
	txRepo         repository.PaymentRepository
	userRepo       repository.UserRepository
	provider       Provider
	origins        OriginValidator
	allowedOrigins []string
	webhookSecret  string
	recorder       EventRecorder
	logger         *slog.Logger
	now            func() time.Time
}

// Config は決済サービスの設定。
type Config struct {
	AllowedOrigins []string
	WebhookSecret  string
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	txRepo repository.PaymentRepository,
	userRepo repository.UserRepository,
	provider Provider,
	origins OriginValidator,
	cfg Config,
	recorder EventRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		txRepo:         txRepo,
		userRepo:       userRepo,
		provider:       provider,
		origins:        origins,
		allowedOrigins: cfg.AllowedOrigins,
		webhookSecret:  cfg.WebhookSecret,
		recorder:       recorder,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Service) record(event string) {
	if s.recorder != nil {
		s.recorder.RecordPaymentEvent(event)
	}
}

// Checkout はチェックアウトセッションを作成し、トランザクションをinitiatedで保存する。
func (s *Service) Checkout(ctx context.Context, userID, packageID, originURL string) (*CheckoutSession, error) {
	pkg, ok := LookupPackage(packageID)
	if !ok {
		return nil, model.NewInvalidPackageError(packageID)
	}

	if err := s.origins.ValidateOrigin(originURL, s.allowedOrigins); err != nil {
		s.logger.Warn("checkout origin rejected",
			slog.String("user_id", userID),
			slog.String("origin", originURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidURLError("origin_url is not an allowed origin")
	}
	origin := strings.TrimSuffix(originURL, "/")

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		AmountCents: pkg.AmountCents,
		Currency:    pkg.Currency,
		ProductName: pkg.Name,
		Description: pkg.Description,
		SuccessURL:  origin + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   origin + "/payment/cancel",
		Metadata: map[string]string{
			"user_id":    userID,
			"package_id": pkg.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	now := s.now().UTC()
	tx := &model.PaymentTransaction{
		ID:            uuid.New().String(),
		SessionID:     session.SessionID,
		UserID:        userID,
		PackageID:     pkg.ID,
		AmountCents:   pkg.AmountCents,
		Currency:      pkg.Currency,
		Status:        model.TransactionInitiated,
		PaymentStatus: model.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save payment transaction: %w", err)
	}

	s.record(EventCheckoutCreated)
	s.logger.Info("checkout session created",
		slog.String("user_id", userID),
		slog.String("session_id", session.SessionID),
		slog.String("package_id", pkg.ID),
	)
	return session, nil
}

// Status はプロバイダーに状態を問い合わせ、トランザクションとユーザーに反映する。
// 他のユーザーのセッションは存在しないものとして扱う。
func (s *Service) Status(ctx context.Context, userID, sessionID string) (*StatusResult, error) {
	tx, err := s.txRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.UserID != userID {
		return nil, model.NewTransactionNotFoundError(sessionID)
	}

	status, err := s.SyncSession(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:        status.Status,
		PaymentStatus: status.PaymentStatus,
		Amount:        float64(status.AmountTotal) / 100,
		Currency:      status.Currency,
	}, nil
}

// SyncSession はプロバイダーの状態をトランザクションに反映する。既にpaidのトランザクションは変更しない。
// 支払い済みの場合はユーザーをプレミアムにしてからトランザクションをpaidにする。
// プレミアム化に失敗した場合はトランザクションを未確定のまま残すため、次の照会や同期で再試行される。
func (s *Service) SyncSession(ctx context.Context, tx *model.PaymentTransaction) (*CheckoutStatus, error) {
	status, err := s.provider.GetCheckoutStatus(ctx, tx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout status: %w", err)
	}
	if tx.IsPaid() {
		return status, nil
	}

	if err := s.applyStatus(ctx, tx, toTransactionStatus(status.Status), status.PaymentStatus); err != nil {
		return nil, err
	}
	return status, nil
}

// applyStatus はトランザクションの状態を更新する。
// paidへの遷移ではSetPremium（冪等）を先に行い、その後に行をpaidにする。
func (s *Service) applyStatus(ctx context.Context, tx *model.PaymentTransaction, status model.TransactionStatus, paymentStatus string) error {
	paid := paymentStatus == model.PaymentStatusPaid
	if paid {
		if err := s.grantPremium(ctx, tx.UserID, tx.SessionID); err != nil {
			return err
		}
	}

	updated, err := s.txRepo.UpdateStatus(ctx, tx.SessionID, status, paymentStatus)
	if err != nil {
		return err
	}
	if paid && updated {
		s.record(EventPaid)
		s.logger.Info("payment completed",
			slog.String("user_id", tx.UserID),
			slog.String("session_id", tx.SessionID),
		)
	}
	return nil
}

// HandleWebhook はWebhookを検証し、チェックアウト完了イベントを反映する。
// 署名が不正な場合はINVALID_SIGNATUREエラーを返す。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := ParseWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		s.record(EventWebhookRejected)
		s.logger.Warn("webhook rejected", slog.String("error", err.Error()))
		if errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrSignatureExpired) {
			return model.NewInvalidSignatureError()
		}
		return model.NewInvalidRequestError()
	}
	s.record(EventWebhookReceived)

	if event.Type != EventCheckoutCompleted || event.PaymentStatus != model.PaymentStatusPaid {
		s.logger.Info("webhook ignored",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		return nil
	}

	// アップグレード対象はイベントのmetadataではなく保存済みトランザクションの所有者
	tx, err := s.txRepo.FindBySessionID(ctx, event.SessionID)
	if err != nil {
		return err
	}
	if tx == nil {
		s.logger.Warn("webhook for unknown checkout session",
			slog.String("event_id", event.ID),
			slog.String("session_id", event.SessionID),
		)
		return nil
	}
	if tx.IsPaid() {
		return nil
	}
	if metaUser := event.Metadata["user_id"]; metaUser != "" && metaUser != tx.UserID {
		s.logger.Warn("webhook metadata user differs from transaction owner",
			slog.String("session_id", tx.SessionID),
			slog.String("owner_id", tx.UserID),
			slog.String("metadata_user_id", metaUser),
		)
	}

	return s.applyStatus(ctx, tx, model.TransactionComplete, model.PaymentStatusPaid)
}

// Reconcile はmaxAge以内に作成された未確定のトランザクションをプロバイダーと同期する。
// 個々の同期失敗はログに記録して続行し、同期できた件数を返す。
func (s *Service) Reconcile(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	pending, err := s.txRepo.ListPending(ctx, s.now().Add(-maxAge), limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if _, err := s.SyncSession(ctx, tx); err != nil {
			s.record(EventReconcileFailure)
			s.logger.Warn("failed to reconcile payment",
				slog.String("session_id", tx.SessionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		synced++
	}
	return synced, nil
}

// grantPremium はユーザーをプレミアムにする。premium_sinceは初回のみ設定されるため、再試行してよい。
func (s *Service) grantPremium(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return fmt.Errorf("paid session %s has no owner", sessionID)
	}
	if err := s.userRepo.SetPremium(ctx, userID, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}
	return nil
}

func toTransactionStatus(providerStatus string) model.TransactionStatus {
	switch providerStatus {
	case "complete":
		return model.TransactionComplete
	case "expired":
		return model.TransactionExpired
	default:
		return model.TransactionOpen
	}
}
