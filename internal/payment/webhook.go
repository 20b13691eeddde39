package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/tidwall/gjson"
)

// SignatureTolerance は署名タイムスタンプの許容誤差。
const SignatureTolerance = 5 * time.Minute

// EventCheckoutCompleted はチェックアウト完了イベントの種別。
const EventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrInvalidSignature はStripe-Signatureヘッダーの検証失敗を表す。
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSignatureExpired は署名のタイムスタンプが許容範囲外であることを表す。
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
)

// WebhookEvent は検証済みのWebhookイベント。
type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Metadata      map[string]string
}

// ParseWebhook はStripe-Signatureヘッダーを検証し、イベントを取り出す。
// 秘密鍵が未設定の場合は常に拒否する。イベントのAPIバージョンは問わない。
func ParseWebhook(payload []byte, header, secret string) (*WebhookEvent, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                SignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, classifyWebhookError(err)
	}

	we := &WebhookEvent{ID: event.ID, Type: string(event.Type), Metadata: map[string]string{}}
	if event.Data != nil {
		obj := gjson.ParseBytes(event.Data.Raw)
		status := parseCheckoutStatus(obj)
		we.SessionID = obj.Get("id").String()
		we.PaymentStatus = status.PaymentStatus
		we.Metadata = status.Metadata
	}
	return we, nil
}

// classifyWebhookError はstripe-goの検証エラーをパッケージのエラーに対応付ける。
func classifyWebhookError(err error) error {
	switch {
	case errors.Is(err, webhook.ErrTooOld):
		return fmt.Errorf("%w: %v", ErrSignatureExpired, err)
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}
}

// checkoutStatusFromSession はstripe-goのCheckoutSessionをCheckoutStatusに変換する。
func checkoutStatusFromSession(s *stripe.CheckoutSession) *CheckoutStatus {
	metadata := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		metadata[k] = v
	}
	return &CheckoutStatus{
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      metadata,
	}
}
