package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/tidwall/gjson"
)

// stripeMaxNetworkRetries はSDKが接続エラーや409/5xxで再試行する回数。
// 再試行にはSDKがIdempotency-Keyを付ける。
const stripeMaxNetworkRetries = 2

// CheckoutRequest はチェックアウトセッション作成のパラメータ。
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CheckoutSession は作成されたチェックアウトセッション。
type CheckoutSession struct {
	SessionID string
	URL       string
}

// CheckoutStatus はチェックアウトセッションの現在の状態。
type CheckoutStatus struct {
	Status        string // open, complete, expired
	PaymentStatus string // paid, unpaid, no_payment_required
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// StripeClient はstripe-goのCheckout Sessionクライアントを包むProvider実装。
type StripeClient struct {
	sessions session.Client
	logger   *slog.Logger
}

// NewStripeClient はStripeClientを生成する。
// baseURLはAPIのホスト（例: https://api.stripe.com）。末尾の/v1は取り除く。
// httpClientにはSSRFガード付きのクライアントを渡せる。
func NewStripeClient(httpClient *http.Client, baseURL, apiKey string, logger *slog.Logger) *StripeClient {
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        httpClient,
		URL:               stripe.String(base),
		MaxNetworkRetries: stripe.Int64(stripeMaxNetworkRetries),
		LeveledLogger:     slogLeveledLogger{logger: logger},
	})
	return &StripeClient{
		sessions: session.Client{B: backend, Key: apiKey},
		logger:   logger,
	}
}

// CreateCheckoutSession は単発支払いのチェックアウトセッションを作成する。
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.Description != "" {
		product.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(req.AmountCents),
				ProductData: product,
			},
		}},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, c.wrapError("create checkout session", err)
	}
	if s.ID == "" || s.URL == "" {
		return nil, errors.New("checkout session response is missing id or url")
	}
	return &CheckoutSession{SessionID: s.ID, URL: s.URL}, nil
}

// GetCheckoutStatus はチェックアウトセッションの状態を取得する。
func (c *StripeClient) GetCheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return nil, c.wrapError("get checkout session", err)
	}
	return checkoutStatusFromSession(s), nil
}

// wrapError はStripeのAPIエラーをログに残し、操作名を付けて返す。
func (c *StripeClient) wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		c.logger.Error("stripe returned error",
			slog.String("operation", op),
			slog.Int("http_status", se.HTTPStatusCode),
			slog.String("stripe_code", string(se.Code)),
			slog.String("stripe_error", se.Msg),
		)
	}
	return fmt.Errorf("stripe %s failed: %w", op, err)
}

// parseCheckoutStatus はCheckout SessionオブジェクトのJSONから状態を取り出す。
// Webhookイベントのdata.objectをSDKの型を経由せずに読むために使う。
func parseCheckoutStatus(obj gjson.Result) *CheckoutStatus {
	status := &CheckoutStatus{
		Status:        obj.Get("status").String(),
		PaymentStatus: obj.Get("payment_status").String(),
		AmountTotal:   obj.Get("amount_total").Int(),
		Currency:      obj.Get("currency").String(),
		Metadata:      make(map[string]string),
	}
	obj.Get("metadata").ForEach(func(key, value gjson.Result) bool {
		status.Metadata[key.String()] = value.String()
		return true
	})
	return status
}

// slogLeveledLogger はstripe-goのログをslogに流す。
type slogLeveledLogger struct {
	logger *slog.Logger
}

func (l slogLeveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

// Infof はリクエストごとに出力されるため、Debugに落とす。
func (l slogLeveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l slogLeveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l slogLeveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}
