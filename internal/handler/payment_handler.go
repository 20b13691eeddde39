package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/payment"
)

// maxWebhookBodySize はWebhookペイロードの最大サイズ。
const maxWebhookBodySize = 64 << 10

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	Checkout(ctx context.Context, userID, packageID, originURL string) (*payment.CheckoutSession, error)
	Status(ctx context.Context, userID, sessionID string) (*payment.StatusResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// PaymentHandler は決済のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type checkoutRequest struct {
	PackageID string `json:"package_id" validate:"required"`
	OriginURL string `json:"origin_url" validate:"required,url"`
}

type checkoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type paymentStatusResponse struct {
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

// Checkout はチェックアウトセッションを作成する。
// POST /api/payments/checkout
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Checkout(r.Context(), userID, req.PackageID, req.OriginURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{URL: session.URL, SessionID: session.SessionID})
}

// Status はチェックアウトセッションの状態を返す。
// GET /api/payments/status/{session_id}
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("session_id is required"))
		return
	}

	result, err := h.service.Status(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentStatusResponse{
		Status:        result.Status,
		PaymentStatus: result.PaymentStatus,
		Amount:        result.Amount,
		Currency:      result.Currency,
	})
}

// Webhook はStripeからのWebhookを受け取る。認証は署名で行う。
// POST /api/webhook/stripe
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}
