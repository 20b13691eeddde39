package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ethergreen/internal/auth"
	"github.com/hitoshi/ethergreen/internal/middleware"
	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/oracle"
	"github.com/hitoshi/ethergreen/internal/payment"
	"github.com/hitoshi/ethergreen/internal/user"
)

// --- テストヘルパー ---

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをJSONとしてデコードする。
func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response body: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

// assertErrorCode はステータスコードとエラーコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.Result, error)
	meFn       func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return nil, nil
}

type mockUserService struct {
	updateProfileFn func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	soulprintFn     func(ctx context.Context, userID string) (*user.Soulprint, error)
	withdrawFn      func(ctx context.Context, userID string) error
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, update)
	}
	return nil, nil
}

func (m *mockUserService) Soulprint(ctx context.Context, userID string) (*user.Soulprint, error) {
	if m.soulprintFn != nil {
		return m.soulprintFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockOracleService struct {
	chatFn    func(ctx context.Context, userID, message, chatContext string) (*oracle.ChatReply, error)
	historyFn func(ctx context.Context, userID string) ([]*model.ChatMessage, error)
	speakFn   func(ctx context.Context, userID, text, voice string) (*oracle.SpeechReply, error)
	listenFn  func(ctx context.Context, filename string, audio []byte) (string, error)
}

func (m *mockOracleService) Chat(ctx context.Context, userID, message, chatContext string) (*oracle.ChatReply, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, userID, message, chatContext)
	}
	return &oracle.ChatReply{Oracle: oracle.Name}, nil
}

func (m *mockOracleService) History(ctx context.Context, userID string) ([]*model.ChatMessage, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOracleService) Speak(ctx context.Context, userID, text, voice string) (*oracle.SpeechReply, error) {
	if m.speakFn != nil {
		return m.speakFn(ctx, userID, text, voice)
	}
	return &oracle.SpeechReply{}, nil
}

func (m *mockOracleService) Listen(ctx context.Context, filename string, audio []byte) (string, error) {
	if m.listenFn != nil {
		return m.listenFn(ctx, filename, audio)
	}
	return "", nil
}

type mockTarotService struct {
	drawFn    func(ctx context.Context, userID, spreadType string, question *string) (*model.Reading, error)
	historyFn func(ctx context.Context, userID string) ([]*model.Reading, error)
	cards     []model.CardDefinition
}

func (m *mockTarotService) DrawReading(ctx context.Context, userID, spreadType string, question *string) (*model.Reading, error) {
	if m.drawFn != nil {
		return m.drawFn(ctx, userID, spreadType, question)
	}
	return &model.Reading{}, nil
}

func (m *mockTarotService) History(ctx context.Context, userID string) ([]*model.Reading, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTarotService) Cards() []model.CardDefinition {
	return m.cards
}

type mockBioService struct {
	scanFn    func(ctx context.Context, userID, audioBase64 string) (*model.BioScan, error)
	historyFn func(ctx context.Context, userID string) ([]*model.BioScan, error)
}

func (m *mockBioService) Scan(ctx context.Context, userID, audioBase64 string) (*model.BioScan, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, userID, audioBase64)
	}
	return &model.BioScan{}, nil
}

func (m *mockBioService) History(ctx context.Context, userID string) ([]*model.BioScan, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

type mockCommunityService struct {
	postFn func(ctx context.Context, userID, content, category string) (*model.CommunityPost, error)
	feedFn func(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error)
}

func (m *mockCommunityService) Post(ctx context.Context, userID, content, category string) (*model.CommunityPost, error) {
	if m.postFn != nil {
		return m.postFn(ctx, userID, content, category)
	}
	return &model.CommunityPost{}, nil
}

func (m *mockCommunityService) Feed(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error) {
	if m.feedFn != nil {
		return m.feedFn(ctx, category, limit)
	}
	return nil, nil
}

type mockPaymentService struct {
	checkoutFn func(ctx context.Context, userID, packageID, originURL string) (*payment.CheckoutSession, error)
	statusFn   func(ctx context.Context, userID, sessionID string) (*payment.StatusResult, error)
	webhookFn  func(ctx context.Context, payload []byte, signature string) error
}

func (m *mockPaymentService) Checkout(ctx context.Context, userID, packageID, originURL string) (*payment.CheckoutSession, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, userID, packageID, originURL)
	}
	return &payment.CheckoutSession{}, nil
}

func (m *mockPaymentService) Status(ctx context.Context, userID, sessionID string) (*payment.StatusResult, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID, sessionID)
	}
	return &payment.StatusResult{}, nil
}

func (m *mockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if m.webhookFn != nil {
		return m.webhookFn(ctx, payload, signature)
	}
	return nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- compile-time interface checks ---

var (
	_ AuthServiceInterface      = (*mockAuthService)(nil)
	_ UserServiceInterface      = (*mockUserService)(nil)
	_ OracleServiceInterface    = (*mockOracleService)(nil)
	_ TarotServiceInterface     = (*mockTarotService)(nil)
	_ BioServiceInterface       = (*mockBioService)(nil)
	_ CommunityServiceInterface = (*mockCommunityService)(nil)
	_ PaymentServiceInterface   = (*mockPaymentService)(nil)
)
