package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// --- モック定義 ---

type mockTxRepo struct {
	createFn          func(ctx context.Context, tx *model.PaymentTransaction) error
	findBySessionIDFn func(ctx context.Context, sessionID string) (*model.PaymentTransaction, error)
	updateStatusFn    func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error)
	listPendingFn     func(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error)
}

func (m *mockTxRepo) Create(ctx context.Context, tx *model.PaymentTransaction) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx)
	}
	return nil
}

func (m *mockTxRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
	if m.findBySessionIDFn != nil {
		return m.findBySessionIDFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockTxRepo) UpdateStatus(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, sessionID, status, paymentStatus)
	}
	return true, nil
}

func (m *mockTxRepo) ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, createdAfter, limit)
	}
	return nil, nil
}

type mockUserRepo struct {
	premium []string
	// setPremiumErrs は呼び出し順にSetPremiumが返すエラー
	setPremiumErrs []error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) { return nil, nil }

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) SaveNumerology(ctx context.Context, id string, profile *model.NumerologyProfile) error {
	return nil
}

func (m *mockUserRepo) SetPremium(ctx context.Context, id string, since time.Time) error {
	if len(m.setPremiumErrs) > 0 {
		err := m.setPremiumErrs[0]
		m.setPremiumErrs = m.setPremiumErrs[1:]
		if err != nil {
			return err
		}
	}
	m.premium = append(m.premium, id)
	return nil
}

// memTxRepo は状態を保持するトランザクションリポジトリ。
// UpdateStatusはPostgres実装と同じく、paidの行を更新しない。
type memTxRepo struct {
	mockTxRepo
	rows map[string]*model.PaymentTransaction
}

func newMemTxRepo(txs ...*model.PaymentTransaction) *memTxRepo {
	m := &memTxRepo{rows: make(map[string]*model.PaymentTransaction)}
	for _, tx := range txs {
		m.rows[tx.SessionID] = tx
	}
	return m
}

func (m *memTxRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
	tx, ok := m.rows[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *tx
	return &copied, nil
}

func (m *memTxRepo) UpdateStatus(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
	tx, ok := m.rows[sessionID]
	if !ok || tx.IsPaid() {
		return false, nil
	}
	tx.Status, tx.PaymentStatus = status, paymentStatus
	return true, nil
}

func (m *memTxRepo) ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error) {
	var pending []*model.PaymentTransaction
	for _, tx := range m.rows {
		if !tx.IsPaid() {
			copied := *tx
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error { return nil }

type mockProvider struct {
	createFn    func(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	getStatusFn func(ctx context.Context, sessionID string) (*CheckoutStatus, error)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return m.createFn(ctx, req)
}

func (m *mockProvider) GetCheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	return m.getStatusFn(ctx, sessionID)
}

type mockOrigins struct {
	err error
}

func (m *mockOrigins) ValidateOrigin(origin string, allowed []string) error { return m.err }

type mockRecorder struct {
	events []string
}

func (m *mockRecorder) RecordPaymentEvent(event string) { m.events = append(m.events, event) }

func (m *mockRecorder) count(event string) int {
	n := 0
	for _, e := range m.events {
		if e == event {
			n++
		}
	}
	return n
}

type fixture struct {
	txs      repository.PaymentRepository
	users    *mockUserRepo
	provider *mockProvider
	origins  *mockOrigins
	recorder *mockRecorder
}

func newFixture() *fixture {
	return &fixture{
		txs:      &mockTxRepo{},
		users:    &mockUserRepo{},
		provider: &mockProvider{},
		origins:  &mockOrigins{},
		recorder: &mockRecorder{},
	}
}

// mockTxs はfnフィールドを差し替えるためのモックを返す。
func (f *fixture) mockTxs() *mockTxRepo {
	return f.txs.(*mockTxRepo)
}

func (f *fixture) service() *Service {
	return NewService(f.txs, f.users, f.provider, f.origins, Config{
		AllowedOrigins: []string{"https://app.example.com"},
		WebhookSecret:  testWebhookSecret,
	}, f.recorder, newTestLogger())
}

func paidStatus() *CheckoutStatus {
	return &CheckoutStatus{Status: "complete", PaymentStatus: "paid", AmountTotal: 1999, Currency: "usd"}
}

// --- Checkout ---

func TestService_Checkout(t *testing.T) {
	f := newFixture()
	var gotReq CheckoutRequest
	f.provider.createFn = func(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
		gotReq = req
		return &CheckoutSession{SessionID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil
	}
	var saved *model.PaymentTransaction
	f.mockTxs().createFn = func(ctx context.Context, tx *model.PaymentTransaction) error {
		saved = tx
		return nil
	}

	session, err := f.service().Checkout(context.Background(), "user-1", "premium_monthly", "https://app.example.com/")
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if session.SessionID != "cs_1" {
		t.Errorf("SessionID = %q", session.SessionID)
	}
	if gotReq.AmountCents != 1999 || gotReq.Currency != "usd" {
		t.Errorf("unexpected amount: %+v", gotReq)
	}
	if gotReq.SuccessURL != "https://app.example.com/payment/success?session_id={CHECKOUT_SESSION_ID}" {
		t.Errorf("SuccessURL = %q", gotReq.SuccessURL)
	}
	if gotReq.CancelURL != "https://app.example.com/payment/cancel" {
		t.Errorf("CancelURL = %q", gotReq.CancelURL)
	}
	if gotReq.Metadata["user_id"] != "user-1" || gotReq.Metadata["package_id"] != "premium_monthly" {
		t.Errorf("unexpected metadata: %+v", gotReq.Metadata)
	}
	if saved == nil || saved.Status != model.TransactionInitiated || saved.PaymentStatus != "pending" || saved.SessionID != "cs_1" {
		t.Errorf("unexpected transaction: %+v", saved)
	}
	if f.recorder.count(EventCheckoutCreated) != 1 {
		t.Errorf("events = %v", f.recorder.events)
	}
}

func TestService_Checkout_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		packageID string
		originErr error
		wantCode  string
	}{
		{name: "存在しないパッケージ", packageID: "lifetime", wantCode: model.ErrCodeInvalidPackage},
		{name: "許可されていないオリジン", packageID: "premium_monthly", originErr: errors.New("not allowed"), wantCode: model.ErrCodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.origins.err = tt.originErr
			f.provider.createFn = func(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
				t.Error("provider should not be called")
				return nil, nil
			}

			_, err := f.service().Checkout(context.Background(), "user-1", tt.packageID, "https://evil.example.com")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
				t.Errorf("Checkout() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

// --- Status / SyncSession ---

func TestService_Status_PaidUpgradesUser(t *testing.T) {
	f := newFixture()
	f.mockTxs().findBySessionIDFn = func(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
		return &model.PaymentTransaction{SessionID: sessionID, UserID: "user-1", PaymentStatus: "pending"}, nil
	}
	var gotStatus model.TransactionStatus
	f.mockTxs().updateStatusFn = func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
		gotStatus = status
		return true, nil
	}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		return paidStatus(), nil
	}

	result, err := f.service().Status(context.Background(), "user-1", "cs_1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if result.Amount != 19.99 || result.PaymentStatus != "paid" || result.Status != "complete" {
		t.Errorf("unexpected result: %+v", result)
	}
	if gotStatus != model.TransactionComplete {
		t.Errorf("status = %q, want complete", gotStatus)
	}
	if len(f.users.premium) != 1 || f.users.premium[0] != "user-1" {
		t.Errorf("premium users = %v", f.users.premium)
	}
}

// 既にpaidのトランザクションは更新しない
func TestService_Status_AlreadyPaidIsIdempotent(t *testing.T) {
	f := newFixture()
	f.mockTxs().findBySessionIDFn = func(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
		return &model.PaymentTransaction{SessionID: sessionID, UserID: "user-1", PaymentStatus: "paid"}, nil
	}
	f.mockTxs().updateStatusFn = func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
		t.Error("UpdateStatus should not be called")
		return false, nil
	}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		return paidStatus(), nil
	}

	if _, err := f.service().Status(context.Background(), "user-1", "cs_1"); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(f.users.premium) != 0 {
		t.Errorf("SetPremium called: %v", f.users.premium)
	}
}

func TestService_Status_NotFound(t *testing.T) {
	tests := []struct {
		name string
		tx   *model.PaymentTransaction
	}{
		{name: "存在しないセッション", tx: nil},
		{name: "他のユーザーのセッション", tx: &model.PaymentTransaction{SessionID: "cs_1", UserID: "user-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.mockTxs().findBySessionIDFn = func(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
				return tt.tx, nil
			}

			_, err := f.service().Status(context.Background(), "user-1", "cs_1")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTransactionNotFound {
				t.Errorf("Status() error = %v, want TRANSACTION_NOT_FOUND", err)
			}
		})
	}
}

func TestService_SyncSession_Unpaid(t *testing.T) {
	f := newFixture()
	var gotStatus model.TransactionStatus
	var gotPayment string
	f.mockTxs().updateStatusFn = func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
		gotStatus, gotPayment = status, paymentStatus
		return true, nil
	}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		return &CheckoutStatus{Status: "open", PaymentStatus: "unpaid"}, nil
	}

	if _, err := f.service().SyncSession(context.Background(), &model.PaymentTransaction{SessionID: "cs_1", UserID: "user-1"}); err != nil {
		t.Fatalf("SyncSession() error = %v", err)
	}
	if gotStatus != model.TransactionOpen || gotPayment != "unpaid" {
		t.Errorf("UpdateStatus(%q, %q)", gotStatus, gotPayment)
	}
	if len(f.users.premium) != 0 {
		t.Errorf("SetPremium called: %v", f.users.premium)
	}
}

// 照会時のプレミアム化失敗はエラーにし、行を未確定のまま残す
func TestService_Status_PremiumFailureKeepsPending(t *testing.T) {
	f := newFixture()
	txs := newMemTxRepo(pendingTx())
	f.txs = txs
	f.users.setPremiumErrs = []error{errors.New("connection reset")}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		return paidStatus(), nil
	}
	svc := f.service()

	if _, err := svc.Status(context.Background(), "user-1", "cs_test_1"); err == nil {
		t.Fatal("Status() error = nil, want error")
	}
	if txs.rows["cs_test_1"].IsPaid() {
		t.Fatal("transaction should stay unpaid")
	}

	if _, err := svc.Status(context.Background(), "user-1", "cs_test_1"); err != nil {
		t.Fatalf("Status() retry error = %v", err)
	}
	if !txs.rows["cs_test_1"].IsPaid() || len(f.users.premium) != 1 {
		t.Errorf("row = %+v, premium users = %v", txs.rows["cs_test_1"], f.users.premium)
	}
}

// --- HandleWebhook ---

func pendingTx() *model.PaymentTransaction {
	return &model.PaymentTransaction{
		SessionID:     "cs_test_1",
		UserID:        "user-1",
		Status:        model.TransactionInitiated,
		PaymentStatus: model.PaymentStatusPending,
	}
}

func deliver(t *testing.T, svc *Service, payload string) error {
	t.Helper()
	body := []byte(payload)
	return svc.HandleWebhook(context.Background(), body, signedHeader(body, testWebhookSecret, time.Now()))
}

func TestService_HandleWebhook_CompletedMarksPremium(t *testing.T) {
	f := newFixture()
	f.mockTxs().findBySessionIDFn = func(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
		return pendingTx(), nil
	}
	var gotSession string
	f.mockTxs().updateStatusFn = func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
		gotSession = sessionID
		if status != model.TransactionComplete || paymentStatus != "paid" {
			t.Errorf("UpdateStatus(%q, %q)", status, paymentStatus)
		}
		return true, nil
	}

	if err := deliver(t, f.service(), completedEvent); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if gotSession != "cs_test_1" {
		t.Errorf("session = %q", gotSession)
	}
	if len(f.users.premium) != 1 || f.users.premium[0] != "user-1" {
		t.Errorf("premium users = %v", f.users.premium)
	}
	if f.recorder.count(EventWebhookReceived) != 1 || f.recorder.count(EventPaid) != 1 {
		t.Errorf("events = %v", f.recorder.events)
	}
}

// 反映済みのイベントを再送されてもユーザーと行を再更新しない
func TestService_HandleWebhook_Redelivery(t *testing.T) {
	f := newFixture()
	f.txs = newMemTxRepo(pendingTx())
	svc := f.service()

	for i := 0; i < 2; i++ {
		if err := deliver(t, svc, completedEvent); err != nil {
			t.Fatalf("HandleWebhook() #%d error = %v", i+1, err)
		}
	}
	if len(f.users.premium) != 1 {
		t.Errorf("premium users = %v, want one upgrade", f.users.premium)
	}
	if f.recorder.count(EventPaid) != 1 {
		t.Errorf("events = %v", f.recorder.events)
	}
}

// プレミアム化に失敗したイベントは行をpaidにせず、再送で反映される
func TestService_HandleWebhook_RetryAfterPremiumFailure(t *testing.T) {
	f := newFixture()
	txs := newMemTxRepo(pendingTx())
	f.txs = txs
	f.users.setPremiumErrs = []error{errors.New("connection reset")}
	svc := f.service()

	if err := deliver(t, svc, completedEvent); err == nil {
		t.Fatal("HandleWebhook() error = nil, want error so the event is redelivered")
	}
	if txs.rows["cs_test_1"].IsPaid() {
		t.Fatal("transaction should stay unpaid after premium failure")
	}
	if len(f.users.premium) != 0 {
		t.Errorf("premium users = %v", f.users.premium)
	}

	if err := deliver(t, svc, completedEvent); err != nil {
		t.Fatalf("HandleWebhook() redelivery error = %v", err)
	}
	if !txs.rows["cs_test_1"].IsPaid() {
		t.Error("transaction should be paid after redelivery")
	}
	if len(f.users.premium) != 1 || f.users.premium[0] != "user-1" {
		t.Errorf("premium users = %v", f.users.premium)
	}
}

// Webhookで失敗しても、未確定の行は同期ジョブが拾ってプレミアム化する
func TestService_Reconcile_RecoversPremiumFailure(t *testing.T) {
	f := newFixture()
	txs := newMemTxRepo(pendingTx())
	f.txs = txs
	f.users.setPremiumErrs = []error{errors.New("connection reset")}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		return paidStatus(), nil
	}
	svc := f.service()

	if err := deliver(t, svc, completedEvent); err == nil {
		t.Fatal("HandleWebhook() error = nil, want error")
	}

	synced, err := svc.Reconcile(context.Background(), 24*time.Hour, 50)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if synced != 1 || !txs.rows["cs_test_1"].IsPaid() {
		t.Errorf("synced = %d, row = %+v", synced, txs.rows["cs_test_1"])
	}
	if len(f.users.premium) != 1 || f.users.premium[0] != "user-1" {
		t.Errorf("premium users = %v", f.users.premium)
	}
}

// アップグレード対象はmetadataではなくトランザクションの所有者
func TestService_HandleWebhook_UsesTransactionOwner(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantPremium []string
	}{
		{
			name:        "metadataにuser_idなし",
			payload:     `{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","payment_status":"paid"}}}`,
			wantPremium: []string{"user-1"},
		},
		{
			name:        "metadataのuser_idが所有者と異なる",
			payload:     `{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","payment_status":"paid","metadata":{"user_id":"user-9"}}}}`,
			wantPremium: []string{"user-1"},
		},
		{
			name:    "存在しないセッション",
			payload: `{"id":"evt_5","type":"checkout.session.completed","data":{"object":{"id":"cs_unknown","payment_status":"paid","metadata":{"user_id":"user-1"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.txs = newMemTxRepo(pendingTx())

			if err := deliver(t, f.service(), tt.payload); err != nil {
				t.Fatalf("HandleWebhook() error = %v", err)
			}
			if len(f.users.premium) != len(tt.wantPremium) {
				t.Fatalf("premium users = %v, want %v", f.users.premium, tt.wantPremium)
			}
			for i, id := range tt.wantPremium {
				if f.users.premium[i] != id {
					t.Errorf("premium users = %v, want %v", f.users.premium, tt.wantPremium)
				}
			}
		})
	}
}

func TestService_HandleWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	f.mockTxs().updateStatusFn = func(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
		t.Error("UpdateStatus should not be called")
		return false, nil
	}

	if err := deliver(t, f.service(), `{"id":"evt_2","type":"checkout.session.expired","data":{"object":{"id":"cs_1","payment_status":"unpaid"}}}`); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
}

func TestService_HandleWebhook_InvalidSignature(t *testing.T) {
	f := newFixture()
	payload := []byte(completedEvent)

	err := f.service().HandleWebhook(context.Background(), payload, signedHeader(payload, "wrong", time.Now()))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidSignature {
		t.Errorf("HandleWebhook() error = %v, want INVALID_SIGNATURE", err)
	}
	if f.recorder.count(EventWebhookRejected) != 1 {
		t.Errorf("events = %v", f.recorder.events)
	}
}

// --- Reconcile ---

// 一部の同期に失敗しても残りを処理する
func TestService_Reconcile(t *testing.T) {
	f := newFixture()
	var gotLimit int
	f.mockTxs().listPendingFn = func(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error) {
		gotLimit = limit
		return []*model.PaymentTransaction{
			{SessionID: "cs_ok", UserID: "user-1"},
			{SessionID: "cs_fail", UserID: "user-2"},
			{SessionID: "cs_open", UserID: "user-3"},
		}, nil
	}
	f.provider.getStatusFn = func(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
		switch sessionID {
		case "cs_ok":
			return paidStatus(), nil
		case "cs_fail":
			return nil, errors.New("stripe unavailable")
		default:
			return &CheckoutStatus{Status: "open", PaymentStatus: "unpaid"}, nil
		}
	}

	synced, err := f.service().Reconcile(context.Background(), 24*time.Hour, 50)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if synced != 2 {
		t.Errorf("synced = %d, want 2", synced)
	}
	if gotLimit != 50 {
		t.Errorf("limit = %d, want 50", gotLimit)
	}
	if len(f.users.premium) != 1 || f.users.premium[0] != "user-1" {
		t.Errorf("premium users = %v", f.users.premium)
	}
	if f.recorder.count(EventReconcileFailure) != 1 {
		t.Errorf("events = %v", f.recorder.events)
	}
}

func TestLookupPackage(t *testing.T) {
	pkg, ok := LookupPackage("premium_monthly")
	if !ok || pkg.AmountCents != 1999 || pkg.Name != "Premium Monthly" {
		t.Errorf("LookupPackage() = %+v, %v", pkg, ok)
	}
	if _, ok := LookupPackage("unknown"); ok {
		t.Error("unknown package should not be found")
	}
}
