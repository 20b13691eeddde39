package model

import "time"

// TransactionStatus は決済トランザクションの内部状態。
type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "initiated"
	TransactionOpen      TransactionStatus = "open"
	TransactionComplete  TransactionStatus = "complete"
	TransactionExpired   TransactionStatus = "expired"
)

// PaymentStatusPaid は決済プロバイダーが支払い完了を示す値。
const PaymentStatusPaid = "paid"

// PaymentStatusPending は支払い確認前の値。
const PaymentStatusPending = "pending"

// Package は購入可能なサブスクリプションパッケージ。
type Package struct {
	ID          string
	Name        string
	Description string
	AmountCents int64
	Currency    string
}

// PaymentTransaction はチェックアウトセッションごとの決済記録。
type PaymentTransaction struct {
	ID            string
	SessionID     string
	UserID        string
	PackageID     string
	AmountCents   int64
	Currency      string
	Status        TransactionStatus
	PaymentStatus string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPaid は支払い完了済みの場合にtrueを返す。
func (t *PaymentTransaction) IsPaid() bool {
	return t.PaymentStatus == PaymentStatusPaid
}
