package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した決済トランザクションリポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

const paymentColumns = `id, session_id, user_id, package_id, amount_cents, currency, status,
	payment_status, created_at, updated_at`

func scanPayment(row rowScanner) (*model.PaymentTransaction, error) {
	tx := &model.PaymentTransaction{}
	var userID sql.NullString
	var status string
	if err := row.Scan(
		&tx.ID, &tx.SessionID, &userID, &tx.PackageID, &tx.AmountCents, &tx.Currency,
		&status, &tx.PaymentStatus, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.UserID = userID.String
	tx.Status = model.TransactionStatus(status)
	return tx, nil
}

// Create はトランザクションを保存する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, tx *model.PaymentTransaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_transactions (id, session_id, user_id, package_id, amount_cents, currency,
			status, payment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.SessionID, nullString(tx.UserID), tx.PackageID, tx.AmountCents, tx.Currency,
		string(tx.Status), tx.PaymentStatus, tx.CreatedAt, tx.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	return nil
}

// FindBySessionID はチェックアウトセッションIDでトランザクションを取得する。
func (r *PostgresPaymentRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentTransaction, error) {
	tx, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_transactions WHERE session_id = $1`,
		sessionID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment transaction: %w", err)
	}
	return tx, nil
}

// UpdateStatus はトランザクションの状態を更新する。
// 既にpaidのトランザクションは更新しない。更新した場合にtrueを返す。
func (r *PostgresPaymentRepo) UpdateStatus(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET status = $1, payment_status = $2, updated_at = now()
		 WHERE session_id = $3 AND payment_status <> 'paid'`,
		string(status), paymentStatus, sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update payment transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListPending は支払い未確定かつcreatedAfter以降に作成されたトランザクションを古い順に返す。
func (r *PostgresPaymentRepo) ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payment_transactions
		 WHERE payment_status <> 'paid' AND status IN ('initiated', 'open') AND created_at >= $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		createdAfter, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	txs := make([]*model.PaymentTransaction, 0)
	for rows.Next() {
		tx, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment transactions: %w", err)
	}
	return txs, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
