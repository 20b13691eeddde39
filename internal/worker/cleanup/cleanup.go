// Package cleanup は放置されたチェックアウトを期限切れにするジョブを提供する。
// 支払いが確定しないまま保持期間を超えたトランザクションをexpiredに更新する。
// 支払い済みのトランザクションは対象外。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultExpiry はチェックアウトを期限切れとみなすまでの期間。
const DefaultExpiry = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExpiryJob は未確定のまま放置されたチェックアウトを期限切れにするジョブ。
// 冪等であり、対象がない場合もエラーにならない。
type ExpiryJob struct {
	db     Executor
	logger *slog.Logger
	Expiry time.Duration
}

// NewExpiryJob は新しいExpiryJobを生成する。expiryが0以下ならDefaultExpiryを使う。
func NewExpiryJob(db Executor, expiry time.Duration, logger *slog.Logger) *ExpiryJob {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &ExpiryJob{
		db:     db,
		logger: logger,
		Expiry: expiry,
	}
}

// Run はcreated_atがExpiryより古い未払いトランザクションをexpiredに更新する。
func (j *ExpiryJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.Expiry.Seconds()))

	query := `UPDATE payment_transactions
		SET status = 'expired', updated_at = now()
		WHERE payment_status <> 'paid'
		  AND status IN ('initiated', 'open')
		  AND created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("チェックアウト期限切れジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("expiry", j.Expiry),
		)
		return fmt.Errorf("チェックアウトの期限切れ処理に失敗: %w", err)
	}

	expiredCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	j.logger.Info("チェックアウト期限切れジョブが完了しました",
		slog.Int64("expired_count", expiredCount),
		slog.Duration("expiry", j.Expiry),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
