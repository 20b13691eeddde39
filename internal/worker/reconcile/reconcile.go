// Package reconcile は決済プロバイダーとの状態同期ジョブを提供する。
// Webhookを取りこぼした場合でも、未確定のチェックアウトをポーリングして反映する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBatchSize は1回の実行で同期するトランザクションの最大件数。
const DefaultBatchSize = 100

// Reconciler は未確定トランザクションを同期するインターフェース。
// payment.Serviceが実装する。
type Reconciler interface {
	Reconcile(ctx context.Context, maxAge time.Duration, limit int) (int, error)
}

// Job は決済の状態同期ジョブ。
type Job struct {
	reconciler Reconciler
	logger     *slog.Logger
	MaxAge     time.Duration // これより古いチェックアウトは対象外（期限切れジョブが扱う）
	BatchSize  int
}

// NewJob はJobを生成する。
func NewJob(reconciler Reconciler, maxAge time.Duration, logger *slog.Logger) *Job {
	return &Job{
		reconciler: reconciler,
		logger:     logger,
		MaxAge:     maxAge,
		BatchSize:  DefaultBatchSize,
	}
}

// Run は未確定のトランザクションをプロバイダーと同期する。
func (j *Job) Run(ctx context.Context) error {
	synced, err := j.reconciler.Reconcile(ctx, j.MaxAge, j.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to reconcile payments: %w", err)
	}

	j.logger.Info("payment reconciliation finished",
		slog.Int("synced", synced),
		slog.Duration("max_age", j.MaxAge),
	)
	return nil
}
