// Package worker はバックグラウンドジョブのスケジューリングを提供する。
// 決済の状態同期と期限切れチェックアウトの整理をcron式で定期実行する。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc は定期実行するジョブの本体。
type JobFunc func(ctx context.Context) error

type registeredJob struct {
	name string
	run  JobFunc
}

// Scheduler はcron式でジョブを定期実行する。
// 同じジョブの実行が重なった場合は後続をスキップし、パニックは回復してログに残す。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   []registeredJob

	// ctx はStartで設定され、各ジョブの実行に渡される。
	ctx context.Context
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(logger *slog.Logger) *Scheduler {
	cl := &cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Register はジョブをスケジュールに登録する。Startより前に呼ぶこと。
// specは "@every 5m" や "0 3 * * *" などのcron式。
func (s *Scheduler) Register(name, spec string, run JobFunc) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runJob(s.ctx, name, run) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.jobs = append(s.jobs, registeredJob{name: name, run: run})
	return nil
}

// JobNames は登録済みジョブの名前を登録順に返す。
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.name)
	}
	return names
}

// Start は登録済みジョブを起動直後に1回ずつ実行してからスケジュールを開始する。
// コンテキストがキャンセルされるまでブロックし、実行中のジョブの完了を待って戻る。
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx

	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))

	// 起動直後に1回実行
	s.RunAll(ctx)

	s.cron.Start()
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunAll は登録済みジョブをすべて1回ずつ実行する。
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, job := range s.jobs {
		s.runJob(ctx, job.name, job.run)
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, run JobFunc) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := run(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("job completed",
		slog.String("job", name),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// cronLogger はcron.Loggerをslogに橋渡しする。
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cronの内部ログ（wake, run等）は冗長なのでDebugに落とす
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{slog.String("error", err.Error())}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
