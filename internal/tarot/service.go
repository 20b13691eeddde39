package tarot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/random"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// HistoryLimit はリーディング履歴の最大取得件数。
const HistoryLimit = 20

// DrawRecorder は抽選回数を記録するインターフェース。
type DrawRecorder interface {
	RecordTarotDraw(spreadType string)
}

// Service はタロットリーディングのサービス層。
type Service struct {
	readingRepo repository.ReadingRepository
	userRepo    repository.UserRepository
	assembler   *Assembler
	rng         random.Source
	recorder    DrawRecorder
	deck        []model.CardDefinition
	now         func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	readingRepo repository.ReadingRepository,
	userRepo repository.UserRepository,
	assembler *Assembler,
	rng random.Source,
	recorder DrawRecorder,
) *Service {
	return &Service{
		readingRepo: readingRepo,
		userRepo:    userRepo,
		assembler:   assembler,
		rng:         rng,
		recorder:    recorder,
		deck:        MajorArcana(),
		now:         time.Now,
	}
}

// DrawReading はカードを抽選し、解釈文を付けてリーディングを保存する。
// spreadTypeが空の場合はsingleとして扱う。
// 解釈文の生成失敗ではエラーにならない（フォールバック文を使う）。
func (s *Service) DrawReading(ctx context.Context, userID, spreadType string, question *string) (*model.Reading, error) {
	if spreadType == "" {
		spreadType = SpreadSingle
	}

	profile, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}

	cards, err := Draw(spreadType, s.deck, s.rng)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	interpretation := s.assembler.Interpret(ctx, InterpretRequest{
		SessionID:  fmt.Sprintf("tarot_%s_%d", userID, now.Unix()),
		SpreadType: spreadType,
		Question:   question,
		Cards:      cards,
		Profile:    profile,
	})

	reading := &model.Reading{
		ID:             uuid.New().String(),
		UserID:         userID,
		SpreadType:     spreadType,
		Question:       question,
		Cards:          cards,
		Interpretation: interpretation,
		CreatedAt:      now,
	}
	if err := s.readingRepo.Create(ctx, reading); err != nil {
		return nil, fmt.Errorf("failed to save reading: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordTarotDraw(spreadType)
	}
	slog.Info("tarot reading created",
		slog.String("user_id", userID),
		slog.String("spread_type", spreadType),
		slog.Int("cards", len(cards)),
	)

	return reading, nil
}

// History はユーザーのリーディング履歴を新しい順に最大HistoryLimit件返す。
func (s *Service) History(ctx context.Context, userID string) ([]*model.Reading, error) {
	readings, err := s.readingRepo.ListByUserID(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

// Cards はデッキ全体を返す。
func (s *Service) Cards() []model.CardDefinition {
	return MajorArcana()
}
