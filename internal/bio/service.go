// Package bio は音声によるバイオレゾナンススキャンを提供する。
// 音声を文字起こしし、オラクルに解析文を生成させ、周波数と推奨事項を付与して保存する。
package bio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/random"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// HistoryLimit はスキャン履歴の最大取得件数。
const HistoryLimit = 20

// MaxAudioSize はデコード後の音声の最大サイズ。
const MaxAudioSize = 25 << 20

const (
	scanFilename = "voice_scan.webm"
	analyzerRole = "You are Dr. Ethergreen's bio-resonance analysis module."
)

// 解析結果に付与する値の範囲と候補
var (
	dominantRange = [2]int{380, 480}
	weakestRange  = [2]int{200, 350}
	vitalityRange = [2]int{6, 9}
	foods         = []string{"Leafy greens", "Berries", "Wild salmon", "Turmeric"}
	herbs         = []string{"Ashwagandha", "Rhodiola", "Lion's Mane", "Reishi"}
	healingHz     = []int{396, 417, 528, 639, 741, 852}
	peptides      = []string{"BPC-157", "Epithalon", "Semax", "Selank"}
)

// Transcriber は音声認識のインターフェース。
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// TextGenerator はテキスト生成のインターフェース。
type TextGenerator interface {
	Generate(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error)
}

// Service はバイオスキャンのユースケースを提供する。
// 外部サービスの失敗はフォールバックせずエラーとして返す。
type Service struct {
	scanRepo    repository.BioScanRepository
	transcriber Transcriber
	generator   TextGenerator
	rng         random.Source
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	scanRepo repository.BioScanRepository,
	transcriber Transcriber,
	generator TextGenerator,
	rng random.Source,
	logger *slog.Logger,
) *Service {
	return &Service{
		scanRepo:    scanRepo,
		transcriber: transcriber,
		generator:   generator,
		rng:         rng,
		logger:      logger,
		now:         time.Now,
	}
}

// DecodeAudio はbase64文字列を音声データに変換する。
// "data:audio/webm;base64," 形式のData URLも受け付ける。
func DecodeAudio(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	if encoded == "" {
		return nil, model.NewInvalidAudioError("audio_base64 is empty")
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxAudioSize {
		return nil, model.NewInvalidAudioError("audio is too large")
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, model.NewInvalidAudioError("audio_base64 is not valid base64")
	}
	return audio, nil
}

// BuildAnalysisPrompt は文字起こし結果から解析用プロンプトを組み立てる。
func BuildAnalysisPrompt(transcription string) string {
	return fmt.Sprintf(`Analyze this voice sample transcription for bio-resonance indicators.

Transcription: %s

As Dr. Ethergreen, provide:
1. Dominant frequency assessment (estimate Hz range)
2. Weakest chakra/energy center
3. Recommended remedy (one each from: food, herb, frequency, practice)
4. Overall vitality score (1-10)

Be specific and mystical. This is voice-based biofeedback analysis.`, transcription)
}

// Scan は音声を解析してスキャン結果を保存し、返す。
func (s *Service) Scan(ctx context.Context, userID, audioBase64 string) (*model.BioScan, error) {
	audio, err := DecodeAudio(audioBase64)
	if err != nil {
		return nil, err
	}

	transcription, err := s.transcriber.Transcribe(ctx, scanFilename, audio)
	if err != nil {
		s.logger.Error("bio scan transcription failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to transcribe voice sample: %w", err)
	}

	analysis, err := s.generator.Generate(ctx, "bio_"+userID, analyzerRole, BuildAnalysisPrompt(transcription))
	if err != nil {
		s.logger.Error("bio scan analysis failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to analyze voice sample: %w", err)
	}

	scan := &model.BioScan{
		ID:                uuid.New().String(),
		UserID:            userID,
		Transcription:     transcription,
		Analysis:          analysis,
		DominantFrequency: random.Between(s.rng, dominantRange[0], dominantRange[1]),
		WeakestFrequency:  random.Between(s.rng, weakestRange[0], weakestRange[1]),
		Recommendations: model.Recommendations{
			Food:      random.Pick(s.rng, foods),
			Herb:      random.Pick(s.rng, herbs),
			Frequency: strconv.Itoa(random.Pick(s.rng, healingHz)) + "Hz",
			Peptide:   random.Pick(s.rng, peptides),
		},
		VitalityScore: random.Between(s.rng, vitalityRange[0], vitalityRange[1]),
		CreatedAt:     s.now(),
	}

	if err := s.scanRepo.Create(ctx, scan); err != nil {
		return nil, err
	}

	s.logger.Info("bio scan completed",
		slog.String("user_id", userID),
		slog.Int("vitality_score", scan.VitalityScore),
	)
	return scan, nil
}

// History はユーザーのスキャン履歴を新しい順に最大HistoryLimit件返す。
func (s *Service) History(ctx context.Context, userID string) ([]*model.BioScan, error) {
	return s.scanRepo.ListByUserID(ctx, userID, HistoryLimit)
}
