package tarot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/ethergreen/internal/model"
)

// FallbackInterpretation は生成AIの呼び出しに失敗した場合に返す固定文。
const FallbackInterpretation = "The cards speak of transformation and new beginnings. Trust in your journey."

const readerPersona = "You are Dr. Ethergreen, master tarot reader of YKY Hub."

// プロフィール未設定時の既定値
const (
	defaultQuestion        = "General guidance"
	defaultHumanDesignType = "Generator"
	defaultLifePath        = 7
	defaultBirthDate       = "Unknown"
)

// TextGenerator は外部のテキスト生成サービスのインターフェース。
type TextGenerator interface {
	Generate(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error)
}

// FallbackRecorder はフォールバック発生を記録するインターフェース。
// metrics.Collectorが実装する。
type FallbackRecorder interface {
	RecordTarotFallback()
}

// InterpretRequest は解釈生成の入力。
type InterpretRequest struct {
	SessionID  string
	SpreadType string
	Question   *string
	Cards      []model.DrawnCard
	Profile    *model.User // nilの場合は既定値を使う
}

// Assembler は抽選結果とプロフィールからプロンプトを組み立て、解釈文を取得する。
type Assembler struct {
	generator TextGenerator
	recorder  FallbackRecorder
	logger    *slog.Logger
}

// NewAssembler はAssemblerを生成する。recorderはnilでもよい。
func NewAssembler(generator TextGenerator, recorder FallbackRecorder, logger *slog.Logger) *Assembler {
	return &Assembler{
		generator: generator,
		recorder:  recorder,
		logger:    logger,
	}
}

// Interpret は解釈文を返す。生成に失敗した場合はエラーを返さずFallbackInterpretationを返す。
func (a *Assembler) Interpret(ctx context.Context, req InterpretRequest) string {
	prompt := BuildPrompt(req.SpreadType, req.Question, req.Cards, req.Profile)

	text, err := a.generator.Generate(ctx, req.SessionID, readerPersona, prompt)
	if err != nil {
		a.logger.Warn("tarot interpretation failed, using fallback",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()),
		)
		if a.recorder != nil {
			a.recorder.RecordTarotFallback()
		}
		return FallbackInterpretation
	}
	return text
}

// CardLine はカード1枚を "<Name> (Reversed|Upright)" 形式で返す。
func CardLine(c model.DrawnCard) string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Orientation())
}

// BuildPrompt はリーディング用のプロンプトを組み立てる。
func BuildPrompt(spreadType string, question *string, cards []model.DrawnCard, profile *model.User) string {
	q := defaultQuestion
	if question != nil && strings.TrimSpace(*question) != "" {
		q = *question
	}

	lines := make([]string, len(cards))
	for i, c := range cards {
		lines[i] = "- " + CardLine(c)
	}

	hdType := defaultHumanDesignType
	lifePath := strconv.Itoa(defaultLifePath)
	birthDate := defaultBirthDate
	if profile != nil {
		if profile.HumanDesignType != "" {
			hdType = profile.HumanDesignType
		}
		if profile.Numerology != nil && profile.Numerology.LifePath != 0 {
			lifePath = strconv.Itoa(profile.Numerology.LifePath)
		}
		if profile.BirthDate != "" {
			birthDate = profile.BirthDate
		}
	}

	var b strings.Builder
	b.WriteString("As Dr. Ethergreen, provide a deeply personal tarot reading.\n\n")
	fmt.Fprintf(&b, "User Question: %s\n", q)
	fmt.Fprintf(&b, "Spread Type: %s\n", spreadType)
	b.WriteString("Cards Drawn:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nUser's Profile:\n")
	fmt.Fprintf(&b, "- Human Design: %s\n", hdType)
	fmt.Fprintf(&b, "- Life Path Number: %s\n", lifePath)
	fmt.Fprintf(&b, "- Birth Date: %s\n\n", birthDate)
	b.WriteString("Provide a prophetic, personalized reading that connects the cards to their unique blueprint.\n")
	b.WriteString("Be specific, mystical, and impactful. Reference their Human Design and numerology where relevant.")
	return b.String()
}
