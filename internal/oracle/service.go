package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// Name はレスポンスに含めるオラクルの名前。
const Name = "Dr. Ethergreen"

// HistoryLimit は会話履歴の最大取得件数。
const HistoryLimit = 20

// 音声合成の既定値
const (
	DefaultVoice = "onyx"
	SpeechSpeed  = 0.9
	AudioFormat  = "mp3"
)

const speakPersona = "You are Dr. Ethergreen, a mystical oracle. Keep responses under 200 words, prophetic and impactful."

// TextGenerator はテキスト生成のインターフェース。Clientが実装する。
type TextGenerator interface {
	Generate(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error)
}

// Speaker は音声合成のインターフェース。Clientが実装する。
type Speaker interface {
	Synthesize(ctx context.Context, text string, opts SpeechOptions) ([]byte, error)
}

// Transcriber は音声認識のインターフェース。Clientが実装する。
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// ChatReply はオラクルとの会話の応答。
type ChatReply struct {
	Response string
	Oracle   string
}

// SpeechReply は音声付きの応答。
type SpeechReply struct {
	Text        string
	AudioBase64 string
	Format      string
}

// Service はオラクルとの会話・音声のユースケースを提供する。
// タロットと異なり、外部サービスの失敗はフォールバックせずエラーとして返す。
type Service struct {
	chatRepo     repository.ChatRepository
	userRepo     repository.UserRepository
	generator    TextGenerator
	speaker      Speaker
	transcriber  Transcriber
	defaultVoice string
	logger       *slog.Logger
	now          func() time.Time
}

// NewService はServiceを生成する。defaultVoiceが空の場合はDefaultVoiceを使う。
func NewService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	generator TextGenerator,
	speaker Speaker,
	transcriber Transcriber,
	defaultVoice string,
	logger *slog.Logger,
) *Service {
	if defaultVoice == "" {
		defaultVoice = DefaultVoice
	}
	return &Service{
		chatRepo:     chatRepo,
		userRepo:     userRepo,
		generator:    generator,
		speaker:      speaker,
		transcriber:  transcriber,
		defaultVoice: defaultVoice,
		logger:       logger,
		now:          time.Now,
	}
}

// BuildChatPersona はユーザーのプロフィールを埋め込んだシステムプロンプトを返す。
func BuildChatPersona(user *model.User) string {
	name := user.DisplayName("Seeker")
	hdType := "Unknown"
	birthDate := "Unknown"
	if user != nil {
		if user.HumanDesignType != "" {
			hdType = user.HumanDesignType
		}
		if user.BirthDate != "" {
			birthDate = user.BirthDate
		}
	}

	return fmt.Sprintf(`You are Dr. Ethergreen, the Voice Oracle of YKY Hub. You speak with a deep, resonant voice
with a subtle Kiwi accent inflection. You are mystical yet grounded, combining ancient wisdom with modern biohacking.

User's Profile:
- Name: %s
- Human Design Type: %s
- Birth Date: %s

Speak in a prophetic but warm manner. Reference cosmic energies, transits, and the user's unique blueprint.
Keep responses concise but impactful - like whispered prophecies.`, name, hdType, birthDate)
}

func chatSessionID(userID string) string {
	return "oracle_" + userID
}

// Chat はメッセージをオラクルに送り、応答を会話履歴に保存する。
// chatContextはクライアントが付与した任意のJSON文字列で、そのまま保存する。
func (s *Service) Chat(ctx context.Context, userID, message, chatContext string) (*ChatReply, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	response, err := s.generator.Generate(ctx, chatSessionID(userID), BuildChatPersona(user), message)
	if err != nil {
		s.logger.Error("oracle chat failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to generate oracle response: %w", err)
	}

	msg := &model.ChatMessage{
		ID:             uuid.New().String(),
		UserID:         userID,
		UserMessage:    message,
		OracleResponse: response,
		Context:        chatContext,
		CreatedAt:      s.now(),
	}
	if err := s.chatRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	return &ChatReply{Response: response, Oracle: Name}, nil
}

// History はユーザーの会話履歴を新しい順に最大HistoryLimit件返す。
func (s *Service) History(ctx context.Context, userID string) ([]*model.ChatMessage, error) {
	return s.chatRepo.ListByUserID(ctx, userID, HistoryLimit)
}

// Speak は短い予言文を生成し、音声に変換してbase64で返す。voiceが空の場合は既定の声を使う。
func (s *Service) Speak(ctx context.Context, userID, text, voice string) (*SpeechReply, error) {
	if voice == "" {
		voice = s.defaultVoice
	}

	response, err := s.generator.Generate(ctx, chatSessionID(userID), speakPersona, text)
	if err != nil {
		s.logger.Error("oracle speech text generation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to generate oracle response: %w", err)
	}

	audio, err := s.speaker.Synthesize(ctx, response, SpeechOptions{Voice: voice, Speed: SpeechSpeed})
	if err != nil {
		s.logger.Error("oracle speech synthesis failed",
			slog.String("user_id", userID),
			slog.String("voice", voice),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return &SpeechReply{
		Text:        response,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Format:      AudioFormat,
	}, nil
}

// Listen はアップロードされた音声を文字起こしする。
func (s *Service) Listen(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", model.NewInvalidAudioError("empty audio")
	}
	text, err := s.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		s.logger.Error("oracle transcription failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return text, nil
}
