package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// --- モック定義 ---

type mockChatRepo struct {
	createFn func(ctx context.Context, msg *model.ChatMessage) error
	listFn   func(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

func (m *mockChatRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	if m.createFn != nil {
		return m.createFn(ctx, msg)
	}
	return nil
}

func (m *mockChatRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

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

func (m *mockUserRepo) SetPremium(ctx context.Context, id string, since time.Time) error { return nil }

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error { return nil }

type mockGenerator struct {
	generateFn func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
	return m.generateFn(ctx, sessionID, systemPrompt, userPrompt)
}

type mockSpeaker struct {
	synthesizeFn func(ctx context.Context, text string, opts SpeechOptions) ([]byte, error)
}

func (m *mockSpeaker) Synthesize(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
	return m.synthesizeFn(ctx, text, opts)
}

type mockTranscriber struct {
	transcribeFn func(ctx context.Context, filename string, audio []byte) (string, error)
}

func (m *mockTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	return m.transcribeFn(ctx, filename, audio)
}

func existingUser() *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Luna", HumanDesignType: "Projector", BirthDate: "1991-09-09"}, nil
		},
	}
}

// --- Chat ---

func TestService_Chat_PersistsMessage(t *testing.T) {
	var saved *model.ChatMessage
	chatRepo := &mockChatRepo{
		createFn: func(ctx context.Context, msg *model.ChatMessage) error {
			saved = msg
			return nil
		},
	}
	var gotSession, gotSystem string
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
			gotSession, gotSystem = sessionID, systemPrompt
			return "Gate 34 hums within you.", nil
		},
	}
	svc := NewService(chatRepo, existingUser(), gen, nil, nil, "", newTestLogger())

	reply, err := svc.Chat(context.Background(), "user-1", "What is my purpose?", `{"mood":"calm"}`)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Response != "Gate 34 hums within you." || reply.Oracle != "Dr. Ethergreen" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if gotSession != "oracle_user-1" {
		t.Errorf("session id = %q, want oracle_user-1", gotSession)
	}
	for _, want := range []string{"Name: Luna", "Human Design Type: Projector", "Birth Date: 1991-09-09"} {
		if !strings.Contains(gotSystem, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if saved == nil || saved.UserMessage != "What is my purpose?" || saved.Context != `{"mood":"calm"}` || saved.ID == "" {
		t.Errorf("unexpected saved message: %+v", saved)
	}
}

// 生成に失敗した場合はフォールバックせずエラーを返し、履歴も保存しない
func TestService_Chat_GeneratorErrorPropagates(t *testing.T) {
	chatRepo := &mockChatRepo{
		createFn: func(ctx context.Context, msg *model.ChatMessage) error {
			t.Error("Create should not be called")
			return nil
		},
	}
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
			return "", ErrProviderUnavailable
		},
	}
	svc := NewService(chatRepo, existingUser(), gen, nil, nil, "", newTestLogger())

	_, err := svc.Chat(context.Background(), "user-1", "hi", "")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Chat() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestService_Chat_UserNotFound(t *testing.T) {
	svc := NewService(&mockChatRepo{}, &mockUserRepo{}, nil, nil, nil, "", newTestLogger())

	_, err := svc.Chat(context.Background(), "ghost", "hi", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Chat() error = %v, want USER_NOT_FOUND", err)
	}
}

func TestBuildChatPersona_Defaults(t *testing.T) {
	prompt := BuildChatPersona(&model.User{ID: "u"})
	for _, want := range []string{"Name: Seeker", "Human Design Type: Unknown", "Birth Date: Unknown"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestService_History_UsesLimit(t *testing.T) {
	var gotLimit int
	chatRepo := &mockChatRepo{
		listFn: func(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
			gotLimit = limit
			return []*model.ChatMessage{}, nil
		},
	}
	svc := NewService(chatRepo, existingUser(), nil, nil, nil, "", newTestLogger())

	if _, err := svc.History(context.Background(), "user-1"); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want 20", gotLimit)
	}
}

// --- Speak ---

func TestService_Speak(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
			if !strings.Contains(systemPrompt, "under 200 words") {
				t.Errorf("unexpected system prompt %q", systemPrompt)
			}
			return "A door opens.", nil
		},
	}
	var gotOpts SpeechOptions
	speaker := &mockSpeaker{
		synthesizeFn: func(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
			gotOpts = opts
			return []byte("mp3-bytes"), nil
		},
	}
	svc := NewService(&mockChatRepo{}, existingUser(), gen, speaker, nil, "", newTestLogger())

	reply, err := svc.Speak(context.Background(), "user-1", "Speak to me", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if reply.Text != "A door opens." || reply.Format != "mp3" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.AudioBase64 != base64.StdEncoding.EncodeToString([]byte("mp3-bytes")) {
		t.Errorf("AudioBase64 = %q", reply.AudioBase64)
	}
	if gotOpts.Voice != "onyx" || gotOpts.Speed != 0.9 {
		t.Errorf("unexpected speech options: %+v", gotOpts)
	}
}

func TestService_Speak_SynthesisErrorPropagates(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
			return "text", nil
		},
	}
	speaker := &mockSpeaker{
		synthesizeFn: func(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
			return nil, errors.New("tts down")
		},
	}
	svc := NewService(&mockChatRepo{}, existingUser(), gen, speaker, nil, "nova", newTestLogger())

	if _, err := svc.Speak(context.Background(), "user-1", "hi", ""); err == nil {
		t.Error("Speak() error = nil, want error")
	}
}

// --- Listen ---

func TestService_Listen(t *testing.T) {
	transcriber := &mockTranscriber{
		transcribeFn: func(ctx context.Context, filename string, audio []byte) (string, error) {
			return "hello oracle", nil
		},
	}
	svc := NewService(&mockChatRepo{}, existingUser(), nil, nil, transcriber, "", newTestLogger())

	text, err := svc.Listen(context.Background(), "voice.webm", []byte("audio"))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if text != "hello oracle" {
		t.Errorf("Listen() = %q", text)
	}
}

func TestService_Listen_EmptyAudio(t *testing.T) {
	svc := NewService(&mockChatRepo{}, existingUser(), nil, nil, nil, "", newTestLogger())

	_, err := svc.Listen(context.Background(), "voice.webm", nil)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAudio {
		t.Errorf("Listen() error = %v, want INVALID_AUDIO", err)
	}
}
