package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/oracle"
)

// MaxUploadSize はListenでアップロードできる音声ファイルの最大サイズ。
const MaxUploadSize = 25 << 20

// OracleServiceInterface はオラクルハンドラーが必要とするサービスインターフェース。
type OracleServiceInterface interface {
	Chat(ctx context.Context, userID, message, chatContext string) (*oracle.ChatReply, error)
	History(ctx context.Context, userID string) ([]*model.ChatMessage, error)
	Speak(ctx context.Context, userID, text, voice string) (*oracle.SpeechReply, error)
	Listen(ctx context.Context, filename string, audio []byte) (string, error)
}

// OracleHandler はDr. Ethergreenとの会話・音声のHTTPハンドラー。
type OracleHandler struct {
	service OracleServiceInterface
}

// NewOracleHandler はOracleHandlerを生成する。
func NewOracleHandler(service OracleServiceInterface) *OracleHandler {
	return &OracleHandler{service: service}
}

type chatRequest struct {
	Message string          `json:"message" validate:"required,max=4000"`
	Context json.RawMessage `json:"context"`
}

type chatResponse struct {
	Response string `json:"response"`
	Oracle   string `json:"oracle"`
}

type chatMessageResponse struct {
	ID             string          `json:"id"`
	UserMessage    string          `json:"user_message"`
	OracleResponse string          `json:"oracle_response"`
	Context        json.RawMessage `json:"context,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type speakRequest struct {
	Text  string `json:"text" validate:"required,max=2000"`
	Voice string `json:"voice" validate:"omitempty,oneof=alloy echo fable onyx nova shimmer"`
}

type speakResponse struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

type listenResponse struct {
	Transcription string `json:"transcription"`
}

// Chat はオラクルにメッセージを送る。
// POST /api/oracle/chat
func (h *OracleHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	chatContext := ""
	if len(req.Context) > 0 && string(req.Context) != "null" {
		chatContext = string(req.Context)
	}

	reply, err := h.service.Chat(r.Context(), userID, req.Message, chatContext)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply.Response, Oracle: reply.Oracle})
}

// History は会話履歴を新しい順に返す。
// GET /api/oracle/history
func (h *OracleHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	messages, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]chatMessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = chatMessageResponse{
			ID:             m.ID,
			UserMessage:    m.UserMessage,
			OracleResponse: m.OracleResponse,
			CreatedAt:      m.CreatedAt,
		}
		if m.Context != "" && json.Valid([]byte(m.Context)) {
			resp[i].Context = json.RawMessage(m.Context)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Speak は予言文を生成して音声に変換する。
// POST /api/oracle/speak
func (h *OracleHandler) Speak(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	reply, err := h.service.Speak(r.Context(), userID, req.Text, req.Voice)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, speakResponse{
		Text:        reply.Text,
		AudioBase64: reply.AudioBase64,
		Format:      reply.Format,
	})
}

// Listen はmultipartでアップロードされた音声ファイル（fileフィールド）を文字起こしする。
// POST /api/oracle/listen
func (h *OracleHandler) Listen(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	// multipartのヘッダー分の余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("file exceeds 25 MiB"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("failed to read upload"))
		return
	}
	if len(audio) > MaxUploadSize {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("file exceeds 25 MiB"))
		return
	}

	text, err := h.service.Listen(r.Context(), header.Filename, audio)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listenResponse{Transcription: text})
}
