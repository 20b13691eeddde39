// Package oracle はDr. Ethergreenのオラクル機能（会話・音声合成・音声認識）を提供する。
// 外部のOpenAI互換APIを呼び出すクライアントと、会話履歴を扱うサービスを含む。
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"github.com/hitoshi/ethergreen/internal/metrics"
)

// 操作名。メトリクスのラベルとログに使用する。
const (
	OperationChat          = "chat"
	OperationSpeech        = "speech"
	OperationTranscription = "transcription"
)

const (
	// maxResponseSize はプロバイダからのレスポンスの最大サイズ。
	maxResponseSize = 32 << 20
	// maxErrorBody はエラーログに含めるレスポンス本文の最大長。
	maxErrorBody = 512
)

// ErrProviderUnavailable はサーキットブレーカーが開いている間に返される。
var ErrProviderUnavailable = errors.New("oracle provider unavailable")

// Recorder はプロバイダ呼び出しのメトリクスを記録するインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordOracleRequest(operation, outcome string)
	RecordOracleLatency(operation string, duration time.Duration)
}

// Config はクライアントの接続設定。
type Config struct {
	BaseURL   string // 例: https://api.openai.com/v1
	APIKey    string
	ChatModel string
	TTSModel  string
	STTModel  string
}

// SpeechOptions は音声合成のパラメータ。
type SpeechOptions struct {
	Voice string
	Speed float64
}

// Client はOpenAI互換APIのクライアント。
// 連続して失敗した場合はサーキットブレーカーにより一定時間即座にエラーを返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
	recorder   Recorder
	breaker    *gobreaker.CircuitBreaker
}

// NewClient はClientの新しいインスタンスを生成する。recorderはnilでもよい。
func NewClient(httpClient *http.Client, cfg Config, recorder Recorder, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		recorder:   recorder,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oracle",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// 呼び出し元のキャンセルはプロバイダの障害として数えない
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

// Generate はシステムプロンプトとユーザープロンプトからテキストを生成する。
// sessionIDはプロバイダ側の利用者識別子として送信する。
func (c *Client) Generate(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		User: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	body, err := c.call(ctx, OperationChat, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", fmt.Errorf("chat completion response has no content")
	}
	return content.String(), nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

// Synthesize はテキストをmp3音声に変換する。
func (c *Client) Synthesize(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          c.cfg.TTSModel,
		Input:          text,
		Voice:          opts.Voice,
		Speed:          opts.Speed,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	audio, err := c.call(ctx, OperationSpeech, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech response is empty")
	}
	return audio, nil
}

// Transcribe は音声データを文字起こしする。
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.WriteField("model", c.cfg.STTModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to write response_format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	payload := buf.Bytes()
	contentType := w.FormDataContentType()

	body, err := c.call(ctx, OperationTranscription, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	text := gjson.GetBytes(body, "text")
	if !text.Exists() {
		return "", fmt.Errorf("transcription response has no text")
	}
	return text.String(), nil
}

// call はサーキットブレーカー経由でリクエストを送信し、2xxのレスポンス本文を返す。
func (c *Client) call(ctx context.Context, operation string, build func() (*http.Request, error)) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("User-Agent", "Ethergreen/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", operation, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Error("oracle provider returned error status",
				slog.String("operation", operation),
				slog.Int("http_status", resp.StatusCode),
				slog.String("body", truncate(string(body), maxErrorBody)),
			)
			return nil, fmt.Errorf("%s request returned status %d", operation, resp.StatusCode)
		}
		return body, nil
	})

	c.observe(operation, start, err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", operation, ErrProviderUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	c.recorder.RecordOracleRequest(operation, outcome)
	c.recorder.RecordOracleLatency(operation, time.Since(start))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
