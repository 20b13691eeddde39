package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// mockRecorder はRecorderのモック。
type mockRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	latency  int
}

func (m *mockRecorder) RecordOracleRequest(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string]int)
	}
	m.requests[operation+"/"+outcome]++
}

func (m *mockRecorder) RecordOracleLatency(operation string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency++
}

func newTestClient(t *testing.T, handler http.HandlerFunc, recorder Recorder) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Client(), Config{
		BaseURL:   server.URL + "/v1/",
		APIKey:    "sk-test",
		ChatModel: "gpt-5.2",
		TTSModel:  "tts-1-hd",
		STTModel:  "whisper-1",
	}, recorder, newTestLogger())
}

func TestClient_Generate(t *testing.T) {
	var got chatRequest
	recorder := &mockRecorder{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The stars align."}}]}`))
	}, recorder)

	text, err := client.Generate(context.Background(), "oracle_user-1", "You are Dr. Ethergreen.", "Hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "The stars align." {
		t.Errorf("Generate() = %q", text)
	}

	if got.Model != "gpt-5.2" || got.User != "oracle_user-1" {
		t.Errorf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hello" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if recorder.requests["chat/success"] != 1 || recorder.latency != 1 {
		t.Errorf("metrics not recorded: %+v latency=%d", recorder.requests, recorder.latency)
	}
}

// contentが空の応答はエラーになる
func TestClient_Generate_EmptyContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}, nil)

	if _, err := client.Generate(context.Background(), "s", "sys", "hi"); err == nil {
		t.Error("Generate() error = nil, want error")
	}
}

func TestClient_Generate_ErrorStatus(t *testing.T) {
	recorder := &mockRecorder{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}, recorder)

	_, err := client.Generate(context.Background(), "s", "sys", "hi")
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
	if recorder.requests["chat/error"] != 1 {
		t.Errorf("error outcome not recorded: %+v", recorder.requests)
	}
}

// 5回連続で失敗するとブレーカーが開き、以降はプロバイダを呼ばずにErrProviderUnavailableを返す
func TestClient_CircuitBreakerOpens(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	for i := 0; i < 5; i++ {
		if _, err := client.Generate(context.Background(), "s", "sys", "hi"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := client.Generate(context.Background(), "s", "sys", "hi")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Generate() error = %v, want ErrProviderUnavailable", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 5 {
		t.Errorf("provider calls = %d, want 5", calls)
	}
}

func TestClient_Synthesize(t *testing.T) {
	var got speechRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q, want /v1/audio/speech", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-fake-mp3"))
	}, nil)

	audio, err := client.Synthesize(context.Background(), "Your path glows.", SpeechOptions{Voice: "onyx", Speed: 0.9})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "ID3-fake-mp3" {
		t.Errorf("audio = %q", audio)
	}
	if got.Model != "tts-1-hd" || got.Voice != "onyx" || got.Speed != 0.9 || got.ResponseFormat != "mp3" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestClient_Transcribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", model)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer file.Close()
		if header.Filename != "voice_scan.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if !bytes.Equal(data, []byte("RIFF-audio")) {
			t.Errorf("audio = %q", data)
		}
		w.Write([]byte(`{"text":"I feel tired lately"}`))
	}, nil)

	text, err := client.Transcribe(context.Background(), "voice_scan.webm", []byte("RIFF-audio"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "I feel tired lately" {
		t.Errorf("Transcribe() = %q", text)
	}
}

// ファイル名が空の場合はaudio.webmを使う
func TestClient_Transcribe_DefaultFilename(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		if header.Filename != "audio.webm" {
			t.Errorf("filename = %q, want audio.webm", header.Filename)
		}
		w.Write([]byte(`{"text":""}`))
	}, nil)

	if _, err := client.Transcribe(context.Background(), "", []byte("x")); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
}
