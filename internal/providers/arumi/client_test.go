package arumi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"arumi/internal/domain"
)

func TestStartSessionDecodesResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat/start" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body["language"] != "ja" {
			t.Errorf("unexpected language: %v", body["language"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"sess-1","visitor_id":"vis-1","greeting":"こんにちは"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	start, err := client.StartSession(context.Background(), "ja")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if start.SessionID != "sess-1" || start.VisitorID != "vis-1" || start.Greeting != "こんにちは" {
		t.Fatalf("unexpected response: %+v", start)
	}
}

func TestSendVoiceMessageRequestShape(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/voice-message" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcribed_text":"質問","content":"回答","audio_base64":"QUJD","audio_format":"mp3"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	reply, err := client.SendVoiceMessage(context.Background(), "sess-1", "UENN", "audio/webm;codecs=opus", true)
	if err != nil {
		t.Fatalf("send voice failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got["session_id"] != "sess-1" || got["audio_base64"] != "UENN" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if got["mime_type"] != "audio/webm;codecs=opus" || got["enable_tts"] != true {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if reply.TranscribedText != "質問" || reply.AudioFormat != "mp3" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestReportStatusUsesPathParameter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/chat/report-status/sess-9" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready","access_token":"tok-1","report_id":"rep-1"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	status, err := client.ReportStatus(context.Background(), "sess-9")
	if err != nil {
		t.Fatalf("report status failed: %v", err)
	}
	if status.Status != domain.ReportStatusReady || status.AccessToken != "tok-1" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHistoryFlattensSessionEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/history/sess-2" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"session": {"id": "sess-2", "language": "ko", "created_at": "2026-08-01T09:00:00Z"},
			"messages": [
				{"id": "m1", "role": "assistant", "content": "greeting"},
				{"id": "m2", "role": "user", "content": "question"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	history, err := client.History(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.SessionID != "sess-2" || history.Language != "ko" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if len(history.Messages) != 2 || history.Messages[1].Role != domain.RoleUser {
		t.Fatalf("unexpected messages: %+v", history.Messages)
	}
}

func TestErrorDetailIsSurfaced(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"セッションが見つかりません"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	_, err := client.SendMessage(context.Background(), "gone", "hello")
	if err == nil {
		t.Fatalf("expected an error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status code: %d", apiErr.StatusCode)
	}
	if apiErr.Error() != "セッションが見つかりません" {
		t.Fatalf("detail must win over the status line, got %q", apiErr.Error())
	}
}

func TestErrorWithoutDetailFallsBackToStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	_, err := client.StartSession(context.Background(), "ja")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Detail != "" {
		t.Fatalf("non-JSON body must not produce a detail, got %q", apiErr.Detail)
	}
	if apiErr.Error() == "" {
		t.Fatalf("fallback message must not be empty")
	}
}

func TestConfirmEmailDiscardsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/confirm-email" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "hana@example.com" || body["agreed"] != true {
			t.Errorf("unexpected request body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api"}, nil)
	if err := client.ConfirmEmail(context.Background(), "sess-1", "hana@example.com", true); err != nil {
		t.Fatalf("confirm email failed: %v", err)
	}
}

func TestBaseURLTrailingSlashIsNormalized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/start" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"s"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/api/"}, nil)
	if _, err := client.StartSession(context.Background(), "ja"); err != nil {
		t.Fatalf("start session failed: %v", err)
	}
}
