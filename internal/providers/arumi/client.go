package arumi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"arumi/internal/domain"
)

// Config controls the consultation backend connection.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the remote consultation backend over JSON/HTTP. It carries
// no retry policy; transport failures surface to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "http://localhost:8000/api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// APIError is a non-2xx backend response. The backend attaches an optional
// detail message; without one the HTTP status is the message.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("api error: %s", e.Status)
}

func (c *Client) StartSession(ctx context.Context, language string) (domain.SessionStart, error) {
	var out domain.SessionStart
	err := c.do(ctx, http.MethodPost, "/chat/start", map[string]any{"language": language}, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, sessionID, content string) (domain.MessageReply, error) {
	var out domain.MessageReply
	err := c.do(ctx, http.MethodPost, "/chat/message", map[string]any{
		"session_id": sessionID,
		"content":    content,
	}, &out)
	return out, err
}

func (c *Client) SendVoiceMessage(ctx context.Context, sessionID, audioBase64, mimeType string, enableTTS bool) (domain.VoiceReply, error) {
	var out domain.VoiceReply
	err := c.do(ctx, http.MethodPost, "/chat/voice-message", map[string]any{
		"session_id":   sessionID,
		"audio_base64": audioBase64,
		"mime_type":    mimeType,
		"enable_tts":   enableTTS,
	}, &out)
	return out, err
}

// EndSession converts the conversation into a consultation and triggers
// report generation.
func (c *Client) EndSession(ctx context.Context, sessionID, customerName, customerEmail string) (domain.ConsultationReceipt, error) {
	var out domain.ConsultationReceipt
	err := c.do(ctx, http.MethodPost, "/chat/end", map[string]any{
		"session_id":     sessionID,
		"customer_name":  customerName,
		"customer_email": customerEmail,
	}, &out)
	return out, err
}

func (c *Client) ReportStatus(ctx context.Context, sessionID string) (domain.ReportStatusResult, error) {
	var out domain.ReportStatusResult
	err := c.do(ctx, http.MethodGet, "/chat/report-status/"+sessionID, nil, &out)
	return out, err
}

func (c *Client) Synthesize(ctx context.Context, text, language string) (domain.SpeechReply, error) {
	var out domain.SpeechReply
	err := c.do(ctx, http.MethodPost, "/chat/tts", map[string]any{
		"text":     text,
		"language": language,
	}, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, sessionID string) (domain.SessionHistory, error) {
	var wire struct {
		Session struct {
			ID        string    `json:"id"`
			Language  string    `json:"language"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"session"`
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/history/"+sessionID, nil, &wire); err != nil {
		return domain.SessionHistory{}, err
	}
	return domain.SessionHistory{
		SessionID: wire.Session.ID,
		Language:  wire.Session.Language,
		CreatedAt: wire.Session.CreatedAt,
		Messages:  wire.Messages,
	}, nil
}

func (c *Client) ConfirmEmail(ctx context.Context, sessionID, email string, agreed bool) error {
	return c.do(ctx, http.MethodPost, "/chat/confirm-email", map[string]any{
		"session_id": sessionID,
		"email":      email,
		"agreed":     agreed,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("backend request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		var detail struct {
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&detail); decodeErr == nil {
			apiErr.Detail = strings.TrimSpace(detail.Detail)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
