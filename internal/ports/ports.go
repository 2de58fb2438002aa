package ports

import (
	"context"
	"time"

	"arumi/internal/domain"
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	MaxDuration time.Duration
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// RecordingSession is one in-progress microphone capture. Stop and Cancel
// are each valid at most once; whichever runs first terminates the session
// and releases the microphone.
type RecordingSession interface {
	Stop(ctx context.Context) (domain.EncodedClip, error)
	Cancel()
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Supported() bool
	Start(ctx context.Context, cfg CaptureConfig) (RecordingSession, error)
}

// EncoderProbe reports whether the platform can encode a given codec.
type EncoderProbe interface {
	Supports(encoder string) bool
}

// AudioSink renders decoded audio. PCM samples are normalized floats in
// [-1, 1]; encoded payloads are handed to the platform decoder as-is.
type AudioSink interface {
	PlayPCM(ctx context.Context, samples []float32, sampleRate int) error
	PlayEncoded(ctx context.Context, data []byte) error
}

// Player decodes a base64 audio payload and renders it audibly, returning
// once playback has finished.
type Player interface {
	Play(ctx context.Context, audioBase64 string, format string) error
}

// ConsultationAPI is the remote chat/report backend contract.
type ConsultationAPI interface {
	StartSession(ctx context.Context, language string) (domain.SessionStart, error)
	SendMessage(ctx context.Context, sessionID, content string) (domain.MessageReply, error)
	SendVoiceMessage(ctx context.Context, sessionID, audioBase64, mimeType string, enableTTS bool) (domain.VoiceReply, error)
	EndSession(ctx context.Context, sessionID, customerName, customerEmail string) (domain.ConsultationReceipt, error)
	ReportStatus(ctx context.Context, sessionID string) (domain.ReportStatusResult, error)
	Synthesize(ctx context.Context, text, language string) (domain.SpeechReply, error)
	History(ctx context.Context, sessionID string) (domain.SessionHistory, error)
	ConfirmEmail(ctx context.Context, sessionID, email string, agreed bool) error
}

// SessionStore persists the session identifier across UI show/hide cycles.
type SessionStore interface {
	Get() (string, bool)
	Set(sessionID string) error
	Clear() error
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	MessageAppended(message domain.ChatMessage)
	ReportStateChanged(state domain.ReportState, token string)
	PlaybackFinished()
	SessionError(code domain.ErrorCode, detail string)
}
