package domain

import "time"

// SessionState models the consultation conversation lifecycle.
type SessionState string

const (
	SessionStateInitializing SessionState = "initializing"
	SessionStateActive       SessionState = "active"
	SessionStateDegraded     SessionState = "degraded"
	SessionStateInitFailed   SessionState = "init_failed"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonStarting       SessionStateReason = "starting"
	SessionReasonGreetingReady  SessionStateReason = "greeting_ready"
	SessionReasonResumed        SessionStateReason = "session_resumed"
	SessionReasonSendFailed     SessionStateReason = "send_failed"
	SessionReasonSendRecovered  SessionStateReason = "send_recovered"
	SessionReasonInitFailed     SessionStateReason = "init_failed"
	SessionReasonSessionClosed  SessionStateReason = "session_closed"
	SessionReasonVoiceRecording SessionStateReason = "voice_recording"
	SessionReasonVoiceProcessed SessionStateReason = "voice_processed"
	SessionReasonVoiceDiscarded SessionStateReason = "voice_discarded"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodePermission  ErrorCode = "mic_permission"
	ErrorCodeUnsupported ErrorCode = "mic_unsupported"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeDecode      ErrorCode = "audio_decode"
	ErrorCodePlayback    ErrorCode = "playback"
	ErrorCodeSessionInit ErrorCode = "session_init"
	ErrorCodeReport      ErrorCode = "report"
	ErrorCodeClipboard   ErrorCode = "clipboard"
	ErrorCodeVoice       ErrorCode = "voice"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AgentType classifies which backend agent produced an assistant reply.
type AgentType string

const (
	AgentGreeting     AgentType = "greeting"
	AgentGeneral      AgentType = "general"
	AgentConsultation AgentType = "consultation"
	AgentMedical      AgentType = "medical"
)

// RAGReference is a citation grounding an assistant reply.
type RAGReference struct {
	FAQID         string  `json:"faq_id"`
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	ProcedureName string  `json:"procedure_name,omitempty"`
	Similarity    float64 `json:"similarity"`
	YoutubeURL    string  `json:"youtube_url,omitempty"`
}

// ChatMessage is a single immutable turn in the visible transcript.
type ChatMessage struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	References []RAGReference `json:"rag_references,omitempty"`
	Agent      AgentType      `json:"agent_type,omitempty"`
	CreatedAt  time.Time      `json:"timestamp"`
}

// EncodedClip is a finalized microphone recording.
type EncodedClip struct {
	Data     []byte `json:"-"`
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// SessionStart is the backend response to a session-start request.
type SessionStart struct {
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`
	Greeting  string `json:"greeting"`
}

// MessageReply is the backend response to a text message.
type MessageReply struct {
	Content           string         `json:"content"`
	References        []RAGReference `json:"rag_references,omitempty"`
	CanGenerateReport bool           `json:"can_generate_report"`
	Agent             AgentType      `json:"agent_type,omitempty"`
	PendingEmail      string         `json:"pending_email,omitempty"`
}

// VoiceReply is the backend response to a submitted voice clip.
type VoiceReply struct {
	TranscribedText string         `json:"transcribed_text"`
	Content         string         `json:"content"`
	References      []RAGReference `json:"rag_references,omitempty"`
	Agent           AgentType      `json:"agent_type,omitempty"`
	AudioBase64     string         `json:"audio_base64,omitempty"`
	AudioFormat     string         `json:"audio_format,omitempty"`
}

// SpeechReply is the backend response to a synthesis request.
type SpeechReply struct {
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

// ConsultationReceipt acknowledges a session-end/report request.
type ConsultationReceipt struct {
	ConsultationID string `json:"consultation_id"`
	Status         string `json:"status"`
}

// ReportStatus is the backend-side generation status of a report.
type ReportStatus string

const (
	ReportStatusNotStarted ReportStatus = "not_started"
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusReady      ReportStatus = "ready"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportStatusResult is one observation of the report status endpoint.
type ReportStatusResult struct {
	Status      ReportStatus `json:"status"`
	AccessToken string       `json:"access_token,omitempty"`
	ReportID    string       `json:"report_id,omitempty"`
}

// ReportState is the local tracker state derived from status observations.
type ReportState string

const (
	ReportStateIdle       ReportState = "idle"
	ReportStateGenerating ReportState = "generating"
	ReportStateReady      ReportState = "ready"
	ReportStateFailed     ReportState = "failed"
)

// SessionHistory is a stored session with its transcript.
type SessionHistory struct {
	SessionID string        `json:"session_id"`
	Language  string        `json:"language"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []ChatMessage `json:"messages"`
}

// Status summarizes the current runtime status for the UI.
type Status struct {
	Session           SessionState `json:"session"`
	SessionID         string       `json:"sessionId,omitempty"`
	SendBusy          bool         `json:"sendBusy"`
	Recording         bool         `json:"recording"`
	CanGenerateReport bool         `json:"canGenerateReport"`
	Report            ReportState  `json:"report"`
	ReportToken       string       `json:"reportToken,omitempty"`
	Message           string       `json:"message,omitempty"`
}
