package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arumi/internal/audio"
	"arumi/internal/domain"
	"arumi/internal/ports"
)

var (
	ErrSessionNotReady = errors.New("chat session is not ready")
	ErrEmptyMessage    = errors.New("message content is empty")
	// ErrSendInFlight enforces the single in-flight send invariant inside
	// the state machine rather than relying on UI affordances.
	ErrSendInFlight      = errors.New("a message send is already in flight")
	ErrCaptureBusy       = errors.New("a recording is already in progress")
	ErrNoActiveRecording = errors.New("no active recording")
	ErrVoiceUnsupported  = errors.New("voice input is not supported on this platform")
)

// Config controls conversation behavior.
type Config struct {
	Language           string
	Capture            ports.CaptureConfig
	EnableTTS          bool
	MinUserTurns       int
	ReportPollInterval time.Duration
	ReportPollTimeout  time.Duration
	ReportViewerURL    string
}

// SessionController owns the lifecycle of one consultation conversation:
// session start/resume, text and voice turns, report generation tracking,
// and resource teardown.
type SessionController struct {
	api       ports.ConsultationAPI
	capture   ports.AudioCapture
	player    ports.Player
	store     ports.SessionStore
	clipboard ports.Clipboard
	events    ports.EventSink
	log       *zap.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          domain.SessionState
	sessionID      string
	visitorID      string
	sendBusy       bool
	canReport      bool
	capturePending bool
	recording      ports.RecordingSession
	transcript     *transcriptLog
	report         *reportTracker
}

func NewSessionController(
	api ports.ConsultationAPI,
	capture ports.AudioCapture,
	player ports.Player,
	store ports.SessionStore,
	clipboard ports.Clipboard,
	events ports.EventSink,
	log *zap.Logger,
	cfg Config,
) *SessionController {
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	if cfg.MinUserTurns <= 0 {
		cfg.MinUserTurns = 5
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		api:        api,
		capture:    capture,
		player:     player,
		store:      store,
		clipboard:  clipboard,
		events:     events,
		log:        log,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		state:      domain.SessionStateInitializing,
		transcript: newTranscriptLog(),
	}
	c.report = c.newReportTracker()
	return c
}

func (c *SessionController) newReportTracker() *reportTracker {
	return newReportTracker(
		c.api,
		c.events,
		c.log,
		c.cfg.ReportPollInterval,
		c.cfg.ReportPollTimeout,
		c.handleReportReady,
	)
}

// Begin establishes the conversation: resume a stored session when the
// backend still knows it, otherwise start fresh and seed the greeting.
// A failed attempt leaves the controller in init_failed; Begin may be
// called again for a from-scratch retry.
func (c *SessionController) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.SessionStateActive || c.state == domain.SessionStateDegraded {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.SessionStateInitializing
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateInitializing, domain.SessionReasonStarting)

	if stored, ok := c.store.Get(); ok {
		history, err := c.api.History(ctx, stored)
		if err == nil && history.SessionID != "" {
			c.adoptSession(history.SessionID, history.Messages)
			c.events.SessionStateChanged(domain.SessionStateActive, domain.SessionReasonResumed)
			c.log.Info("resumed stored session", zap.String("sessionId", history.SessionID))
			return nil
		}
		c.log.Debug("stored session not resumable, starting fresh", zap.Error(err))
		_ = c.store.Clear()
	}

	start, err := c.api.StartSession(ctx, c.cfg.Language)
	if err != nil {
		c.mu.Lock()
		c.state = domain.SessionStateInitFailed
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeSessionInit, err.Error())
		c.events.SessionStateChanged(domain.SessionStateInitFailed, domain.SessionReasonInitFailed)
		return err
	}

	c.adoptSession(start.SessionID, nil)
	c.mu.Lock()
	c.visitorID = start.VisitorID
	c.mu.Unlock()

	if err := c.store.Set(start.SessionID); err != nil {
		c.log.Warn("failed to persist session id", zap.Error(err))
	}

	greeting := c.transcript.Append(domain.RoleAssistant, start.Greeting, nil, domain.AgentGreeting)
	c.events.MessageAppended(greeting)
	c.events.SessionStateChanged(domain.SessionStateActive, domain.SessionReasonGreetingReady)
	c.log.Info("session started", zap.String("sessionId", start.SessionID))
	return nil
}

func (c *SessionController) adoptSession(sessionID string, history []domain.ChatMessage) {
	transcript := newTranscriptLog()
	if len(history) > 0 {
		transcript.Restore(history)
	}

	c.mu.Lock()
	old := c.report
	c.report = c.newReportTracker()
	c.sessionID = sessionID
	c.transcript = transcript
	c.canReport = transcript.CountRole(domain.RoleUser) >= c.cfg.MinUserTurns
	c.state = domain.SessionStateActive
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Send submits one text turn. Only one outbound message may be in flight
// per session; concurrent attempts fail with ErrSendInFlight. A transport
// failure degrades the session but never invalidates it.
func (c *SessionController) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	sessionID, err := c.claimSend()
	if err != nil {
		return err
	}
	defer c.releaseSend()

	userMessage := c.transcript.Append(domain.RoleUser, content, nil, "")
	c.events.MessageAppended(userMessage)

	reply, err := c.api.SendMessage(ctx, sessionID, content)
	if err != nil {
		c.recordSendFailure(err)
		return err
	}

	c.recordReply(reply.Content, reply.References, reply.Agent, reply.CanGenerateReport)
	return nil
}

// StartVoice begins a microphone capture for a voice turn. The microphone
// is exclusively owned: a second capture while one is outstanding fails
// with ErrCaptureBusy.
func (c *SessionController) StartVoice(ctx context.Context) error {
	if !c.capture.Supported() {
		return ErrVoiceUnsupported
	}

	c.mu.Lock()
	if c.state != domain.SessionStateActive && c.state != domain.SessionStateDegraded {
		c.mu.Unlock()
		return ErrSessionNotReady
	}
	if c.recording != nil || c.capturePending {
		c.mu.Unlock()
		return ErrCaptureBusy
	}
	c.capturePending = true
	state := c.state
	c.mu.Unlock()

	session, err := c.capture.Start(ctx, c.cfg.Capture)

	c.mu.Lock()
	c.capturePending = false
	if err == nil {
		c.recording = session
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.events.SessionStateChanged(state, domain.SessionReasonVoiceRecording)
	return nil
}

// StopVoice finalizes the capture, submits the clip, and appends the
// transcribed turn plus the assistant reply. A synthesized audio reply, if
// present, is played asynchronously with a completion event.
func (c *SessionController) StopVoice(ctx context.Context) (domain.VoiceReply, error) {
	c.mu.Lock()
	if c.sendBusy {
		c.mu.Unlock()
		return domain.VoiceReply{}, ErrSendInFlight
	}
	handle := c.recording
	if handle == nil {
		c.mu.Unlock()
		return domain.VoiceReply{}, ErrNoActiveRecording
	}
	c.recording = nil
	c.sendBusy = true
	sessionID := c.sessionID
	c.mu.Unlock()
	defer c.releaseSend()

	clip, err := handle.Stop(ctx)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeVoice, err.Error())
		return domain.VoiceReply{}, err
	}

	reply, err := c.api.SendVoiceMessage(ctx, sessionID, clip.Base64, clip.MimeType, c.cfg.EnableTTS)
	if err != nil {
		c.recordSendFailure(err)
		return domain.VoiceReply{}, err
	}

	userMessage := c.transcript.Append(domain.RoleUser, reply.TranscribedText, nil, "")
	c.events.MessageAppended(userMessage)
	c.recordReply(reply.Content, reply.References, reply.Agent, false)

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	c.events.SessionStateChanged(state, domain.SessionReasonVoiceProcessed)

	if reply.AudioBase64 != "" {
		go c.playReply(reply.AudioBase64, reply.AudioFormat)
	}
	return reply, nil
}

// CancelVoice discards an in-progress capture without producing a clip.
func (c *SessionController) CancelVoice() error {
	c.mu.Lock()
	handle := c.recording
	c.recording = nil
	state := c.state
	c.mu.Unlock()

	if handle == nil {
		return ErrNoActiveRecording
	}
	handle.Cancel()
	c.events.SessionStateChanged(state, domain.SessionReasonVoiceDiscarded)
	return nil
}

// Speak synthesizes text through the backend and plays the result,
// returning once playback completes. Absence of an audio payload is not an
// error.
func (c *SessionController) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	reply, err := c.api.Synthesize(ctx, text, c.cfg.Language)
	if err != nil {
		return err
	}
	if reply.AudioBase64 == "" {
		return nil
	}
	return c.player.Play(ctx, reply.AudioBase64, reply.AudioFormat)
}

// RequestReport submits the report request for this session. Submissions
// while one is already generating are no-ops.
func (c *SessionController) RequestReport(ctx context.Context, customerName, customerEmail string) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrSessionNotReady
	}
	sessionID := c.sessionID
	tracker := c.report
	c.mu.Unlock()

	return tracker.Submit(ctx, sessionID, customerName, customerEmail)
}

// Restart abandons the stored session and starts a new conversation.
func (c *SessionController) Restart(ctx context.Context) error {
	c.mu.Lock()
	handle := c.recording
	c.recording = nil
	old := c.report
	c.report = c.newReportTracker()
	c.sessionID = ""
	c.visitorID = ""
	c.canReport = false
	c.transcript = newTranscriptLog()
	c.state = domain.SessionStateInitializing
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if old != nil {
		old.Close()
	}
	_ = c.store.Clear()

	return c.Begin(ctx)
}

// Transcript returns a copy of the visible transcript.
func (c *SessionController) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	transcript := c.transcript
	c.mu.Unlock()
	return transcript.Snapshot()
}

// Status returns a snapshot of the session for the UI.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	reportState, token := domain.ReportStateIdle, ""
	if c.report != nil {
		reportState, token = c.report.State()
	}
	return domain.Status{
		Session:           c.state,
		SessionID:         c.sessionID,
		SendBusy:          c.sendBusy,
		Recording:         c.recording != nil || c.capturePending,
		CanGenerateReport: c.canReport,
		Report:            reportState,
		ReportToken:       token,
	}
}

// Close releases every held resource: an active microphone capture, the
// report poll loop, and any in-flight playback.
func (c *SessionController) Close() {
	c.cancel()

	c.mu.Lock()
	handle := c.recording
	c.recording = nil
	tracker := c.report
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if tracker != nil {
		tracker.Close()
	}
	c.log.Debug("session controller closed")
}

func (c *SessionController) claimSend() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if (c.state != domain.SessionStateActive && c.state != domain.SessionStateDegraded) || c.sessionID == "" {
		return "", ErrSessionNotReady
	}
	if c.sendBusy {
		return "", ErrSendInFlight
	}
	c.sendBusy = true
	return c.sessionID, nil
}

func (c *SessionController) releaseSend() {
	c.mu.Lock()
	c.sendBusy = false
	c.mu.Unlock()
}

// recordSendFailure appends a system-role transcript entry and degrades the
// session. The session id stays valid; the user can keep typing.
func (c *SessionController) recordSendFailure(err error) {
	systemMessage := c.transcript.Append(domain.RoleSystem, err.Error(), nil, "")
	c.events.MessageAppended(systemMessage)
	c.events.SessionError(domain.ErrorCodeTransport, err.Error())

	c.mu.Lock()
	c.state = domain.SessionStateDegraded
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateDegraded, domain.SessionReasonSendFailed)
}

func (c *SessionController) recordReply(content string, refs []domain.RAGReference, agent domain.AgentType, reportFlag bool) {
	assistantMessage := c.transcript.Append(domain.RoleAssistant, content, refs, agent)
	c.events.MessageAppended(assistantMessage)

	c.mu.Lock()
	userTurns := c.transcript.CountRole(domain.RoleUser)
	if reportFlag || userTurns >= c.cfg.MinUserTurns {
		c.canReport = true
	}
	recovered := c.state == domain.SessionStateDegraded
	if recovered {
		c.state = domain.SessionStateActive
	}
	c.mu.Unlock()

	if recovered {
		c.events.SessionStateChanged(domain.SessionStateActive, domain.SessionReasonSendRecovered)
	}
}

func (c *SessionController) playReply(audioBase64, format string) {
	if err := c.player.Play(c.ctx, audioBase64, format); err != nil {
		code := domain.ErrorCodePlayback
		if errors.Is(err, audio.ErrDecode) || errors.Is(err, audio.ErrUnknownFormat) {
			code = domain.ErrorCodeDecode
		}
		c.events.SessionError(code, err.Error())
		return
	}
	c.events.PlaybackFinished()
}

func (c *SessionController) handleReportReady(token string) {
	link := strings.TrimRight(c.cfg.ReportViewerURL, "/") + "/" + token
	if c.clipboard == nil {
		return
	}
	if err := c.clipboard.SetText(c.ctx, link); err != nil {
		c.events.SessionError(domain.ErrorCodeClipboard, "report link ready but clipboard write failed")
		return
	}
	c.log.Info("report link copied to clipboard")
}
