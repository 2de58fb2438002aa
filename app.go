package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"arumi/internal/audio"
	"arumi/internal/bootstrap"
	"arumi/internal/config"
	"arumi/internal/domain"
	"arumi/internal/usecase"
)

const (
	eventSession  = "arumi:session"
	eventMessage  = "arumi:message"
	eventReport   = "arumi:report"
	eventPlayback = "arumi:playback"
	eventError    = "arumi:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	log        *zap.Logger
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.log = services.Logger
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// StartChat establishes (or resumes) the consultation session. Invoked on
// mount and again by the explicit retry affordance after an init failure.
func (a *App) StartChat() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Begin(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// RestartChat discards the stored session and starts a new conversation.
func (a *App) RestartChat() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Restart(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// SendMessage submits one text turn.
func (a *App) SendMessage(content string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Send(a.ctx, content)
}

// StartVoice begins microphone recording for a voice turn.
func (a *App) StartVoice() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.StartVoice(a.ctx); err != nil {
		a.SessionError(voiceErrorCode(err), err.Error())
		return err
	}
	return nil
}

// StopVoice stops recording and submits the captured clip.
func (a *App) StopVoice() (domain.VoiceReply, error) {
	if err := a.requireReady(); err != nil {
		return domain.VoiceReply{}, err
	}
	return a.controller.StopVoice(a.ctx)
}

// CancelVoice discards an in-progress recording.
func (a *App) CancelVoice() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.CancelVoice(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveRecording) {
			return nil
		}
		return err
	}
	return nil
}

// RequestReport submits contact details and starts report generation.
func (a *App) RequestReport(customerName, customerEmail string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RequestReport(a.ctx, customerName, customerEmail)
}

// SpeakMessage reads an assistant message aloud via backend synthesis.
func (a *App) SpeakMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Speak(a.ctx, text)
}

// GetTranscript returns the visible transcript.
func (a *App) GetTranscript() []domain.ChatMessage {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{Session: domain.SessionStateInitFailed, Message: a.bootErr.Error()}
		}
		return domain.Status{Session: domain.SessionStateInitializing}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"apiBase":      a.cfg.API.BaseURL,
		"language":     a.cfg.API.Language,
		"audioInput":   a.cfg.Audio.InputDevice,
		"audioFormat":  a.cfg.Audio.InputFormat,
		"pollInterval": a.cfg.Report.PollInterval.String(),
		"reportViewer": a.cfg.Report.ViewerURL,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func voiceErrorCode(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, usecase.ErrVoiceUnsupported):
		return domain.ErrorCodeUnsupported
	case errors.Is(err, audio.ErrMicPermission):
		return domain.ErrorCodePermission
	default:
		return domain.ErrorCodeVoice
	}
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// MessageAppended emits each new transcript entry.
func (a *App) MessageAppended(message domain.ChatMessage) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMessage, message)
}

// ReportStateChanged emits report tracker transitions.
func (a *App) ReportStateChanged(state domain.ReportState, token string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventReport, map[string]string{
		"state": string(state),
		"token": token,
	})
}

// PlaybackFinished signals that a synthesized reply finished playing.
func (a *App) PlaybackFinished() {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPlayback, map[string]bool{"finished": true})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonStarting:
		return "Connecting..."
	case domain.SessionReasonGreetingReady:
		return "Consultation ready"
	case domain.SessionReasonResumed:
		return "Conversation resumed"
	case domain.SessionReasonSendFailed:
		return "Message failed to send"
	case domain.SessionReasonSendRecovered:
		return "Connection recovered"
	case domain.SessionReasonInitFailed:
		return "Could not connect. Please retry."
	case domain.SessionReasonSessionClosed:
		return "Session closed"
	case domain.SessionReasonVoiceRecording:
		return "Recording... tap to stop"
	case domain.SessionReasonVoiceProcessed:
		return "Voice message processed"
	case domain.SessionReasonVoiceDiscarded:
		return "Recording discarded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Please allow microphone access"
	case domain.ErrorCodeUnsupported:
		return "Voice input is not available on this device"
	case domain.ErrorCodeTransport:
		return "Connection issue"
	case domain.ErrorCodeDecode:
		return "Audio reply could not be decoded"
	case domain.ErrorCodePlayback:
		return "Audio playback issue"
	case domain.ErrorCodeSessionInit:
		return "Could not start the consultation"
	case domain.ErrorCodeReport:
		return "Report generation failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeVoice:
		return "Voice message failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
