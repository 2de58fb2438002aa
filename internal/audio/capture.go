package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arumi/internal/domain"
	"arumi/internal/ports"
)

var (
	// ErrMicPermission reports a denied microphone device.
	ErrMicPermission = errors.New("microphone access denied")
	// ErrMicUnavailable reports a missing or failed capture device.
	ErrMicUnavailable = errors.New("microphone unavailable")
	// ErrCaptureTerminated reports a second stop/cancel on a finished session.
	ErrCaptureTerminated = errors.New("capture session already terminated")
)

// encodingCandidate maps a recording encoding to the ffmpeg encoder that
// produces it. An empty Encoder is the always-available raw fallback.
type encodingCandidate struct {
	Encoder  string
	MimeType string
	args     []string
}

// Candidates are tried in order; the first one the platform encoder set
// supports wins. The raw WAV fallback is only used when none match.
var encodingCandidates = []encodingCandidate{
	{Encoder: "libopus", MimeType: "audio/webm;codecs=opus", args: []string{"-c:a", "libopus", "-b:a", "32k", "-f", "webm"}},
	{Encoder: "libvorbis", MimeType: "audio/webm", args: []string{"-c:a", "libvorbis", "-f", "webm"}},
	{Encoder: "aac", MimeType: "audio/mp4", args: []string{"-c:a", "aac", "-movflags", "frag_keyframe+empty_moov", "-f", "mp4"}},
	{Encoder: "libopus", MimeType: "audio/ogg;codecs=opus", args: []string{"-c:a", "libopus", "-b:a", "32k", "-f", "ogg"}},
}

var rawFallback = encodingCandidate{
	MimeType: "audio/wav",
	args:     []string{"-c:a", "pcm_s16le", "-f", "wav"},
}

// selectEncoding picks the first candidate the probe reports supported.
func selectEncoding(probe ports.EncoderProbe) encodingCandidate {
	for _, candidate := range encodingCandidates {
		if probe.Supports(candidate.Encoder) {
			return candidate
		}
	}
	return rawFallback
}

// Capture records microphone clips using an ffmpeg subprocess.
type Capture struct {
	command string
	probe   ports.EncoderProbe
	log     *zap.Logger
}

func NewCapture(command string, probe ports.EncoderProbe, log *zap.Logger) *Capture {
	if command == "" {
		command = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Capture{command: command, probe: probe, log: log}
}

// Supported reports whether the recording pipeline is usable at all.
func (c *Capture) Supported() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

// Start begins a microphone capture session. The session auto-stops once
// cfg.MaxDuration elapses; a later Stop packages the finalized clip.
func (c *Capture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.RecordingSession, error) {
	if !c.Supported() {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrMicUnavailable, c.command)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 60 * time.Second
	}

	encoding := selectEncoding(c.probe)
	c.log.Debug("negotiated recording encoding",
		zap.String("mimeType", encoding.MimeType),
		zap.String("encoder", encoding.Encoder),
	)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	args = append(args, encoding.args...)
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	session := &captureSession{
		mimeType: encoding.MimeType,
		process:  cmd.Process,
		stderr:   &stderr,
		waitErr:  waitErr,
		readDone: make(chan struct{}),
		log:      c.log,
	}
	go session.collect(stdout)

	// Fail fast when the device is missing or access is denied; ffmpeg
	// exits almost immediately in both cases.
	select {
	case <-waitErr:
		<-session.readDone
		return nil, captureStartError(stderr.String())
	case <-time.After(250 * time.Millisecond):
	}

	session.autoStop = time.AfterFunc(cfg.MaxDuration, func() {
		c.log.Debug("recording reached max duration, auto-stopping")
		session.finishProcess()
	})

	return session, nil
}

func captureStartError(stderr string) error {
	detail := strings.TrimSpace(stderr)
	base := ErrMicUnavailable
	lowered := strings.ToLower(detail)
	if strings.Contains(lowered, "denied") || strings.Contains(lowered, "not authorized") {
		base = ErrMicPermission
	}
	if detail == "" {
		return fmt.Errorf("%w: ffmpeg exited before capture started", base)
	}
	return fmt.Errorf("%w: %s", base, detail)
}

type captureSession struct {
	mimeType string
	process  *os.Process
	stderr   *bytes.Buffer
	waitErr  <-chan error
	log      *zap.Logger

	bufMu    sync.Mutex
	buf      bytes.Buffer
	readDone chan struct{}

	autoStop *time.Timer

	termMu     sync.Mutex
	terminated bool

	finishOnce sync.Once
}

func (s *captureSession) collect(stdout io.ReadCloser) {
	defer close(s.readDone)

	chunk := make([]byte, 4096)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			s.bufMu.Lock()
			s.buf.Write(chunk[:n])
			s.bufMu.Unlock()
		}
		if err != nil {
			_ = stdout.Close()
			return
		}
	}
}

// claimTerminal marks the session finished; only the first caller wins.
func (s *captureSession) claimTerminal() bool {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	return true
}

// finishProcess asks ffmpeg to flush and finalize the container, escalating
// to a hard kill if it does not exit promptly. Safe to call repeatedly.
func (s *captureSession) finishProcess() {
	s.finishOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case <-s.waitErr:
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.waitErr
		}
	})
}

// Stop finalizes the capture and returns the encoded clip. If the
// auto-stop timer already fired, the buffered finalized data is packaged
// immediately.
func (s *captureSession) Stop(ctx context.Context) (domain.EncodedClip, error) {
	if !s.claimTerminal() {
		return domain.EncodedClip{}, ErrCaptureTerminated
	}
	if s.autoStop != nil {
		s.autoStop.Stop()
	}

	s.finishProcess()

	select {
	case <-s.readDone:
	case <-ctx.Done():
		if s.process != nil {
			_ = s.process.Kill()
		}
		<-s.readDone
		return domain.EncodedClip{}, ctx.Err()
	}

	s.bufMu.Lock()
	data := append([]byte(nil), s.buf.Bytes()...)
	s.bufMu.Unlock()

	if len(data) == 0 {
		detail := strings.TrimSpace(s.stderr.String())
		if detail != "" {
			return domain.EncodedClip{}, fmt.Errorf("no audio captured: %s", detail)
		}
		return domain.EncodedClip{}, errors.New("no audio captured")
	}

	return domain.EncodedClip{
		Data:     data,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: s.mimeType,
	}, nil
}

// Cancel discards the recording and releases the microphone. No clip is
// produced.
func (s *captureSession) Cancel() {
	if !s.claimTerminal() {
		return
	}
	if s.autoStop != nil {
		s.autoStop.Stop()
	}
	if s.process != nil {
		_ = s.process.Kill()
	}
	<-s.waitErr
	<-s.readDone

	s.bufMu.Lock()
	s.buf.Reset()
	s.bufMu.Unlock()
}
