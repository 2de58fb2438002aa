package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// FFPlaySink renders audio through an ffplay subprocess.
type FFPlaySink struct {
	command string
}

func NewFFPlaySink(command string) *FFPlaySink {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlaySink{command: command}
}

func (s *FFPlaySink) PlayPCM(ctx context.Context, samples []float32, sampleRate int) error {
	frames := make([]byte, 4*len(samples))
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(frames[4*i:], math.Float32bits(sample))
	}

	return s.run(ctx, frames,
		"-f", "f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
	)
}

func (s *FFPlaySink) PlayEncoded(ctx context.Context, data []byte) error {
	return s.run(ctx, data)
}

func (s *FFPlaySink) run(ctx context.Context, data []byte, inputArgs ...string) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-autoexit",
		"-nodisp",
	}
	args = append(args, inputArgs...)
	args = append(args, "-i", "-")

	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("playback failed: %w: %s", err, detail)
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}
