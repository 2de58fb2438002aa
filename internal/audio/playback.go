package audio

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"arumi/internal/ports"
)

// Format is the closed set of audio payload formats the backend produces.
type Format string

const (
	// FormatPCM is legacy raw audio: 24kHz 16-bit signed little-endian mono.
	FormatPCM Format = "pcm"
	// FormatMP3 is compressed audio decoded by the platform decoder.
	FormatMP3 Format = "mp3"
)

var (
	// ErrUnknownFormat rejects payloads outside the recognized format set.
	ErrUnknownFormat = errors.New("unrecognized audio format")
	// ErrDecode reports malformed base64 or undecodable audio.
	ErrDecode = errors.New("audio decode failed")
)

// ParseFormat maps a wire format tag onto the recognized set. An empty tag
// means legacy PCM; anything else unknown is rejected rather than treated
// as PCM.
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "mp3":
		return FormatMP3, nil
	case "", "pcm":
		return FormatPCM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, tag)
	}
}

// DecodePCM16 decodes base64 16-bit signed little-endian mono samples into
// normalized floats in [-1, 1].
func DecodePCM16(audioBase64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: truncated 16-bit sample data", ErrDecode)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return samples, nil
}

// Player renders one base64 audio payload per call and returns when
// playback completes. Callers wanting sequential playback serialize calls
// themselves.
type Player struct {
	sink       ports.AudioSink
	sampleRate int
	log        *zap.Logger
}

func NewPlayer(sink ports.AudioSink, sampleRate int, log *zap.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{sink: sink, sampleRate: sampleRate, log: log}
}

func (p *Player) Play(ctx context.Context, audioBase64 string, format string) error {
	parsed, err := ParseFormat(format)
	if err != nil {
		return err
	}

	switch parsed {
	case FormatMP3:
		data, err := base64.StdEncoding.DecodeString(audioBase64)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if len(data) == 0 {
			return fmt.Errorf("%w: empty audio payload", ErrDecode)
		}
		p.log.Debug("playing compressed audio", zap.Int("bytes", len(data)))
		return p.sink.PlayEncoded(ctx, data)
	default:
		samples, err := DecodePCM16(audioBase64)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return fmt.Errorf("%w: empty audio payload", ErrDecode)
		}
		p.log.Debug("playing pcm audio",
			zap.Int("samples", len(samples)),
			zap.Int("sampleRate", p.sampleRate),
		)
		return p.sink.PlayPCM(ctx, samples, p.sampleRate)
	}
}
