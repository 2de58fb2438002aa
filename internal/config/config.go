package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the desktop client.
type Config struct {
	API     APIConfig
	Audio   AudioConfig
	Voice   VoiceConfig
	Report  ReportConfig
	Session SessionConfig
	Logger  LoggerConfig
}

type APIConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Language string
}

type AudioConfig struct {
	RecorderCommand    string
	PlayerCommand      string
	InputFormat        string
	InputDevice        string
	SampleRate         int
	Channels           int
	PlaybackSampleRate int
}

type VoiceConfig struct {
	MaxRecording time.Duration
	EnableTTS    bool
}

type ReportConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	ViewerURL    string
	MinUserTurns int
}

type SessionConfig struct {
	StorePath string
}

type LoggerConfig struct {
	Level string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	storePath := strings.TrimSpace(os.Getenv("ARUMI_SESSION_FILE"))
	if storePath == "" {
		storePath = filepath.Join(home, ".config", "arumi", "session")
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:  envOrDefault("ARUMI_API_BASE", "http://localhost:8000/api"),
			Timeout:  time.Duration(envOrDefaultInt("ARUMI_API_TIMEOUT_MS", 30000)) * time.Millisecond,
			Language: envOrDefault("ARUMI_LANGUAGE", "ja"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("ARUMI_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("ARUMI_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("ARUMI_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("ARUMI_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate:         envOrDefaultInt("ARUMI_SAMPLE_RATE", 16000),
			Channels:           envOrDefaultInt("ARUMI_CHANNELS", 1),
			PlaybackSampleRate: envOrDefaultInt("ARUMI_PLAYBACK_SAMPLE_RATE", 24000),
		},
		Voice: VoiceConfig{
			MaxRecording: time.Duration(envOrDefaultInt("ARUMI_MAX_RECORDING_MS", 60000)) * time.Millisecond,
			EnableTTS:    envOrDefaultBool("ARUMI_ENABLE_TTS", true),
		},
		Report: ReportConfig{
			PollInterval: time.Duration(envOrDefaultInt("ARUMI_REPORT_POLL_MS", 5000)) * time.Millisecond,
			PollTimeout:  time.Duration(envOrDefaultInt("ARUMI_REPORT_POLL_TIMEOUT_MS", 0)) * time.Millisecond,
			ViewerURL:    envOrDefault("ARUMI_REPORT_URL", "http://localhost:3000/report"),
			MinUserTurns: envOrDefaultInt("ARUMI_MIN_TURNS_FOR_REPORT", 5),
		},
		Session: SessionConfig{
			StorePath: storePath,
		},
		Logger: LoggerConfig{
			Level: envOrDefault("ARUMI_LOG_LEVEL", "info"),
		},
	}

	if cfg.API.Language != "ja" && cfg.API.Language != "ko" {
		cfg.API.Language = "ja"
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.PlaybackSampleRate <= 0 {
		cfg.Audio.PlaybackSampleRate = 24000
	}
	if cfg.Voice.MaxRecording <= 0 {
		cfg.Voice.MaxRecording = 60 * time.Second
	}
	if cfg.Report.PollInterval <= 0 {
		cfg.Report.PollInterval = 5 * time.Second
	}
	if cfg.Report.PollTimeout < 0 {
		cfg.Report.PollTimeout = 0
	}
	if cfg.Report.MinUserTurns <= 0 {
		cfg.Report.MinUserTurns = 5
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
