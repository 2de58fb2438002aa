package bootstrap

import (
	"go.uber.org/zap"

	"arumi/internal/audio"
	"arumi/internal/config"
	"arumi/internal/observability"
	"arumi/internal/ports"
	"arumi/internal/providers/arumi"
	"arumi/internal/sessionstore"
	"arumi/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *zap.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return Services{}, err
	}

	probe := audio.NewFFMPEGProbe(cfg.Audio.RecorderCommand)
	capture := audio.NewCapture(cfg.Audio.RecorderCommand, probe, logger.Named("capture"))
	sink := audio.NewFFPlaySink(cfg.Audio.PlayerCommand)
	player := audio.NewPlayer(sink, cfg.Audio.PlaybackSampleRate, logger.Named("playback"))

	client := arumi.NewClient(arumi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, logger.Named("api"))

	controller := usecase.NewSessionController(
		client,
		capture,
		player,
		sessionstore.NewFileStore(cfg.Session.StorePath),
		clipboard,
		eventSink,
		logger.Named("session"),
		usecase.Config{
			Language: cfg.API.Language,
			Capture: ports.CaptureConfig{
				MaxDuration: cfg.Voice.MaxRecording,
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			EnableTTS:          cfg.Voice.EnableTTS,
			MinUserTurns:       cfg.Report.MinUserTurns,
			ReportPollInterval: cfg.Report.PollInterval,
			ReportPollTimeout:  cfg.Report.PollTimeout,
			ReportViewerURL:    cfg.Report.ViewerURL,
		},
	)

	return Services{Controller: controller, Config: cfg, Logger: logger}, nil
}
