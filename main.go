package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pixie-agent/audio_capture"
	"pixie-agent/clients/ai_bot"
	"pixie-agent/conversation"
	"pixie-agent/internal/log"
	"pixie-agent/listener"
	"pixie-agent/orchestrator"
	"pixie-agent/speech_to_text"
	"pixie-agent/text_to_speech"
	"pixie-agent/tools"
)

type options struct {
	whisperModel   string
	language       string
	ollamaHost     string
	llm            string
	keyword        string
	recordDuration time.Duration
	inferTimeout   time.Duration
	backend        string
	inputWav       string
	archiveDir     string
	piper          string
	voiceModel     string
	text           bool
	mute           bool
	logLevel       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pixie",
		Short: "Offline voice agent",
		Long: `Pixie listens for its wake word, records the spoken command, transcribes it
and asks a local language model what to do. The model either answers directly
or calls one of the built-in tools, and the answer is spoken back.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.whisperModel, "model", "m", os.Getenv("PIXIE_WHISPER_MODEL"), "model file for whisper")
	flags.StringVar(&opts.language, "language", envOr("PIXIE_LANGUAGE", "en"), "spoken language passed to whisper")
	flags.StringVar(&opts.ollamaHost, "ollama-host", envOr("OLLAMA_HOST", ai_bot.DefaultApiHost), "Ollama server address")
	flags.StringVar(&opts.llm, "llm", envOr("PIXIE_LLM", ai_bot.DefaultModel), "language model served by Ollama")
	flags.StringVar(&opts.keyword, "keyword", envOr("PIXIE_KEYWORD", listener.DefaultKeyword), "wake word")
	flags.DurationVar(&opts.recordDuration, "record-duration", orchestrator.DefaultRecordDuration, "how long to record after the wake word")
	flags.DurationVar(&opts.inferTimeout, "infer-timeout", conversation.DefaultInferTimeout, "upper bound for one model call")
	flags.StringVar(&opts.backend, "backend", "portaudio", "audio capture backend: portaudio or miniaudio")
	flags.StringVar(&opts.inputWav, "input-wav", "", "replay a mono 16-bit wav file instead of the microphone")
	flags.StringVar(&opts.archiveDir, "archive-dir", "", "keep a wav copy of every recorded command in this directory")
	flags.StringVar(&opts.piper, "piper", envOr("PIXIE_PIPER", text_to_speech.DefaultPiperBinary), "piper executable")
	flags.StringVar(&opts.voiceModel, "voice-model", os.Getenv("PIXIE_VOICE_MODEL"), "piper voice model")
	flags.BoolVar(&opts.text, "text", false, "read commands from stdin instead of the microphone")
	flags.BoolVar(&opts.mute, "mute", false, "print replies instead of speaking them")
	flags.StringVar(&opts.logLevel, "log-level", envOr("PIXIE_LOG_LEVEL", "info"), "debug, info, warn or error")

	return cmd
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func run(ctx context.Context, opts *options) error {
	log.Init(opts.logLevel)

	registry, err := tools.NewRegistry(tools.Builtins()...)
	if err != nil {
		return fmt.Errorf("error with tools.NewRegistry: %w", err)
	}

	bot, err := ai_bot.NewClient(&ai_bot.Config{
		ApiHost: opts.ollamaHost,
		Model:   opts.llm,
	})
	if err != nil {
		return fmt.Errorf("error with ai_bot.NewClient: %w", err)
	}

	session, err := conversation.New(&conversation.Config{
		Model:        bot,
		Tools:        registry,
		InferTimeout: opts.inferTimeout,
	})
	if err != nil {
		return fmt.Errorf("error with conversation.New: %w", err)
	}

	speaker, closeSpeaker, err := newSpeaker(opts)
	if err != nil {
		return err
	}
	defer closeSpeaker()

	cfg := &orchestrator.Config{
		Conversation:   session,
		Speaker:        speaker,
		RecordDuration: opts.recordDuration,
	}

	if opts.text {
		cfg.Commands, err = orchestrator.NewLineSource(os.Stdin, os.Stdout, "You: ")
		if err != nil {
			return fmt.Errorf("error with orchestrator.NewLineSource: %w", err)
		}
	} else {
		closeModel, err := wireVoiceInput(cfg, opts)
		if err != nil {
			return err
		}
		defer closeModel()
	}

	agent, err := orchestrator.New(cfg)
	if err != nil {
		return fmt.Errorf("error with orchestrator.New: %w", err)
	}

	log.Info("pixie ready", "llm", opts.llm, "ollama_host", opts.ollamaHost, "text_mode", opts.text, "tools", registry.Names())

	return agent.Run(ctx)
}

func newSpeaker(opts *options) (text_to_speech.Interface, func(), error) {
	if opts.text || opts.mute {
		speaker, err := text_to_speech.NewWriterSpeaker(os.Stdout, "Pixie: ")
		if err != nil {
			return nil, nil, fmt.Errorf("error with text_to_speech.NewWriterSpeaker: %w", err)
		}

		return speaker, func() {}, nil
	}

	if opts.voiceModel == "" {
		return nil, nil, fmt.Errorf("error: voice model not specified, use --voice-model or --mute")
	}

	player, err := text_to_speech.NewPortAudioPlayer()
	if err != nil {
		return nil, nil, fmt.Errorf("error with text_to_speech.NewPortAudioPlayer: %w", err)
	}

	speaker, err := text_to_speech.NewPiper(&text_to_speech.Config{
		Binary:     opts.piper,
		VoiceModel: opts.voiceModel,
		Player:     player,
	})
	if err != nil {
		_ = player.Close()
		return nil, nil, fmt.Errorf("error with text_to_speech.NewPiper: %w", err)
	}

	return speaker, func() {
		if err := player.Close(); err != nil {
			log.Warn("error closing audio output", "error", err)
		}
	}, nil
}

// wireVoiceInput fills in the audio side of cfg. The returned func releases
// the whisper model.
func wireVoiceInput(cfg *orchestrator.Config, opts *options) (func(), error) {
	if opts.whisperModel == "" {
		return nil, fmt.Errorf("error: model file not specified")
	}

	model, err := whisper.New(opts.whisperModel)
	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}

	release := func() {
		if err := model.Close(); err != nil {
			log.Warn("error closing whisper model", "error", err)
		}
	}

	fail := func(err error) (func(), error) {
		release()
		return nil, err
	}

	engine, err := speech_to_text.NewWhisperEngine(model, opts.language)
	if err != nil {
		return fail(fmt.Errorf("error with speech_to_text.NewWhisperEngine: %w", err))
	}

	sttEngine, err := speech_to_text.New(&speech_to_text.Config{Engine: engine})
	if err != nil {
		return fail(fmt.Errorf("error with speech_to_text.New: %w", err))
	}

	keyword, err := listener.NewKeywordEngine(&listener.KeywordConfig{
		Keyword:     opts.keyword,
		Transcriber: sttEngine,
	})
	if err != nil {
		return fail(fmt.Errorf("error with listener.NewKeywordEngine: %w", err))
	}

	detector, err := listener.NewDetector(&listener.DetectorConfig{Engine: keyword})
	if err != nil {
		return fail(fmt.Errorf("error with listener.NewDetector: %w", err))
	}

	recorderCfg := &listener.RecorderConfig{}
	if opts.archiveDir != "" {
		recorderCfg.Archiver, err = listener.NewArchiver(afero.NewOsFs(), opts.archiveDir)
		if err != nil {
			return fail(fmt.Errorf("error with listener.NewArchiver: %w", err))
		}
	}

	recorder, err := listener.NewRecorder(recorderCfg)
	if err != nil {
		return fail(fmt.Errorf("error with listener.NewRecorder: %w", err))
	}

	source, err := newSource(opts)
	if err != nil {
		return fail(err)
	}

	cfg.Source = source
	cfg.Detector = detector
	cfg.Recorder = recorder
	cfg.Transcriber = sttEngine

	return release, nil
}

func newSource(opts *options) (audio_capture.Source, error) {
	if opts.inputWav != "" {
		source, err := audio_capture.NewWavSource(afero.NewOsFs(), opts.inputWav, nil)
		if err != nil {
			return nil, fmt.Errorf("error with audio_capture.NewWavSource: %w", err)
		}

		return source, nil
	}

	switch opts.backend {
	case "portaudio":
		source, err := audio_capture.NewPortAudioSource(nil)
		if err != nil {
			return nil, fmt.Errorf("error with audio_capture.NewPortAudioSource: %w", err)
		}

		return source, nil
	case "miniaudio":
		source, err := audio_capture.NewMiniAudioSource(nil)
		if err != nil {
			return nil, fmt.Errorf("error with audio_capture.NewMiniAudioSource: %w", err)
		}

		return source, nil
	default:
		return nil, fmt.Errorf("error: unknown audio backend %q", opts.backend)
	}
}
