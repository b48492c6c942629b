package text_to_speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pixie-agent/internal/log"
)

const DefaultPiperBinary = "piper"

var tracer = otel.Tracer("pixie-agent/text_to_speech")

// ErrSynthesisFailed wraps any failure of the synthesizer process.
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// Runner runs name with args, feeding stdin to the process.
type Runner func(ctx context.Context, name string, args []string, stdin string) error

type piperImpl struct {
	binary     string
	voiceModel string
	fs         afero.Fs
	scratchDir string
	player     Player
	run        Runner
}

type Config struct {
	// Binary is the piper executable, looked up on PATH.
	Binary     string
	VoiceModel string
	Player     Player
	// Fs is where piper's wav output is read back from. Defaults to the OS.
	Fs         afero.Fs
	ScratchDir string
	// Runner defaults to executing the binary.
	Runner     Runner
}

func NewPiper(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.VoiceModel == "" {
		return nil, fmt.Errorf("voice model is empty")
	}

	if cfg.Player == nil {
		return nil, fmt.Errorf("player is nil")
	}

	p := &piperImpl{
		binary:     cfg.Binary,
		voiceModel: cfg.VoiceModel,
		fs:         cfg.Fs,
		scratchDir: cfg.ScratchDir,
		player:     cfg.Player,
		run:        cfg.Runner,
	}

	if p.binary == "" {
		p.binary = DefaultPiperBinary
	}

	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}

	if p.scratchDir == "" {
		p.scratchDir = afero.GetTempDir(p.fs, "pixie-tts")
	}

	if p.run == nil {
		path, err := exec.LookPath(p.binary)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", p.binary, err)
		}
		p.binary = path
		p.run = execRunner
	}

	return p, nil
}

func execRunner(ctx context.Context, name string, args []string, stdin string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}

func (p *piperImpl) Speak(ctx context.Context, text string) (err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	out := filepath.Join(p.scratchDir, uuid.NewString()+".wav")
	defer func() {
		if rmErr := p.fs.Remove(out); rmErr != nil {
			log.Debug("could not remove synthesized audio", "path", out, "error", rmErr)
		}
	}()

	args := []string{"--model", p.voiceModel, "--output_file", out}
	if err := p.run(ctx, p.binary, args, text); err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	f, err := p.fs.Open(out)
	if err != nil {
		return fmt.Errorf("%w: open output: %w", ErrSynthesisFailed, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return fmt.Errorf("%w: %s is not a valid wav file", ErrSynthesisFailed, out)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("%w: decode output: %w", ErrSynthesisFailed, err)
	}

	log.Debug("playing synthesized speech", "samples", len(buf.Data), "sample_rate", buf.Format.SampleRate)

	return p.player.Play(ctx, buf)
}
