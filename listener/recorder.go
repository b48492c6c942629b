package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixie-agent/audio_capture"
	"pixie-agent/internal/log"
)

// ErrRecordingFailed means no audio at all was captured for a command.
var ErrRecordingFailed = errors.New("recording failed: no audio captured")

type recorderImpl struct {
	archiver     *Archiver
	pollInterval time.Duration
}

type RecorderConfig struct {
	// Archiver, when set, keeps a wav copy of every recorded command.
	Archiver     *Archiver
	PollInterval time.Duration
}

func NewRecorder(cfg *RecorderConfig) (Recorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &recorderImpl{
		archiver:     cfg.Archiver,
		pollInterval: pollInterval,
	}, nil
}

func (r *recorderImpl) Record(ctx context.Context, source audio_capture.Source, duration time.Duration) (*audio_capture.Utterance, error) {
	log.Debug("expecting a command", "duration", duration)

	utterance := audio_capture.NewUtterance()

	var cause error
	for utterance.NumFrames() == 0 || utterance.Duration() < duration {
		frame, err := source.ReadFrame(ctx)
		if err != nil {
			cause = err
			break
		}

		if frame.Len() == 0 {
			if !sleep(ctx, r.pollInterval) {
				cause = ctx.Err()
				break
			}
			continue
		}

		utterance.Append(frame)
	}

	if utterance.NumFrames() == 0 {
		if cause != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecordingFailed, cause)
		}
		return nil, ErrRecordingFailed
	}

	if cause != nil {
		log.Warn("recording cut short", "error", cause, "captured", utterance.Duration())
	}

	if r.archiver != nil {
		if path, err := r.archiver.Save(utterance); err != nil {
			log.Warn("error archiving command audio", "error", err)
		} else {
			log.Debug("archived command audio", "path", path)
		}
	}

	return utterance, nil
}
