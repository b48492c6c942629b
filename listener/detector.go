package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pixie-agent/audio_capture"
	"pixie-agent/internal/log"
)

const defaultPollInterval = 10 * time.Millisecond

type detectorImpl struct {
	engine       WakeWordEngine
	pollInterval time.Duration
}

type DetectorConfig struct {
	Engine WakeWordEngine
	// PollInterval is how long to wait when the source has no audio yet.
	PollInterval time.Duration
}

func NewDetector(cfg *DetectorConfig) (Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &detectorImpl{
		engine:       cfg.Engine,
		pollInterval: pollInterval,
	}, nil
}

func (d *detectorImpl) Detect(ctx context.Context, source audio_capture.Source) bool {
	log.Debug("waiting for wake")

	for {
		if ctx.Err() != nil {
			return false
		}

		frame, err := source.ReadFrame(ctx)
		switch {
		case errors.Is(err, io.EOF):
			log.Info("audio stream ended while waiting for wake")
			return false
		case ctx.Err() != nil:
			return false
		case err != nil:
			log.Error("error reading audio while waiting for wake", "error", err)
			return false
		}

		if frame.Len() == 0 {
			if !sleep(ctx, d.pollInterval) {
				return false
			}
			continue
		}

		if d.engine.Accept(frame) {
			log.Info("wake word detected")
			return true
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
