package audio_capture

import (
	"context"
	"errors"
)

const (
	DefaultSampleRate = 16000
	DefaultFrameSize  = 1024
)

// ErrSourceClosed is returned by ReadFrame after Close.
var ErrSourceClosed = errors.New("audio source closed")

// Source produces fixed-size mono PCM frames. ReadFrame returns io.EOF once
// the stream has ended. An empty frame means no audio is available yet.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

type Config struct {
	SampleRate int
	FrameSize  int
}

func (cfg *Config) withDefaults() Config {
	out := Config{SampleRate: DefaultSampleRate, FrameSize: DefaultFrameSize}
	if cfg == nil {
		return out
	}

	if cfg.SampleRate > 0 {
		out.SampleRate = cfg.SampleRate
	}

	if cfg.FrameSize > 0 {
		out.FrameSize = cfg.FrameSize
	}

	return out
}
