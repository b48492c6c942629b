package audio_capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"pixie-agent/internal/log"
)

// PortAudioSource reads frames from the default input device.
type PortAudioSource struct {
	stream     *portaudio.Stream
	in         []int16
	sampleRate int

	mu     sync.Mutex
	closed bool
}

func NewPortAudioSource(cfg *Config) (*PortAudioSource, error) {
	c := cfg.withDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	in := make([]int16, c.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.SampleRate), len(in), in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	log.Info("portaudio capture started", "sample_rate", c.SampleRate, "frame_size", c.FrameSize)

	return &PortAudioSource{
		stream:     stream,
		in:         in,
		sampleRate: c.SampleRate,
	}, nil
}

func (s *PortAudioSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}

	err := s.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return Frame{}, fmt.Errorf("read input stream: %w", err)
	}

	return NewFrame(s.in, s.sampleRate), nil
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.stream.Stop(); err != nil {
		log.Warn("error stopping input stream", "error", err)
	}

	if err := s.stream.Close(); err != nil {
		log.Warn("error closing input stream", "error", err)
	}

	return portaudio.Terminate()
}
