package audio_capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WavSource replays a mono 16-bit wav file as a frame stream.
type WavSource struct {
	file       afero.File
	decoder    *wav.Decoder
	buf        *audio.IntBuffer
	sampleRate int

	mu        sync.Mutex
	exhausted bool
	closed    bool
}

func NewWavSource(fs afero.Fs, path string, cfg *Config) (*WavSource, error) {
	c := cfg.withDefaults()

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	if decoder.NumChans != 1 || decoder.BitDepth != 16 {
		_ = f.Close()
		return nil, fmt.Errorf("%s: want mono 16-bit audio, got %d channels at %d bits",
			path, decoder.NumChans, decoder.BitDepth)
	}

	return &WavSource{
		file:       f,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  int(decoder.SampleRate),
			},
			Data:           make([]int, c.FrameSize),
			SourceBitDepth: 16,
		},
	}, nil
}

func (s *WavSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}

	if s.exhausted {
		return Frame{}, io.EOF
	}

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Frame{}, fmt.Errorf("decode wav: %w", err)
	}

	if n == 0 {
		s.exhausted = true
		return Frame{}, io.EOF
	}

	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(s.buf.Data[i])
	}

	return Frame{samples: samples, sampleRate: s.sampleRate}, nil
}

// Exhausted reports whether the whole file has been read.
func (s *WavSource) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exhausted
}

func (s *WavSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.file.Close()
}
