package audio_capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"pixie-agent/internal/log"
)

const miniAudioQueueSize = 64

// MiniAudioSource captures through miniaudio. The device callback slices
// incoming audio into fixed-size frames and queues them for ReadFrame.
type MiniAudioSource struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	sampleRate   int
	frameSize    int

	frames  chan Frame
	pending []int16

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func NewMiniAudioSource(cfg *Config) (*MiniAudioSource, error) {
	c := cfg.withDefaults()

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize miniaudio context: %w", err)
	}

	s := &MiniAudioSource{
		audioContext: audioCtx,
		sampleRate:   c.SampleRate,
		frameSize:    c.FrameSize,
		frames:       make(chan Frame, miniAudioQueueSize),
		closed:       make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Alsa.NoMMap = 1

	s.device, err = malgo.InitDevice(audioCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * malgo.SampleSizeInBytes(malgo.FormatS16)
			if n > len(pInput) {
				n = len(pInput)
			}
			s.onAudio(pInput[:n])
		},
	})
	if err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("initialize capture device: %w", err)
	}

	if err := s.device.Start(); err != nil {
		s.device.Uninit()
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	log.Info("miniaudio capture started", "sample_rate", c.SampleRate, "frame_size", c.FrameSize)

	return s, nil
}

func (s *MiniAudioSource) onAudio(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+1 < len(data); i += 2 {
		s.pending = append(s.pending, int16(binary.LittleEndian.Uint16(data[i:])))
	}

	for len(s.pending) >= s.frameSize {
		frame := NewFrame(s.pending[:s.frameSize], s.sampleRate)
		s.pending = s.pending[s.frameSize:]

		select {
		case s.frames <- frame:
		case <-s.closed:
			return
		default:
			log.Debug("capture queue full, dropping frame")
		}
	}
}

func (s *MiniAudioSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.closed:
		return Frame{}, ErrSourceClosed
	case frame := <-s.frames:
		return frame, nil
	}
}

func (s *MiniAudioSource) Close() error {
	s.once.Do(func() {
		close(s.closed)

		if err := s.device.Stop(); err != nil {
			log.Warn("error stopping capture device", "error", err)
		}
		s.device.Uninit()

		if err := s.audioContext.Uninit(); err != nil {
			log.Warn("error releasing miniaudio context", "error", err)
		}
		s.audioContext.Free()
	})

	return nil
}
