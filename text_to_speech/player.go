package text_to_speech

import (
	"context"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

const playbackFrameSize = 1024

// PortAudioPlayer plays mono audio on the default output device.
type PortAudioPlayer struct{}

func NewPortAudioPlayer() (*PortAudioPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	return &PortAudioPlayer{}, nil
}

func (p *PortAudioPlayer) Play(ctx context.Context, buf *audio.IntBuffer) error {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	out := make([]int16, playbackFrameSize*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(buf.Format.SampleRate), playbackFrameSize, out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(buf.Data); offset += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy16(out, buf.Data[offset:], buf.SourceBitDepth)
		clear(out[n:])

		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}

	return nil
}

func (p *PortAudioPlayer) Close() error {
	return portaudio.Terminate()
}

// copy16 scales samples of the given bit depth into dst and returns how many
// were copied.
func copy16(dst []int16, src []int, bitDepth int) int {
	n := min(len(dst), len(src))
	shift := 0
	if bitDepth > 16 {
		shift = bitDepth - 16
	}

	for i := 0; i < n; i++ {
		dst[i] = int16(src[i] >> shift)
	}

	return n
}
