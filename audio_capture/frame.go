package audio_capture

import (
	"math"
	"time"

	"github.com/go-audio/audio"
)

// Frame is an immutable block of signed 16-bit mono samples.
type Frame struct {
	samples    []int16
	sampleRate int
}

// NewFrame copies samples into a new frame.
func NewFrame(samples []int16, sampleRate int) Frame {
	data := make([]int16, len(samples))
	copy(data, samples)

	return Frame{samples: data, sampleRate: sampleRate}
}

func (f Frame) Len() int {
	return len(f.samples)
}

func (f Frame) SampleRate() int {
	return f.sampleRate
}

// Samples returns a copy of the frame's samples.
func (f Frame) Samples() []int16 {
	data := make([]int16, len(f.samples))
	copy(data, f.samples)

	return data
}

func (f Frame) Duration() time.Duration {
	return samplesToDuration(len(f.samples), f.sampleRate)
}

// Utterance is the concatenation of the frames captured for one command.
type Utterance struct {
	samples    []int16
	sampleRate int
	frames     int
}

func NewUtterance() *Utterance {
	return &Utterance{}
}

// Append adds a frame. The first non-empty frame fixes the sample rate.
func (u *Utterance) Append(f Frame) {
	if f.Len() == 0 {
		return
	}

	if u.sampleRate == 0 {
		u.sampleRate = f.sampleRate
	}

	u.samples = append(u.samples, f.samples...)
	u.frames++
}

func (u *Utterance) NumFrames() int {
	return u.frames
}

func (u *Utterance) NumSamples() int {
	return len(u.samples)
}

func (u *Utterance) SampleRate() int {
	return u.sampleRate
}

func (u *Utterance) Duration() time.Duration {
	return samplesToDuration(len(u.samples), u.sampleRate)
}

// Samples returns a copy of the concatenated samples.
func (u *Utterance) Samples() []int16 {
	data := make([]int16, len(u.samples))
	copy(data, u.samples)

	return data
}

// Float32 returns the samples normalized to [-1, 1], the layout whisper expects.
func (u *Utterance) Float32() []float32 {
	data := make([]float32, len(u.samples))
	for i, s := range u.samples {
		data[i] = float32(s) / 32768
	}

	return data
}

// AsBuffer converts the utterance to a mono 16-bit go-audio buffer.
func (u *Utterance) AsBuffer() *audio.IntBuffer {
	data := make([]int, len(u.samples))
	for i, s := range u.samples {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: u.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// RMS is the root mean square of the normalized samples.
func (u *Utterance) RMS() float64 {
	if len(u.samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range u.samples {
		v := float64(s) / 32768
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(u.samples)))
}

func samplesToDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}

	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
