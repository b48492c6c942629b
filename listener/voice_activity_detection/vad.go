package voice_activity_detection

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// VAD tracks the spectral flux between consecutive blocks of audio. A sharp
// rise in flux marks the onset of speech, a sharp drop its end.
type VAD struct {
	size     int
	previous []float64
	input    []float64
}

func New(size int) *VAD {
	return &VAD{
		size:  size,
		input: make([]float64, size),
	}
}

// Flux returns the positive spectral difference to the previous block,
// normalized by block length.
func (v *VAD) Flux(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	if len(samples) != len(v.input) {
		v.input = make([]float64, len(samples))
		v.previous = nil
	}

	for i, s := range samples {
		v.input[i] = float64(s)
	}

	spectrum := fft.FFTReal(v.input)
	bins := len(spectrum)/2 + 1
	magnitudes := make([]float64, bins)

	var flux float64
	for i := 0; i < bins; i++ {
		magnitudes[i] = cmplx.Abs(spectrum[i])

		prev := 0.0
		if v.previous != nil {
			prev = v.previous[i]
		}

		if diff := magnitudes[i] - prev; diff > 0 {
			flux += diff
		}
	}

	v.previous = magnitudes

	return flux / float64(len(samples))
}

func (v *VAD) Reset() {
	v.previous = nil
}
