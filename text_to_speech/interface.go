package text_to_speech

import (
	"context"

	"github.com/go-audio/audio"
)

// Interface renders a reply audibly. Speak blocks until playback has ended.
type Interface interface {
	Speak(ctx context.Context, text string) error
}

// Player plays decoded PCM audio.
type Player interface {
	Play(ctx context.Context, buf *audio.IntBuffer) error
}
