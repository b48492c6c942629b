package text_to_speech

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// writerSpeaker prints replies instead of voicing them, for text mode and
// muted runs.
type writerSpeaker struct {
	w      io.Writer
	prefix string
}

func NewWriterSpeaker(w io.Writer, prefix string) (Interface, error) {
	if w == nil {
		return nil, fmt.Errorf("writer is nil")
	}

	return &writerSpeaker{w: w, prefix: prefix}, nil
}

func (s *writerSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	_, err := fmt.Fprintf(s.w, "%s%s\n", s.prefix, text)

	return err
}
