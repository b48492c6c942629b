package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

type lineResult struct {
	text string
	err  error
}

// lineSource reads one command per line. The reader is drained on its own
// goroutine so a blocked read never holds up cancellation.
type lineSource struct {
	prompt string
	out    io.Writer
	lines  chan lineResult
}

func NewLineSource(r io.Reader, out io.Writer, prompt string) (CommandSource, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	if out == nil {
		out = io.Discard
	}

	s := &lineSource{
		prompt: prompt,
		out:    out,
		lines:  make(chan lineResult),
	}

	go s.scan(r)

	return s, nil
}

func (s *lineSource) scan(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.lines <- lineResult{text: scanner.Text()}
	}

	if err := scanner.Err(); err != nil {
		s.lines <- lineResult{err: err}
	}

	close(s.lines)
}

func (s *lineSource) NextCommand(ctx context.Context) (string, error) {
	if s.prompt != "" {
		fmt.Fprint(s.out, s.prompt)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}

		return strings.TrimSpace(line.text), line.err
	}
}
