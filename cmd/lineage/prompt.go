package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agenthands/lineage/internal/core/model"
)

// PromptDecider asks a human on a terminal. Conflicts from concurrent
// workers are asked one at a time.
type PromptDecider struct {
	in  *bufio.Reader
	out io.Writer

	mu    sync.Mutex
	once  sync.Once
	lines chan string
	err   error
}

func NewPromptDecider(in io.Reader, out io.Writer) *PromptDecider {
	return &PromptDecider{in: bufio.NewReader(in), out: out, lines: make(chan string)}
}

// read owns the input; a Decide abandoned by its context must not leave a
// second reader behind.
func (p *PromptDecider) read() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		if line != "" {
			p.lines <- line
		}
		if err != nil {
			p.err = err
			return
		}
	}
}

func (p *PromptDecider) Decide(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
	p.once.Do(func() { go p.read() })
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nConflict on %s for %s\n", c.Field, c.IdentityKey)
	if c.DocumentURL != "" {
		fmt.Fprintf(p.out, "  source:   %s\n", c.DocumentURL)
	}
	fmt.Fprintf(p.out, "  existing: %s\n", c.ExistingValue)
	fmt.Fprintf(p.out, "  new:      %s (%s, confidence %.2f)\n", c.NewValue, c.NewSource, c.NewConfidence)
	fmt.Fprintln(p.out, "  [1] keep existing  [2] use new  [3] merge  [4] skip")

	for {
		fmt.Fprint(p.out, "Choice: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return "", ctx.Err()
		case line, ok := <-p.lines:
			if !ok {
				return "", fmt.Errorf("no answer for %s: %w", c.Field, p.err)
			}
			if d, ok := model.ParseDecision(strings.ToLower(strings.TrimSpace(line))); ok {
				return d, nil
			}
			fmt.Fprintln(p.out, "Please answer 1, 2, 3 or 4.")
		}
	}
}
