// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt defines how the runtime reads a line of user input and
// surfaces notices while collecting or confirming skill arguments.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// Prompter reads one line of free text per call.
type Prompter interface {
	// Ask shows text and blocks until a line arrives or ctx ends.
	Ask(ctx context.Context, text string) (string, error)
	// Notify shows a non-blocking message such as a warning.
	Notify(ctx context.Context, message string)
}

// Console prompts on a reader/writer pair, stdin/stdout by default.
type Console struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	timeout time.Duration
}

// ConsoleOption configures the console prompter.
type ConsoleOption func(*Console)

// NewConsole creates a console-based prompter.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithInput overrides the input reader.
func WithInput(r io.Reader) ConsoleOption {
	return func(c *Console) {
		if r != nil {
			c.in = bufio.NewReader(r)
		}
	}
}

// WithOutput overrides the output writer.
func WithOutput(w io.Writer) ConsoleOption {
	return func(c *Console) {
		if w != nil {
			c.out = w
		}
	}
}

// WithTimeout bounds how long Ask waits for a line.
func WithTimeout(timeout time.Duration) ConsoleOption {
	return func(c *Console) {
		c.timeout = timeout
	}
}

// Ask implements Prompter.
func (c *Console) Ask(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprint(c.out, text)
	if !strings.HasSuffix(text, " ") && !strings.HasSuffix(text, "\n") {
		_, _ = fmt.Fprint(c.out, " ")
	}

	type result struct {
		line string
		err  error
	}
	responseCh := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		responseCh <- result{line: line, err: err}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.CodeTimeout, "no input received", ctx.Err())
		}
		return "", errors.New(errors.CodeCancelled, "prompt cancelled", ctx.Err())
	case r := <-responseCh:
		if r.err != nil {
			return "", r.err
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	}
}

// Notify implements Prompter.
func (c *Console) Notify(_ context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, message)
}

// Scripted replays fixed input lines and records every prompt and notice.
type Scripted struct {
	mu      sync.Mutex
	lines   []string
	prompts []string
	notices []string
}

// NewScripted returns a prompter answering with lines in order.
func NewScripted(lines ...string) *Scripted {
	return &Scripted{lines: lines}
}

// Ask implements Prompter. It returns io.EOF once the script is exhausted.
func (s *Scripted) Ask(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, text)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// Notify implements Prompter.
func (s *Scripted) Notify(_ context.Context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, message)
}

// Prompts returns the prompts shown so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Notices returns the notices shown so far.
func (s *Scripted) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

// Remaining returns how many scripted lines are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}
