// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/operators"
)

// CommandOperator runs argv with params encoded as JSON on stdin. Stdout is
// decoded when it is JSON and returned as trimmed text otherwise. A zero
// timeout leaves the call bound only by ctx.
func CommandOperator(argv []string, timeout time.Duration) operators.Func {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if len(argv) == 0 {
			return nil, errors.New(errors.CodeConfiguration, "operator command is empty", nil)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		input, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Validation("encode operator params: %v", err)
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second
		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.New(errors.CodeTimeout, "operator command timed out", err).
					WithContext("command", argv[0])
			}
			if ctx.Err() != nil {
				return nil, errors.New(errors.CodeCancelled, "operator command cancelled", ctx.Err())
			}
			return nil, errors.New(errors.CodeInternal, "operator command failed", err).
				WithContext("command", argv[0]).
				WithContext("stderr", strings.TrimSpace(stderr.String()))
		}

		out := bytes.TrimSpace(stdout.Bytes())
		var value any
		if len(out) > 0 && json.Unmarshal(out, &value) == nil {
			return value, nil
		}
		return string(out), nil
	}
}

// RegisterCommands registers every configured command operator.
func (r *Runtime) RegisterCommands(commands map[string]config.CommandConfig) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		if err := r.RegisterOperator(name, c.Description, CommandOperator(c.Command, c.Timeout)); err != nil {
			return err
		}
	}
	return nil
}
