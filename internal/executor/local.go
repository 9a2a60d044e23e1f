package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Local runs commands through /bin/sh on this machine.
type Local struct {
	Shell string
}

// NewLocal returns a Local executor using sh.
func NewLocal() *Local {
	return &Local{Shell: "sh"}
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, command string) (string, error) {
	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return stdout.String(), fmt.Errorf("run %q: %w", command, ctx.Err())
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return stdout.String(), &ExitError{
			Command: command,
			Code:    ee.ExitCode(),
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
		}
	}
	return stdout.String(), fmt.Errorf("run %q: %w", command, err)
}
