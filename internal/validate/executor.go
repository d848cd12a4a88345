package validate

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecResult captures one command invocation.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Executor runs external commands. The default implementation shells out;
// tests substitute a stub.
type Executor interface {
	Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (ExecResult, error)
}

type execExecutor struct{}

// NewExecutor returns the default process-based executor.
func NewExecutor() Executor {
	return execExecutor{}
}

func (execExecutor) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (ExecResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}
