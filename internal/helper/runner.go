// Package helper runs short-lived external processes (window helpers,
// osascript) with a hard timeout.
package helper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

var (
	// ErrTimeout is returned when a helper exceeds its deadline
	ErrTimeout = errors.New("helper timed out")
	// ErrNotConfigured is returned for an empty argv
	ErrNotConfigured = errors.New("helper command not configured")
)

// waitDelay bounds how long Wait blocks on inherited pipes after the process
// has been killed.
const waitDelay = 500 * time.Millisecond

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// ExitError describes a helper that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts argv[0] with the remaining arguments. The process is killed when
// ctx is done.
func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNotConfigured
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	out, err := cmd.Output()
	logger.WithComponent("helper").Debug().
		Str("command", argv[0]).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Helper finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return out, fmt.Errorf("%s: %w", argv[0], ErrTimeout)
		}
		return out, fmt.Errorf("%s: %w", argv[0], ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &ExitError{
				Command:  argv[0],
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return out, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}

	return out, nil
}

// RunWithTimeout runs argv through r with its own deadline derived from ctx.
func RunWithTimeout(ctx context.Context, r Runner, timeout time.Duration, argv []string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.Run(ctx, argv)
}

// WithArgs returns a copy of base with args appended, leaving base untouched.
func WithArgs(base []string, args ...string) []string {
	argv := make([]string, 0, len(base)+len(args))
	argv = append(argv, base...)
	return append(argv, args...)
}
