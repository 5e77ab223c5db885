package helper

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	requireShell(t)

	out, err := ExecRunner{}.Run(context.Background(), []string{"sh", "-c", "printf 'a|||b\\n'"})
	require.NoError(t, err)
	assert.Equal(t, "a|||b\n", string(out))
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	requireShell(t)

	_, err := ExecRunner{}.Run(context.Background(), []string{"sh", "-c", "echo nope >&2; exit 3"})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "nope", exitErr.Stderr)
}

func TestExecRunnerTimeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	_, err := RunWithTimeout(context.Background(), ExecRunner{}, 50*time.Millisecond, []string{"sh", "-c", "sleep 5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), []string{"definitely-not-a-real-helper-binary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestExecRunnerNotConfigured(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWithArgsDoesNotAlias(t *testing.T) {
	base := make([]string, 1, 4)
	base[0] = "raise"

	a := WithArgs(base, "Finder", "Downloads")
	b := WithArgs(base, "Code", "project")

	assert.Equal(t, []string{"raise", "Finder", "Downloads"}, a)
	assert.Equal(t, []string{"raise", "Code", "project"}, b)
	assert.Equal(t, []string{"raise"}, base)
}
