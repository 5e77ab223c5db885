package window

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	out  string
	err  error
	argv []string
}

func (r *stubRunner) Run(_ context.Context, argv []string) ([]byte, error) {
	r.argv = argv
	return []byte(r.out), r.err
}

func TestHelperSource(t *testing.T) {
	r := &stubRunner{out: "Finder|||Downloads\n"}
	src := NewHelperSource(r, []string{"/usr/local/bin/list-windows", "--all"})

	got, err := src.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RawWindow{{App: "Finder", Title: "Downloads"}}, got)
	assert.Equal(t, []string{"/usr/local/bin/list-windows", "--all"}, r.argv)
}

func TestHelperSourceErrors(t *testing.T) {
	_, err := NewHelperSource(&stubRunner{}, nil).ListWindows(context.Background())
	assert.ErrorIs(t, err, helper.ErrNotConfigured)

	r := &stubRunner{err: &helper.ExitError{Command: "list-windows", ExitCode: 1}}
	_, err = NewHelperSource(r, []string{"list-windows"}).ListWindows(context.Background())
	var exitErr *helper.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestScriptingBridgeSource(t *testing.T) {
	r := &stubRunner{out: "Finder|||Downloads, Mail|||Inbox\n"}
	src := NewScriptingBridgeSource(r, nil)

	got, err := src.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, r.argv, 3)
	assert.Equal(t, "osascript", r.argv[0])
	assert.Equal(t, "-e", r.argv[1])
	assert.Contains(t, r.argv[2], "System Events")
}
