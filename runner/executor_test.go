package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine fixtures are POSIX shell scripts")
	}
}

func TestSplitLines(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single line", input: "PASSED\n", expected: []string{"PASSED"}},
		{name: "no trailing newline", input: "a\nb", expected: []string{"a", "b"}},
		{name: "crlf", input: "a\r\nb\r\n", expected: []string{"a", "b"}},
		{name: "blank lines kept", input: "a\n\nb\n", expected: []string{"a", "", "b"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, splitLines(tc.input))
		})
	}
}

func TestShellFor(t *testing.T) {
	shell, flag := shellFor("linux")
	assert.Equal(t, "sh", shell)
	assert.Equal(t, "-c", flag)
	shell, flag = shellFor("windows")
	assert.Equal(t, "cmd", shell)
	assert.Equal(t, "/C", flag)
}

func TestExecute(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	e := NewShellExecutor(log.New())

	lines, err := e.Execute(context.Background(), Command{
		Invocation: "echo first; echo second >&2; exit 3",
		Dir:        dir,
	})
	require.NoError(t, err, "non-zero exit is not an error")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines, "first")
	assert.Contains(t, lines, "second")

	lines, err = e.Execute(context.Background(), Command{Invocation: "pwd", Dir: dir})
	require.NoError(t, err)
	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{real}, lines)

	lines, err = e.Execute(context.Background(), Command{Invocation: "true", Dir: dir})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestExecuteStartFailure(t *testing.T) {
	skipWithoutShell(t)
	e := NewShellExecutor(log.New())

	lines, err := e.Execute(context.Background(), Command{
		Invocation: "echo never",
		Dir:        filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start engine")
	assert.Nil(t, lines)

	_, err = e.Execute(context.Background(), Command{})
	assert.Error(t, err)
}

func TestExecuteLoosensLogPath(t *testing.T) {
	skipWithoutShell(t)
	logDir := filepath.Join(t.TempDir(), "_output")
	require.NoError(t, os.Mkdir(logDir, 0700))

	e := NewShellExecutor(log.New())
	_, err := e.Execute(context.Background(), Command{Invocation: "true", LogPath: logDir})
	require.NoError(t, err)

	info, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(LogPathMode), info.Mode().Perm())

	_, err = e.Execute(context.Background(), Command{Invocation: "true", LogPath: filepath.Join(logDir, "missing")})
	assert.NoError(t, err, "chmod failures are ignored")
}

func TestExecuteOutlivesCaller(t *testing.T) {
	skipWithoutShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	e := NewShellExecutor(log.New())
	start := time.Now()
	lines, err := e.Execute(ctx, Command{Invocation: "sleep 0.5; echo 'OK (1 test, 1 assertion)'"})
	require.NoError(t, err)
	assert.Equal(t, []string{"OK (1 test, 1 assertion)"}, lines)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
