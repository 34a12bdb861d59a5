package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/acarl005/stripansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	webcept "github.com/ethereum-optimism/infra/op-webcept"
	"github.com/ethereum-optimism/infra/op-webcept/exitcodes"
)

const fakeEngine = `#!/bin/sh
echo "args=$*"
case "$*" in
  *FailingTest*) echo "ERRORS!"; exit 1 ;;
esac
echo "OK (1 test, 1 assertion)"
`

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func setupProject(t *testing.T) (string, string) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "codeception.yml"), "paths:\n  tests: tests\n  log: tests/_output\n", 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests", "_output"), 0755))
	writeFile(t, filepath.Join(dir, "tests", "unit", "MathTest.php"), "<?php", 0644)
	writeFile(t, filepath.Join(dir, "tests", "unit", "FailingTest.php"), "<?php", 0644)
	writeFile(t, filepath.Join(dir, "bin", "codecept"), fakeEngine, 0755)

	settingsPath := filepath.Join(dir, "webcept.toml")
	writeFile(t, settingsPath, `
executable = "bin/codecept"
run_php = false
groups = ["fastTest"]

[[sites]]
name = "app"
config = "codeception.yml"

[tests]
unit = true
`, 0644)
	return dir, settingsPath
}

// runApp runs the CLI in-process and returns its output and exit code.
func runApp(t *testing.T, args ...string) (string, int) {
	t.Helper()
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = &buf
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"op-webcept", "--log.level", "error"}, args...))
	return stripansi.Strip(buf.String()), webcept.ExitCode(err)
}

func TestExitCodeBehavior(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("engine fixtures are POSIX shell scripts")
	}
	dir, settingsPath := setupProject(t)
	failing := filepath.Join(dir, "tests", "unit", "FailingTest.php")
	passing := filepath.Join(dir, "tests", "unit", "MathTest.php")

	testCases := []struct {
		name         string
		args         []string
		expectedCode int
		contains     string
	}{
		{
			name:         "list exits with code 0",
			args:         []string{"--settings", settingsPath, "list"},
			expectedCode: exitcodes.Success,
			contains:     "MathTest",
		},
		{
			name:         "passing test exits with code 0",
			args:         []string{"--settings", settingsPath, "run", "--type", "unit", "--file", passing},
			expectedCode: exitcodes.Success,
			contains:     "OK (1 test, 1 assertion)",
		},
		{
			name:         "failing test exits with code 1",
			args:         []string{"--settings", settingsPath, "run", "--type", "unit", "--file", failing},
			expectedCode: exitcodes.TestFailure,
			contains:     "ERRORS!",
		},
		{
			name:         "group run exits with code 0",
			args:         []string{"--settings", settingsPath, "run", "--kind", "group", "--name", "fastTest"},
			expectedCode: exitcodes.Success,
			contains:     "--group fastTest",
		},
		{
			name:         "unknown group exits with code 2",
			args:         []string{"--settings", settingsPath, "run", "--kind", "group", "--name", "slowTest"},
			expectedCode: exitcodes.RuntimeErr,
			contains:     "The group could not be found.",
		},
		{
			name:         "invalid target exits with code 2",
			args:         []string{"--settings", settingsPath, "run", "--kind", "test"},
			expectedCode: exitcodes.RuntimeErr,
		},
		{
			name:         "check exits with code 0",
			args:         []string{"--settings", settingsPath, "check"},
			expectedCode: exitcodes.Success,
			contains:     "Preflight checks of app",
		},
		{
			name:         "missing settings exit with code 2",
			args:         []string{"--settings", filepath.Join(dir, "missing.yaml"), "list"},
			expectedCode: exitcodes.RuntimeErr,
		},
		{
			name:         "unknown site exits with code 2",
			args:         []string{"--settings", settingsPath, "--site", "shop", "check"},
			expectedCode: exitcodes.RuntimeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, code := runApp(t, tc.args...)
			assert.Equal(t, tc.expectedCode, code, out)
			if tc.contains != "" {
				assert.Contains(t, out, tc.contains)
			}
		})
	}
}

func TestCheckFailsWithoutLogDir(t *testing.T) {
	dir, settingsPath := setupProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "tests", "_output")))

	out, code := runApp(t, "--settings", settingsPath, "check")
	assert.Equal(t, exitcodes.RuntimeErr, code)
	assert.Contains(t, out, "does not exist")
}
