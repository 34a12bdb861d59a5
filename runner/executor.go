package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

var _ Executor = (*shellExecutor)(nil)

// Command is one engine invocation
type Command struct {
	// Invocation is the full shell command line.
	Invocation string
	// Dir is the working directory of the engine.
	Dir string
	// LogPath is loosened before the run so the engine can write its logs.
	LogPath string
}

// Executor runs engine invocations and returns their combined output lines.
// A non-zero exit status is not an error; the output decides the outcome.
type Executor interface {
	Execute(ctx context.Context, cmd Command) ([]string, error)
}

// shellExecutor implements Executor through the platform shell
type shellExecutor struct {
	log        log.Logger
	cmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewShellExecutor creates an executor running invocations with sh -c, or
// cmd /C on Windows.
func NewShellExecutor(logger log.Logger) Executor {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &shellExecutor{
		log:        logger,
		cmdBuilder: exec.CommandContext,
	}
}

// Execute runs the invocation to completion. Cancelling ctx does not stop a
// launched engine; only its values reach the child.
func (e *shellExecutor) Execute(ctx context.Context, cmd Command) ([]string, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if cmd.Invocation == "" {
		return nil, fmt.Errorf("invocation cannot be empty")
	}

	e.loosenLogPath(cmd.LogPath)
	ctx = context.WithoutCancel(ctx)

	shell, flag := shellFor(runtime.GOOS)
	c := e.cmdBuilder(ctx, shell, flag, cmd.Invocation)
	c.Dir = cmd.Dir
	c.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())

	e.log.Debug("Running engine", "dir", cmd.Dir, "cmd", cmd.Invocation)
	out, err := c.CombinedOutput()
	lines := splitLines(string(out))

	if err != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to start engine: %w", err)
		}
		e.log.Debug("Engine exited with non-zero status", "exit_code", exitErr.ExitCode(), "lines", len(lines))
	}
	return lines, nil
}

// loosenLogPath is best effort; the engine reports unwritable logs itself.
func (e *shellExecutor) loosenLogPath(path string) {
	if path == "" {
		return
	}
	if err := os.Chmod(path, LogPathMode); err != nil {
		e.log.Debug("Unable to loosen log path permissions", "path", path, "err", err)
		metrics.RecordErrorDetails("chmod", err)
	}
}

func shellFor(goos string) (string, string) {
	if goos == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}

// splitLines splits output on \n and \r\n, dropping the final empty line.
func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.TrimSuffix(out, "\n")
	return strings.Split(out, "\n")
}
