package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ethereum-optimism/infra/op-webcept/snapshot"
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

// Preflight checks the log directory and the engine executable of a
// snapshot. settingsPath is reported as the place the executable was set.
func Preflight(snap *snapshot.Snapshot, settingsPath string) []types.CheckResult {
	executable := snap.Executable
	if executable != "" && !strings.ContainsRune(executable, '/') && !strings.ContainsRune(executable, filepath.Separator) {
		if found, err := exec.LookPath(executable); err == nil {
			executable = found
		}
	}
	return []types.CheckResult{
		CheckWriteable(snap.LogPath, snap.ConfigPath),
		CheckExecutable(executable, settingsPath),
	}
}

// CheckWriteable reports whether the engine's log directory is set, exists
// and can be written to. config names where the path was configured.
func CheckWriteable(path, config string) types.CheckResult {
	result := types.CheckResult{
		Resource: path,
		Config:   config,
	}

	switch {
	case path == "":
		result.Error = MsgLogNotSet
	case !exists(path):
		result.Error = MsgLogMissing
	case !writeable(path):
		result.Error = MsgLogNotWriteable
	}

	result.Ready = result.Error == ""
	return result
}

// CheckExecutable reports whether the engine executable exists and has an
// execute bit. The execute bit is not checked on Windows.
func CheckExecutable(file, config string) types.CheckResult {
	result := types.CheckResult{
		Resource: file,
		Config:   canonical(config),
	}

	info, err := os.Stat(file)
	switch {
	case err != nil:
		result.Error = MsgExecMissing
	case runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0:
		result.Error = MsgExecNotRunnable
	}

	result.Ready = result.Error == ""
	return result
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func canonical(path string) string {
	if path == "" {
		return ""
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	if abs, err := filepath.Abs(real); err == nil {
		return abs
	}
	return real
}
