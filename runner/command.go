package runner

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/ethereum-optimism/infra/op-webcept/snapshot"
	"github.com/ethereum-optimism/infra/op-webcept/types"
	"github.com/ethereum/go-ethereum/log"
)

// moduleDirPattern truncates a location to its deepest application module
var moduleDirPattern = regexp.MustCompile(`(.*application/modules/\w+)/.*`)

// CommandBuilder assembles engine invocations from a configuration snapshot
type CommandBuilder struct {
	snap *snapshot.Snapshot
	log  log.Logger
}

// NewCommandBuilder creates a builder for the given snapshot
func NewCommandBuilder(snap *snapshot.Snapshot, logger log.Logger) *CommandBuilder {
	if logger == nil {
		logger = log.New()
	}
	return &CommandBuilder{snap: snap, log: logger}
}

// Build returns the shell invocation running target as unitType with the
// requested environments. Empty tokens are left out.
func (b *CommandBuilder) Build(unitType, target string, envs []string, remoteAddr string) string {
	return b.assemble(unitType, target, b.Environments(unitType, envs), remoteAddr)
}

// BuildFor returns the invocation for a unit. Environments are checked
// against the unit's own type even when no type token is passed.
func (b *CommandBuilder) BuildFor(u *types.Unit, envs []string, remoteAddr string) string {
	return b.assemble(TypeToken(u), Target(u), b.Environments(u.Type, envs), remoteAddr)
}

func (b *CommandBuilder) assemble(unitType, target string, envs []string, remoteAddr string) string {
	tokens := []string{ClientAddrVar + "=" + remoteAddr}
	if b.snap.RunPHP {
		tokens = append(tokens, b.snap.Interpreter)
	}
	tokens = append(tokens, b.snap.Executable, RunCommand, NoColorsFlag)
	for _, env := range envs {
		tokens = append(tokens, EnvFlagPrefix+env)
	}
	tokens = append(tokens, unitType, target, RedirectStderr)
	if b.snap.Debug {
		tokens = append(tokens, DebugFlag)
	}
	if b.snap.Steps {
		tokens = append(tokens, StepsFlag)
	}

	out := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// Environments filters requested environment names down to those declared
// for unitType. Each request may hold several space separated names and may
// carry a "<type>_" prefix.
func (b *CommandBuilder) Environments(unitType string, requested []string) []string {
	var accepted []string
	for _, req := range requested {
		for _, name := range strings.Fields(req) {
			if unitType != "" {
				name = strings.ReplaceAll(name, unitType+"_", "")
			}
			if !b.snap.EnvironmentAllowed(unitType, name) {
				b.log.Debug("Dropping undeclared environment", "type", unitType, "env", name)
				continue
			}
			accepted = append(accepted, name)
		}
	}
	return accepted
}

// TypeToken returns the type token passed to the engine for a unit. Groups
// carry no type.
func TypeToken(u *types.Unit) string {
	if u.Kind == types.KindGroup {
		return ""
	}
	return u.Type
}

// Target returns the target token for a unit: the test file, nothing for a
// module, or the group selector. File paths and group names are quoted for
// the platform shell when they hold anything but plain word characters.
func Target(u *types.Unit) string {
	switch u.Kind {
	case types.KindTest:
		return quoteArg(runtime.GOOS, u.Location)
	case types.KindGroup:
		return GroupFlag + " " + quoteArg(runtime.GOOS, u.Title)
	default:
		return ""
	}
}

// quoteArg quotes s for sh, or for cmd on Windows where only double quotes
// group words.
func quoteArg(goos, s string) string {
	if s == "" {
		return ""
	}
	if goos == "windows" {
		if !strings.ContainsAny(s, " \t&|<>^()%!;,=") {
			return s
		}
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return shellescape.Quote(s)
}

// WorkDir returns the directory the engine runs in for a unit. Tests and
// modules run from their application module when they live in one, otherwise
// from their location, or its directory when the location is a file.
func WorkDir(snap *snapshot.Snapshot, u *types.Unit) string {
	if u.Kind == types.KindGroup {
		return snap.GroupDir
	}
	dir := moduleDir(u.Location)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return filepath.Dir(dir)
	}
	return dir
}

func moduleDir(location string) string {
	slashed := filepath.ToSlash(location)
	if !moduleDirPattern.MatchString(slashed) {
		return location
	}
	return filepath.FromSlash(moduleDirPattern.ReplaceAllString(slashed, "$1"))
}

// Header returns the synthetic log lines stored ahead of the engine output.
func Header(u *types.Unit, workDir, invocation string) []string {
	if u.Kind == types.KindTest {
		return []string{invocation}
	}
	return []string{workDir, invocation}
}
