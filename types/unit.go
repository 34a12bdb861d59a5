// Package types contains shared types used across the webcept orchestrator
package types

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-webcept/outcome"
)

// Kind tags the variant of a runnable unit
type Kind string

// String implements the Stringer interface for Kind
func (k Kind) String() string {
	return string(k)
}

// Kind enum values
const (
	KindTest   Kind = "test"
	KindModule Kind = "module"
	KindGroup  Kind = "group"
)

// Kinds lists every unit kind in display order
var Kinds = []Kind{KindTest, KindModule, KindGroup}

const (
	// ModuleType is the test type every module suite runs as.
	ModuleType = "webdriver"
	// GroupType is the synthetic type used for group runs.
	GroupType = "group"
)

// State represents the possible states of a runnable unit
type State string

const (
	StateReady  State = "ready"
	StatePassed State = "passed"
	StateFailed State = "failed"
	StateError  State = "error"
)

// Identity returns the content-derived identity token for a path or name.
func Identity(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Unit is a discovered, independently executable test artifact: a test file,
// a module suite or a named group.
type Unit struct {
	ID       string
	Kind     Kind
	Type     string
	Title    string
	Location string

	runMu sync.Mutex

	mu      sync.RWMutex
	log     []string
	output  int
	passed  bool
	failed  bool
	state   State
	notices []string
}

// NewTest creates a test unit for a file found under a test root.
func NewTest(testType, path string) *Unit {
	base := filepath.Base(path)
	return &Unit{
		ID:       Identity(path),
		Kind:     KindTest,
		Type:     testType,
		Title:    strings.TrimSuffix(base, filepath.Ext(base)),
		Location: path,
		state:    StateReady,
	}
}

// NewModule creates a module unit for a module's codeception.yml path.
func NewModule(name, path string) *Unit {
	return &Unit{
		ID:       Identity(path),
		Kind:     KindModule,
		Type:     ModuleType,
		Title:    name,
		Location: path,
		state:    StateReady,
	}
}

// NewGroup creates a group unit.
func NewGroup(name string) *Unit {
	return &Unit{
		ID:       Identity(name),
		Kind:     KindGroup,
		Type:     GroupType,
		Title:    name,
		Location: name,
		state:    StateReady,
	}
}

// Key returns the registry key of the unit within its kind.
func (u *Unit) Key() string {
	return u.Type + "/" + u.ID
}

// AcquireRun serializes runs of the same unit. Callers must ReleaseRun.
func (u *Unit) AcquireRun() {
	u.runMu.Lock()
}

// ReleaseRun releases the run lock taken by AcquireRun.
func (u *Unit) ReleaseRun() {
	u.runMu.Unlock()
}

// Reset puts the unit back to its pre-run state.
func (u *Unit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.reset()
}

func (u *Unit) reset() {
	u.log = nil
	u.output = 0
	u.passed = false
	u.failed = false
	u.notices = nil
	u.state = StateReady
}

// SetLog replaces the unit log with the given run output and derives the new
// state. Header lines are stored for display only; output lines are cleaned
// and classified one by one. A failure marker is sticky for the rest of the
// run.
func (u *Unit) SetLog(header, output []string, c *outcome.Classifier) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.reset()
	for _, line := range header {
		u.log = append(u.log, c.Strip(line))
	}
	for _, line := range output {
		clean := c.Strip(line)
		match := c.Classify(clean)
		switch match.Verdict {
		case outcome.VerdictPass:
			if !u.failed {
				u.passed = true
			}
		case outcome.VerdictFail:
			u.passed = false
			u.failed = true
		case outcome.VerdictNotice:
			u.notices = append(u.notices, match.Name)
		}
		u.log = append(u.log, clean)
		u.output++
	}
	u.state = u.deriveState()
}

func (u *Unit) deriveState() State {
	switch {
	case u.passed && !u.failed:
		return StatePassed
	case u.output > 0:
		return StateFailed
	default:
		return StateError
	}
}

// Ran returns whether the last run produced any engine output.
func (u *Unit) Ran() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.output > 0
}

// Passed returns whether the last run saw a pass marker and no failure marker.
func (u *Unit) Passed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.passed && !u.failed
}

// State returns the state derived from the last run.
func (u *Unit) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Log returns a copy of the stored log lines.
func (u *Unit) Log() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.log))
	copy(out, u.log)
	return out
}

// LogText returns the log joined with newlines.
func (u *Unit) LogText() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return strings.Join(u.log, "\n")
}

// Notices returns the names of notice rules matched during the last run.
func (u *Unit) Notices() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.notices))
	copy(out, u.notices)
	return out
}
