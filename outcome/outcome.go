// Package outcome classifies Codeception console output.
//
// A Classifier holds an ordered rule table. Each rule maps a fixed marker to a
// verdict; the first matching rule wins. Lines are expected to be stripped of
// terminal color sequences before they are classified.
package outcome

import (
	"regexp"
	"strings"

	"github.com/acarl005/stripansi"
)

// Verdict is the effect a matched line has on a run
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictPass
	VerdictFail
	VerdictNotice
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictFail:
		return "fail"
	case VerdictNotice:
		return "notice"
	default:
		return "none"
	}
}

// Markers emitted by Codeception and PHPUnit
const (
	MarkerErrors      = "ERRORS!"
	MarkerPassed      = "PASSED"
	MarkerUnitOK      = "OK ("
	MarkerTimeout     = "Operation timed out after"
	MarkerLogReadonly = "Path for logs is not writable"
)

// Rule maps a marker to a verdict
type Rule struct {
	Name    string
	Marker  string
	Verdict Verdict

	pattern *regexp.Regexp
}

// Match is the result of classifying one line
type Match struct {
	Name    string
	Verdict Verdict
}

// DefaultRules is the rule table used by op-webcept. The failure rule comes
// first so a line carrying both markers is a failure.
var DefaultRules = []Rule{
	{Name: "errors", Marker: MarkerErrors, Verdict: VerdictFail},
	{Name: "passed", Marker: MarkerPassed, Verdict: VerdictPass},
	{Name: "unit-ok", Marker: MarkerUnitOK, Verdict: VerdictPass},
	{Name: "timeout", Marker: MarkerTimeout, Verdict: VerdictNotice},
	{Name: "log-not-writable", Marker: MarkerLogReadonly, Verdict: VerdictNotice},
}

// colourCodes are the bracket sequences Codeception leaves behind when its
// escape byte has already been dropped by an intermediate layer.
var colourCodes = []string{
	"[37;45m", "[2K", "[1m", "[0m", "[30;42m", "[37;41m", "[33m", "[36m",
	"[35;1m", "[32m", "[22m", "[39m", "[32;1m", "[31;1m", "[39;22m",
	"[37;41;1m", "[39;49;22m",
}

// Classifier evaluates lines against a compiled rule table
type Classifier struct {
	rules  []Rule
	colour *regexp.Regexp
}

// NewClassifier compiles the rules once. Markers are matched literally.
func NewClassifier(rules []Rule) *Classifier {
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		r.pattern = regexp.MustCompile(regexp.QuoteMeta(r.Marker))
		compiled[i] = r
	}
	quoted := make([]string, len(colourCodes))
	for i, code := range colourCodes {
		quoted[i] = regexp.QuoteMeta(code)
	}
	return &Classifier{
		rules:  compiled,
		colour: regexp.MustCompile("\x1b?(?:" + strings.Join(quoted, "|") + ")"),
	}
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return NewClassifier(DefaultRules)
}

// Rules returns the compiled rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the first rule matching the line, or VerdictNone.
func (c *Classifier) Classify(line string) Match {
	for _, r := range c.rules {
		if r.pattern.MatchString(line) {
			return Match{Name: r.Name, Verdict: r.Verdict}
		}
	}
	return Match{Verdict: VerdictNone}
}

// Strip removes terminal color-control sequences from a line. Removal is
// repeated until the line stops changing, so Strip(Strip(s)) == Strip(s).
// Every pass only removes bytes, so the loop terminates.
func (c *Classifier) Strip(line string) string {
	for {
		next := c.colour.ReplaceAllString(stripansi.Strip(line), "")
		if next == line {
			return line
		}
		line = next
	}
}
