// Package snapshot builds the configuration snapshot for a site: the site's
// codeception.yml (and its includes and suite files) merged with the static
// op-webcept settings. Discovery and command building read nothing else.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-webcept/settings"
)

// ErrMissingPaths is returned when a codeception.yml has no paths mapping.
var ErrMissingPaths = errors.New("the config does not appear to contain any paths")

const (
	PathTests  = "tests"
	PathLog    = "log"
	PathOutput = "output"
)

// StringList decodes a YAML scalar or sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

type codeceptionFile struct {
	Paths   yaml.Node `yaml:"paths"`
	Include []string  `yaml:"include"`
}

type suiteFile struct {
	Env map[string]yaml.Node `yaml:"env"`
}

// Snapshot is the merged configuration a registry is built from. It is
// immutable once loaded.
type Snapshot struct {
	Site       settings.Site
	ConfigPath string
	Ready      bool

	Paths     map[string][]string
	TestRoots []string
	LogPath   string

	Executable  string
	Interpreter string
	RunPHP      bool
	Debug       bool
	Steps       bool

	Tests   map[string]bool
	Ignore  []string
	Groups  []string
	Modules map[string]string
	Env     map[string][]string

	GroupDir string
}

// Load builds the snapshot for a site. A missing codeception.yml yields a
// snapshot that is not ready; a codeception.yml without paths is an error.
func Load(s *settings.Settings, site settings.Site, logger log.Logger) (*Snapshot, error) {
	if s == nil {
		return nil, errors.New("settings are required")
	}
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}

	snap := fromSettings(s, site)

	data, err := os.ReadFile(site.Config)
	if err != nil {
		logger.Warn("Codeception config not loaded", "site", site.Name, "path", site.Config, "err", err)
		return snap, nil
	}

	dir := site.Dir()
	paths, include, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingPaths, site.Config, err)
	}
	if paths == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPaths, site.Config)
	}

	for key, values := range paths {
		resolved := make([]string, len(values))
		for i, v := range values {
			resolved[i] = resolvePath(dir, v)
		}
		snap.Paths[key] = resolved
	}

	if len(include) > 0 {
		snap.Paths[PathTests] = includeRoots(dir, include, logger)
	}
	snap.TestRoots = snap.Paths[PathTests]
	snap.LogPath = first(snap.Paths[PathLog])
	if snap.LogPath == "" {
		snap.LogPath = first(snap.Paths[PathOutput])
	}

	for _, testType := range snap.ActiveTypes() {
		names := make(map[string]bool)
		for _, root := range snap.TestRoots {
			for _, name := range suiteEnvironments(filepath.Join(root, testType+".suite.yml"), logger) {
				names[name] = true
			}
		}
		if len(names) == 0 {
			continue
		}
		envs := make([]string, 0, len(names))
		for name := range names {
			envs = append(envs, name)
		}
		sort.Strings(envs)
		snap.Env[testType] = envs
	}

	snap.Ready = true
	logger.Debug("Snapshot loaded", "site", site.Name, "roots", snap.TestRoots, "log", snap.LogPath, "env", snap.Env)
	return snap, nil
}

func fromSettings(s *settings.Settings, site settings.Site) *Snapshot {
	groupDir := s.GroupDir
	if groupDir == "" {
		groupDir = site.Dir()
	}
	modules := make(map[string]string, len(s.Modules))
	for name, p := range s.Modules {
		modules[name] = p
	}
	tests := make(map[string]bool, len(s.Tests))
	for t, active := range s.Tests {
		tests[t] = active
	}
	return &Snapshot{
		Site:        site,
		ConfigPath:  site.Config,
		Paths:       make(map[string][]string),
		Executable:  s.Executable,
		Interpreter: s.Interpreter,
		RunPHP:      s.RunPHP,
		Debug:       s.Debug,
		Steps:       s.Steps,
		Tests:       tests,
		Ignore:      slices.Clone(s.Ignore),
		Groups:      slices.Clone(s.Groups),
		Modules:     modules,
		Env:         make(map[string][]string),
		GroupDir:    groupDir,
	}
}

// parseConfig returns nil paths when the document has no paths mapping.
func parseConfig(data []byte) (map[string][]string, []string, error) {
	var cfg codeceptionFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, err
	}
	if cfg.Paths.Kind != yaml.MappingNode {
		return nil, nil, nil
	}
	var raw map[string]StringList
	if err := cfg.Paths.Decode(&raw); err != nil {
		return nil, nil, err
	}
	paths := make(map[string][]string, len(raw))
	for k, v := range raw {
		paths[k] = v
	}
	return paths, cfg.Include, nil
}

// resolvePath joins p to dir and canonicalizes it when it exists.
func resolvePath(dir, p string) string {
	joined := p
	if !filepath.IsAbs(p) {
		joined = filepath.Join(dir, p)
	}
	if _, err := os.Stat(joined); err != nil {
		return joined
	}
	if real, err := filepath.EvalSymlinks(joined); err == nil {
		if abs, err := filepath.Abs(real); err == nil {
			return abs
		}
	}
	return joined
}

// includeRoots returns the tests directory of every included project.
func includeRoots(dir string, include []string, logger log.Logger) []string {
	var roots []string
	for _, inc := range include {
		incDir := filepath.Join(dir, inc)
		data, err := os.ReadFile(filepath.Join(incDir, settings.ConfigFileName))
		if err != nil {
			logger.Warn("Skipping unreadable include", "include", incDir, "err", err)
			continue
		}
		paths, _, err := parseConfig(data)
		if err != nil || len(paths[PathTests]) == 0 {
			logger.Warn("Skipping include without tests path", "include", incDir, "err", err)
			continue
		}
		roots = append(roots, filepath.Join(incDir, paths[PathTests][0]))
	}
	return roots
}

// suiteEnvironments returns the env names declared in a suite file.
func suiteEnvironments(path string, logger log.Logger) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var suite suiteFile
	if err := yaml.Unmarshal(data, &suite); err != nil {
		logger.Warn("Skipping unparsable suite file", "path", path, "err", err)
		return nil
	}
	names := make([]string, 0, len(suite.Env))
	for name := range suite.Env {
		names = append(names, name)
	}
	return names
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// ActiveTypes returns the enabled test types in sorted order.
func (s *Snapshot) ActiveTypes() []string {
	var types []string
	for t, active := range s.Tests {
		if active {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

// Environments returns the environment names usable with a test type.
func (s *Snapshot) Environments(testType string) []string {
	return slices.Clone(s.Env[testType])
}

// EnvironmentAllowed reports whether name is declared for the test type.
func (s *Snapshot) EnvironmentAllowed(testType, name string) bool {
	return slices.Contains(s.Env[testType], name)
}

// Ignored reports whether a file name is on the ignore list.
func (s *Snapshot) Ignored(name string) bool {
	return slices.Contains(s.Ignore, name)
}
