// Package settings loads the op-webcept settings file: the sites to serve,
// the Codeception executable, test-type activation and the static defaults
// that get merged into every configuration snapshot.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the Codeception configuration file looked up in sites and modules
const ConfigFileName = "codeception.yml"

// DefaultInterpreter is prefixed to the executable when RunPHP is set
const DefaultInterpreter = "php"

// DefaultIgnore lists the helper files Codeception generates next to tests
var DefaultIgnore = []string{
	"WebGuy.php",
	"TestGuy.php",
	"CodeGuy.php",
	"AcceptanceTester.php",
	"FunctionalTester.php",
	"UnitTester.php",
	"_bootstrap.php",
	".DS_Store",
}

var (
	ErrNoExecutable = errors.New("codeception executable is required")
	ErrNoSites      = errors.New("at least one site is required")
)

// Site is a target application with its own codeception.yml
type Site struct {
	Name   string `yaml:"name" toml:"name"`
	Config string `yaml:"config" toml:"config"`
}

// Dir returns the directory holding the site's Codeception config.
func (s Site) Dir() string {
	return filepath.Dir(s.Config)
}

// File returns the file name of the site's Codeception config.
func (s Site) File() string {
	return filepath.Base(s.Config)
}

// Settings is the static configuration of op-webcept
type Settings struct {
	Sites       []Site            `yaml:"sites" toml:"sites"`
	ModulesDir  string            `yaml:"modules_dir" toml:"modules_dir"`
	Modules     map[string]string `yaml:"modules" toml:"modules"`
	Groups      []string          `yaml:"groups" toml:"groups"`
	Executable  string            `yaml:"executable" toml:"executable"`
	RunPHP      bool              `yaml:"run_php" toml:"run_php"`
	Interpreter string            `yaml:"interpreter" toml:"interpreter"`
	Tests       map[string]bool   `yaml:"tests" toml:"tests"`
	Ignore      []string          `yaml:"ignore" toml:"ignore"`
	GroupDir    string            `yaml:"group_dir" toml:"group_dir"`
	Debug       bool              `yaml:"debug" toml:"debug"`
	Steps       bool              `yaml:"steps" toml:"steps"`

	// Location is the settings file the values were read from.
	Location string `yaml:"-" toml:"-"`
}

// DefaultTests returns the test types enabled when the settings file has no
// tests section.
func DefaultTests() map[string]bool {
	return map[string]bool{
		"webdriver":  true,
		"phpbrowser": true,
		"unit":       false,
	}
}

// Defaults returns the scalar settings applied before a file is decoded on
// top. Maps and lists are filled in after decoding so a file replaces them
// instead of merging into them.
func Defaults() *Settings {
	return &Settings{
		RunPHP:      true,
		Interpreter: DefaultInterpreter,
		Steps:       true,
	}
}

func (s *Settings) applyDefaults() {
	if s.Modules == nil {
		s.Modules = map[string]string{}
	}
	if s.Tests == nil {
		s.Tests = DefaultTests()
	}
	if s.Ignore == nil {
		s.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if s.Interpreter == "" {
		s.Interpreter = DefaultInterpreter
	}
}

// Load reads a settings file. Files ending in .toml are decoded as TOML,
// anything else as YAML. Relative paths are resolved against the directory
// of the settings file.
func Load(path string, logger log.Logger) (*Settings, error) {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for settings '%s': %w", path, err)
	}
	logger.Debug("Reading settings file", "path", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	s := Defaults()
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		if _, err := toml.Decode(string(data), s); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	}
	s.Location = absPath
	s.applyDefaults()

	s.resolvePaths(filepath.Dir(absPath))
	s.discoverModules(logger)

	if err := s.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Settings loaded", "sites", len(s.Sites), "modules", len(s.Modules), "groups", len(s.Groups))
	return s, nil
}

// Validate checks the settings are usable.
func (s *Settings) Validate() error {
	if s.Executable == "" {
		return ErrNoExecutable
	}
	if len(s.Sites) == 0 {
		return ErrNoSites
	}
	seen := make(map[string]bool, len(s.Sites))
	for i, site := range s.Sites {
		if site.Name == "" {
			return fmt.Errorf("site at index %d has no name", i)
		}
		if site.Config == "" {
			return fmt.Errorf("site %s has no config path", site.Name)
		}
		if seen[site.Name] {
			return fmt.Errorf("duplicate site %s", site.Name)
		}
		seen[site.Name] = true
	}
	return nil
}

func (s *Settings) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range s.Sites {
		s.Sites[i].Config = resolve(s.Sites[i].Config)
	}
	for name, p := range s.Modules {
		s.Modules[name] = resolve(p)
	}
	s.ModulesDir = resolve(s.ModulesDir)
	s.GroupDir = resolve(s.GroupDir)
	// A bare executable name is looked up on PATH by the shell.
	if strings.ContainsRune(s.Executable, filepath.Separator) || strings.ContainsRune(s.Executable, '/') {
		s.Executable = resolve(s.Executable)
	}
}

// discoverModules adds every child of ModulesDir holding a codeception.yml
// as a module and as a site. Configured entries win over discovered ones.
func (s *Settings) discoverModules(logger log.Logger) {
	if s.ModulesDir == "" {
		return
	}
	entries, err := os.ReadDir(s.ModulesDir)
	if err != nil {
		logger.Warn("Unable to read modules directory", "dir", s.ModulesDir, "err", err)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		cfg := filepath.Join(s.ModulesDir, name, ConfigFileName)
		if _, err := os.Stat(cfg); err != nil {
			continue
		}
		if _, ok := s.Modules[name]; !ok {
			s.Modules[name] = cfg
		}
		if _, ok := s.Site(name); !ok {
			s.Sites = append(s.Sites, Site{Name: name, Config: cfg})
		}
		logger.Debug("Discovered module", "name", name, "config", cfg)
	}
}

// Site returns the site with the given name.
func (s *Settings) Site(name string) (Site, bool) {
	for _, site := range s.Sites {
		if site.Name == name {
			return site, true
		}
	}
	return Site{}, false
}

// DefaultSite returns the first configured site.
func (s *Settings) DefaultSite() Site {
	if len(s.Sites) == 0 {
		return Site{}
	}
	return s.Sites[0]
}

// SiteNames returns the site names in configuration order.
func (s *Settings) SiteNames() []string {
	names := make([]string, len(s.Sites))
	for i, site := range s.Sites {
		names[i] = site.Name
	}
	return names
}

// ActiveTypes returns the enabled test types in sorted order.
func (s *Settings) ActiveTypes() []string {
	var types []string
	for t, active := range s.Tests {
		if active {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}
