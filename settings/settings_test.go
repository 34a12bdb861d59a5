package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "webcept.yaml")
	writeFile(t, configPath, `
sites:
  - name: All tests
    config: app/codeception.yml
  - name: Shop
    config: /srv/shop/codeception.yml
modules:
  Blog: app/application/modules/Blog/codeception.yml
groups: [fastTest, Article]
executable: app/vendor/bin/codecept
run_php: true
tests:
  webdriver: true
  unit: false
ignore: [_bootstrap.php]
debug: true
`)

	s, err := Load(configPath, log.New())
	require.NoError(t, err)

	assert.Equal(t, configPath, s.Location)
	assert.Equal(t, []string{"All tests", "Shop"}, s.SiteNames())
	assert.Equal(t, filepath.Join(tmpDir, "app", "codeception.yml"), s.Sites[0].Config)
	assert.Equal(t, "/srv/shop/codeception.yml", s.Sites[1].Config)
	assert.Equal(t, filepath.Join(tmpDir, "app/application/modules/Blog/codeception.yml"), s.Modules["Blog"])
	assert.Equal(t, filepath.Join(tmpDir, "app/vendor/bin/codecept"), s.Executable)
	assert.Equal(t, []string{"fastTest", "Article"}, s.Groups)
	assert.True(t, s.RunPHP)
	assert.True(t, s.Debug)
	assert.True(t, s.Steps, "steps defaults to on")
	assert.Equal(t, DefaultInterpreter, s.Interpreter)
	assert.Equal(t, map[string]bool{"webdriver": true, "unit": false}, s.Tests, "tests replace the defaults")
	assert.Equal(t, []string{"webdriver"}, s.ActiveTypes())
	assert.Equal(t, []string{"_bootstrap.php"}, s.Ignore)
	assert.Equal(t, "All tests", s.DefaultSite().Name)
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "webcept.toml")
	writeFile(t, configPath, `
executable = "codecept"
steps = false
groups = ["fastTest"]

[[sites]]
name = "All tests"
config = "app/codeception.yml"

[tests]
acceptance = true
`)

	s, err := Load(configPath, log.New())
	require.NoError(t, err)

	assert.Equal(t, "codecept", s.Executable, "bare executable names stay on PATH")
	assert.False(t, s.Steps)
	assert.Equal(t, []string{"fastTest"}, s.Groups)
	assert.Equal(t, []string{"acceptance"}, s.ActiveTypes())
	assert.Equal(t, DefaultIgnore, s.Ignore)
	assert.Equal(t, filepath.Join(tmpDir, "app", "codeception.yml"), s.DefaultSite().Config)
	assert.NotNil(t, s.Modules)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "webcept.yaml")
	writeFile(t, configPath, "executable: codecept\nsites: [{name: app, config: codeception.yml}]\n")

	s, err := Load(configPath, log.New())
	require.NoError(t, err)

	assert.True(t, s.RunPHP)
	assert.Equal(t, DefaultInterpreter, s.Interpreter)
	assert.True(t, s.Steps)
	assert.False(t, s.Debug)
	assert.Equal(t, DefaultTests(), s.Tests)
	assert.Equal(t, []string{"phpbrowser", "webdriver"}, s.ActiveTypes())
	assert.Equal(t, DefaultIgnore, s.Ignore)
}

func TestLoadDiscoversModules(t *testing.T) {
	tmpDir := t.TempDir()
	modulesDir := filepath.Join(tmpDir, "application", "modules")
	writeFile(t, filepath.Join(modulesDir, "Blog", ConfigFileName), "paths: {tests: tests}\n")
	writeFile(t, filepath.Join(modulesDir, "Shop", ConfigFileName), "paths: {tests: tests}\n")
	require.NoError(t, os.MkdirAll(filepath.Join(modulesDir, "Empty"), 0755))
	writeFile(t, filepath.Join(modulesDir, "README.md"), "not a module")

	configPath := filepath.Join(tmpDir, "webcept.yaml")
	writeFile(t, configPath, `
sites:
  - name: All tests
    config: codeception.yml
modules_dir: application/modules
modules:
  Blog: custom/blog.yml
executable: codecept
`)

	s, err := Load(configPath, log.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"All tests", "Blog", "Shop"}, s.SiteNames())
	assert.Equal(t, filepath.Join(tmpDir, "custom/blog.yml"), s.Modules["Blog"], "configured module wins")
	assert.Equal(t, filepath.Join(modulesDir, "Shop", ConfigFileName), s.Modules["Shop"])
	assert.NotContains(t, s.Modules, "Empty")
}

func TestLoadErrors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing executable",
			content: "sites: [{name: a, config: codeception.yml}]\n",
			wantErr: ErrNoExecutable,
		},
		{
			name:    "missing sites",
			content: "executable: codecept\n",
			wantErr: ErrNoSites,
		},
		{
			name:    "duplicate sites",
			content: "executable: codecept\nsites: [{name: a, config: x.yml}, {name: a, config: y.yml}]\n",
		},
		{
			name:    "invalid yaml",
			content: "sites: [\n",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, "cfg"+string(rune('a'+i))+".yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path, log.New())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := Load(filepath.Join(tmpDir, "missing.yaml"), log.New())
	assert.Error(t, err)
}

func TestSiteHelpers(t *testing.T) {
	site := Site{Name: "app", Config: "/srv/app/codeception.yml"}
	assert.Equal(t, "/srv/app", site.Dir())
	assert.Equal(t, "codeception.yml", site.File())

	s := &Settings{Sites: []Site{site}}
	got, ok := s.Site("app")
	assert.True(t, ok)
	assert.Equal(t, site, got)
	_, ok = s.Site("missing")
	assert.False(t, ok)
	assert.Equal(t, Site{}, (&Settings{}).DefaultSite())
}
