package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-webcept/settings"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testSettings(config string) *settings.Settings {
	return &settings.Settings{
		Sites:       []settings.Site{{Name: "app", Config: config}},
		Executable:  "codecept",
		Interpreter: settings.DefaultInterpreter,
		Tests:       map[string]bool{"acceptance": true, "unit": true, "functional": false},
		Ignore:      []string{"_bootstrap.php"},
		Groups:      []string{"fastTest"},
		Modules:     map[string]string{},
		Steps:       true,
	}
}

func realDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestLoad(t *testing.T) {
	dir := realDir(t)
	config := filepath.Join(dir, settings.ConfigFileName)
	writeFile(t, config, `
paths:
  tests: tests
  log: tests/_output
  data: tests/_data
`)
	writeFile(t, filepath.Join(dir, "tests", "acceptance.suite.yml"), `
actor: AcceptanceTester
env:
  staging:
    modules: {}
  chrome: {}
  firefox: {}
`)
	writeFile(t, filepath.Join(dir, "tests", "functional.suite.yml"), "env:\n  hidden: {}\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests", "_output"), 0755))

	s := testSettings(config)
	snap, err := Load(s, s.Sites[0], log.New())
	require.NoError(t, err)

	assert.True(t, snap.Ready)
	assert.Equal(t, config, snap.ConfigPath)
	assert.Equal(t, []string{filepath.Join(dir, "tests")}, snap.TestRoots)
	assert.Equal(t, filepath.Join(dir, "tests", "_output"), snap.LogPath)
	assert.Equal(t, []string{filepath.Join(dir, "tests", "_data")}, snap.Paths["data"], "missing paths are joined but not canonicalized")
	assert.Equal(t, []string{"chrome", "firefox", "staging"}, snap.Environments("acceptance"))
	assert.Empty(t, snap.Environments("unit"))
	assert.NotContains(t, snap.Env, "functional", "inactive types are skipped")
	assert.True(t, snap.EnvironmentAllowed("acceptance", "chrome"))
	assert.False(t, snap.EnvironmentAllowed("unit", "chrome"))
	assert.Equal(t, []string{"acceptance", "unit"}, snap.ActiveTypes())
	assert.Equal(t, dir, snap.GroupDir, "groups run from the site directory by default")
	assert.True(t, snap.Ignored("_bootstrap.php"))
	assert.False(t, snap.Ignored("LoginCest.php"))
	assert.Equal(t, "codecept", snap.Executable)
	assert.True(t, snap.Steps)
}

func TestLoadOutputFallback(t *testing.T) {
	dir := realDir(t)
	config := filepath.Join(dir, settings.ConfigFileName)
	writeFile(t, config, "paths:\n  tests: [tests, more]\n  output: out\n")

	s := testSettings(config)
	s.GroupDir = "/srv/groups"
	snap, err := Load(s, s.Sites[0], log.New())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "tests"), filepath.Join(dir, "more")}, snap.TestRoots)
	assert.Equal(t, filepath.Join(dir, "out"), snap.LogPath)
	assert.Equal(t, "/srv/groups", snap.GroupDir)
}

func TestLoadIncludes(t *testing.T) {
	dir := realDir(t)
	config := filepath.Join(dir, settings.ConfigFileName)
	writeFile(t, config, `
include:
  - application/modules/Blog
  - application/modules/Missing
paths:
  log: tests/_output
`)
	blog := filepath.Join(dir, "application", "modules", "Blog")
	writeFile(t, filepath.Join(blog, settings.ConfigFileName), "paths:\n  tests: tests\n")
	writeFile(t, filepath.Join(blog, "tests", "acceptance.suite.yml"), "env:\n  blog: {}\n")

	s := testSettings(config)
	snap, err := Load(s, s.Sites[0], log.New())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(blog, "tests")}, snap.TestRoots)
	assert.Equal(t, []string{"blog"}, snap.Environments("acceptance"))
}

func TestLoadNotReady(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(filepath.Join(dir, settings.ConfigFileName))

	snap, err := Load(s, s.Sites[0], log.New())
	require.NoError(t, err)
	assert.False(t, snap.Ready)
	assert.Empty(t, snap.TestRoots)
	assert.Equal(t, []string{"fastTest"}, snap.Groups, "static settings are carried")
}

func TestLoadMissingPaths(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no paths", content: "actor_suffix: Tester\n"},
		{name: "scalar paths", content: "paths: tests\n"},
		{name: "empty document", content: ""},
		{name: "bad path value", content: "paths:\n  tests: {nested: true}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			config := filepath.Join(dir, settings.ConfigFileName)
			writeFile(t, config, tt.content)
			s := testSettings(config)

			_, err := Load(s, s.Sites[0], log.New())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingPaths)
		})
	}
}

func TestSnapshotIsolatedFromSettings(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(filepath.Join(dir, settings.ConfigFileName))
	snap, err := Load(s, s.Sites[0], log.New())
	require.NoError(t, err)

	s.Groups[0] = "changed"
	s.Tests["unit"] = false
	assert.Equal(t, []string{"fastTest"}, snap.Groups)
	assert.True(t, snap.Tests["unit"])
}
