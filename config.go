package webcept

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-webcept/flags"
	"github.com/ethereum-optimism/infra/op-webcept/runner"
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

// Config holds the application configuration
type Config struct {
	SettingsPath string
	Site         string // Site used by the one-shot commands; empty means the first configured site
	HealthzAddr  string
	MetricsAddr  string
	APIAddr      string
	RunRateLimit float64 // Run requests per second accepted by the API
	RunRateBurst int

	// ReloadInterval rebuilds every site periodically while serving. Zero disables it.
	ReloadInterval time.Duration
	MetricsDebug   bool
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	settingsPath := ctx.String(flags.Settings.Name)
	if settingsPath == "" {
		return nil, errors.New("settings file is required")
	}
	absSettings, err := filepath.Abs(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for settings '%s': %w", settingsPath, err)
	}

	return &Config{
		SettingsPath:   absSettings,
		Site:           ctx.String(flags.Site.Name),
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:    ctx.String(flags.MetricsAddr.Name),
		APIAddr:        ctx.String(flags.APIAddr.Name),
		RunRateLimit:   ctx.Float64(flags.RunRateLimit.Name),
		RunRateBurst:   ctx.Int(flags.RunRateBurst.Name),
		ReloadInterval: ctx.Duration(flags.ReloadInterval.Name),
		MetricsDebug:   ctx.Bool(flags.MetricsDebug.Name),
		Log:            log,
	}, nil
}

// RunTarget is what the run command was asked to execute
type RunTarget struct {
	Kind types.Kind
	// File is resolved to an identity against the registry when ID is empty.
	File    string
	Request runner.Request
}

// NewRunTarget reads the run subcommand flags.
func NewRunTarget(ctx *cli.Context) (*RunTarget, error) {
	kind := types.Kind(ctx.String(flags.Kind.Name))
	target := &RunTarget{
		Kind: kind,
		File: ctx.String(flags.File.Name),
		Request: runner.Request{
			Site:       ctx.String(flags.Site.Name),
			Type:       ctx.String(flags.Type.Name),
			ID:         ctx.String(flags.ID.Name),
			Name:       ctx.String(flags.Name.Name),
			Envs:       ctx.StringSlice(flags.Env.Name),
			RemoteAddr: ctx.String(flags.RemoteAddr.Name),
		},
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

// Validate checks the target names exactly one unit of a known kind.
func (t *RunTarget) Validate() error {
	switch t.Kind {
	case types.KindGroup:
		if t.Request.Name == "" {
			return errors.New("--name is required for group runs")
		}
		return nil
	case types.KindModule:
		if t.Request.Type == "" {
			t.Request.Type = types.ModuleType
		}
	case types.KindTest:
		if t.Request.Type == "" {
			return errors.New("--type is required for test runs")
		}
	default:
		return fmt.Errorf("kind must be one of %v, got %q", types.Kinds, t.Kind)
	}
	if t.Request.ID == "" && t.File == "" {
		return fmt.Errorf("--id or --file is required for %s runs", t.Kind)
	}
	if t.Request.ID != "" && t.File != "" {
		return errors.New("--id and --file are mutually exclusive")
	}
	return nil
}
