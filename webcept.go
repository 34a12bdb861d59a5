package webcept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
	"github.com/ethereum-optimism/infra/op-webcept/registry"
	"github.com/ethereum-optimism/infra/op-webcept/reporting"
	"github.com/ethereum-optimism/infra/op-webcept/runner"
	"github.com/ethereum-optimism/infra/op-webcept/service"
	"github.com/ethereum-optimism/infra/op-webcept/settings"
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

// Webcept implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Webcept{}

// Webcept serves the site catalog and runs Codeception units on request.
type Webcept struct {
	config   *Config
	version  string
	settings *settings.Settings
	catalog  *registry.Catalog
	runner   *runner.Runner
	service  *service.Service

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(config *Config, version string) (*Webcept, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	metrics.Debug = config.MetricsDebug

	config.Log.Debug("Creating webcept with config",
		"settings", config.SettingsPath,
		"healthz", config.HealthzAddr,
		"metrics", config.MetricsAddr,
		"api", config.APIAddr)

	s, err := settings.Load(config.SettingsPath, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if config.Site != "" {
		if _, ok := s.Site(config.Site); !ok {
			return nil, fmt.Errorf("%w %q", registry.ErrUnknownSite, config.Site)
		}
	}

	catalog := registry.NewCatalog(s, config.Log)
	r, err := runner.NewRunner(runner.Config{
		Catalog: catalog,
		Log:     config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	api, err := service.NewAPI(service.APIConfig{
		Catalog:      catalog,
		Runner:       r,
		RunRateLimit: config.RunRateLimit,
		RunRateBurst: config.RunRateBurst,
		Log:          config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api: %w", err)
	}
	svc := service.New(service.Config{
		HealthzAddr: config.HealthzAddr,
		MetricsAddr: config.MetricsAddr,
		APIAddr:     config.APIAddr,
		API:         api.Handler(),
		Log:         config.Log,
	})
	config.Log.Info("webcept.New: created catalog, runner and service", "sites", s.SiteNames())

	return &Webcept{
		config:   config,
		version:  version,
		settings: s,
		catalog:  catalog,
		runner:   r,
		service:  svc,
	}, nil
}

// Start loads every site and starts the listeners.
// Start implements the cliapp.Lifecycle interface.
func (w *Webcept) Start(ctx context.Context) error {
	w.config.Log.Info("Starting op-webcept", "version", w.version)

	// A site that fails to load is retried on first use or on reload.
	if err := w.catalog.LoadAll(); err != nil {
		w.config.Log.Warn("Not every site could be loaded", "err", err)
	}

	w.done = make(chan struct{})
	w.service.Start(ctx)
	w.running.Store(true)

	if w.config.ReloadInterval > 0 {
		w.wg.Add(1)
		go w.reloadLoop(ctx)
	}
	w.config.Log.Debug("op-webcept started successfully")
	return nil
}

// reloadLoop rebuilds every site at the configured interval until stopped.
func (w *Webcept) reloadLoop(ctx context.Context) {
	defer w.wg.Done()
	w.config.Log.Debug("Starting periodic site reloader", "interval", w.config.ReloadInterval)

	ticker := time.NewTicker(w.config.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !w.running.Load() {
				return
			}
			w.config.Log.Info("Reloading sites")
			if err := w.catalog.LoadAll(); err != nil {
				w.config.Log.Error("Error reloading sites", "err", err)
			}

		case <-w.done:
			w.config.Log.Debug("Done signal received, stopping periodic site reloader")
			return

		case <-ctx.Done():
			w.config.Log.Debug("Context canceled, stopping periodic site reloader")
			return
		}
	}
}

// Stop shuts the listeners down.
// Stop implements the cliapp.Lifecycle interface.
func (w *Webcept) Stop(ctx context.Context) error {
	w.config.Log.Info("Stopping op-webcept")

	if !w.running.Load() {
		w.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	w.running.Store(false)
	close(w.done)
	w.wg.Wait()

	if err := w.service.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop listeners: %w", err)
	}
	w.config.Log.Info("op-webcept stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (w *Webcept) Stopped() bool {
	return !w.running.Load()
}

// Service returns the listeners, mainly so callers can read bound addresses.
func (w *Webcept) Service() *service.Service {
	return w.service
}

func (w *Webcept) entry() (*registry.Entry, error) {
	entry, err := w.catalog.Current(w.config.Site)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	return entry, nil
}

// List prints the units of the configured site.
func (w *Webcept) List(out io.Writer) error {
	entry, err := w.entry()
	if err != nil {
		return err
	}
	if !entry.Snapshot.Ready {
		w.config.Log.Warn("Site config not found, nothing discovered", "site", entry.Snapshot.Site.Name, "config", entry.Snapshot.ConfigPath)
	}
	reporting.WriteUnits(out, entry.Snapshot.Site.Name, entry.Registry)
	return nil
}

// Check prints the preflight results of the configured site. A failed check
// is a runtime error.
func (w *Webcept) Check(out io.Writer) error {
	entry, err := w.entry()
	if err != nil {
		return err
	}
	checks := runner.Preflight(entry.Snapshot, w.settings.Location)
	reporting.WriteChecks(out, entry.Snapshot.Site.Name, checks)
	for _, c := range checks {
		if !c.Ready {
			return NewRuntimeError(fmt.Errorf("preflight failed for %s: %s", c.Resource, c.Error))
		}
	}
	return nil
}

// Run executes one unit and prints its envelope. Units that cannot be run
// are runtime errors; units that ran without passing are test failures.
func (w *Webcept) Run(ctx context.Context, out io.Writer, target *RunTarget) error {
	req := target.Request
	if req.Site == "" {
		req.Site = w.config.Site
	}
	if req.ID == "" && target.File != "" {
		id, err := w.resolveFile(req.Site, target.Kind, req.Type, target.File)
		if err != nil {
			return err
		}
		req.ID = id
	}

	start := time.Now()
	resp := w.runner.Run(ctx, target.Kind, req)
	reporting.WriteRun(out, target.Kind, resp, time.Since(start))

	switch {
	case resp.State == types.StatePassed:
		return nil
	case resp.Message != nil:
		return NewRuntimeError(errors.New(*resp.Message))
	default:
		return NewTestFailureError(resp.Title, string(resp.State))
	}
}

// resolveFile maps a file path to the identity it was discovered under.
// Discovery records canonical paths for tests and configured paths for
// modules, so both spellings are tried.
func (w *Webcept) resolveFile(site string, kind types.Kind, unitType, file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", NewRuntimeError(fmt.Errorf("failed to resolve absolute path for '%s': %w", file, err))
	}
	candidates := []string{abs}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != abs {
		candidates = append(candidates, resolved)
	}

	entry, err := w.catalog.Current(site)
	if err != nil {
		return "", NewRuntimeError(err)
	}
	for _, path := range candidates {
		id := types.Identity(path)
		if _, ok := entry.Registry.Lookup(kind, unitType, id); ok {
			return id, nil
		}
	}
	return types.Identity(abs), nil
}
