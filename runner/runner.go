package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
	"github.com/ethereum-optimism/infra/op-webcept/outcome"
	"github.com/ethereum-optimism/infra/op-webcept/registry"
	"github.com/ethereum-optimism/infra/op-webcept/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request identifies what to run and on whose behalf
type Request struct {
	// Site is the site name; empty selects the default site.
	Site string
	// Type and ID select a test or module. Groups use Name instead.
	Type string
	ID   string
	Name string
	// Envs are the requested engine environments.
	Envs []string
	// RemoteAddr is exported to the engine as SSH_CLIENT.
	RemoteAddr string
}

// Runner looks up units in the current catalog entry of a site, runs them
// through the engine and returns result envelopes.
type Runner struct {
	catalog    *registry.Catalog
	executor   Executor
	classifier *outcome.Classifier
	log        log.Logger
	tracer     trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Catalog    *registry.Catalog
	Executor   Executor
	Classifier *outcome.Classifier
	Log        log.Logger
}

// NewRunner creates a new runner instance
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Executor == nil {
		cfg.Executor = NewShellExecutor(cfg.Log)
	}
	if cfg.Classifier == nil {
		cfg.Classifier = outcome.Default()
	}

	return &Runner{
		catalog:    cfg.Catalog,
		executor:   cfg.Executor,
		classifier: cfg.Classifier,
		log:        cfg.Log,
		tracer:     otel.Tracer("webcept runner"),
	}, nil
}

// RunTest runs a discovered test file.
func (r *Runner) RunTest(ctx context.Context, req Request) types.RunResponse {
	return r.run(ctx, types.KindTest, req, func(reg *registry.Registry) (*types.Unit, bool) {
		return reg.Lookup(types.KindTest, req.Type, req.ID)
	})
}

// RunModule runs a module suite.
func (r *Runner) RunModule(ctx context.Context, req Request) types.RunResponse {
	return r.run(ctx, types.KindModule, req, func(reg *registry.Registry) (*types.Unit, bool) {
		return reg.Lookup(types.KindModule, req.Type, req.ID)
	})
}

// RunGroup runs a named group.
func (r *Runner) RunGroup(ctx context.Context, req Request) types.RunResponse {
	return r.run(ctx, types.KindGroup, req, func(reg *registry.Registry) (*types.Unit, bool) {
		return reg.Group(req.Name)
	})
}

// Run dispatches on kind.
func (r *Runner) Run(ctx context.Context, kind types.Kind, req Request) types.RunResponse {
	switch kind {
	case types.KindModule:
		return r.RunModule(ctx, req)
	case types.KindGroup:
		return r.RunGroup(ctx, req)
	default:
		return r.RunTest(ctx, req)
	}
}

func (r *Runner) run(ctx context.Context, kind types.Kind, req Request, lookup func(*registry.Registry) (*types.Unit, bool)) types.RunResponse {
	site := r.catalog.Resolve(req.Site)

	var (
		unit  *types.Unit
		ready bool
	)
	entry, err := r.catalog.Current(site)
	if err != nil {
		r.log.Error("Site not available", "site", site, "err", err)
		metrics.RecordErrorDetails("catalog", err)
	} else {
		ready = entry.Snapshot.Ready
		unit, _ = lookup(entry.Registry)
	}

	if unit == nil || !ready {
		resp := BuildResponse(kind, unit, ready)
		reason := "not_ready"
		if unit == nil {
			reason = "not_found"
		}
		metrics.RecordRejected(site, kind, reason)
		r.log.Warn("Run rejected", "site", site, "kind", kind, "type", req.Type, "id", req.ID, "name", req.Name, "message", resp.MessageText())
		return resp
	}

	unit.AcquireRun()
	defer unit.ReleaseRun()

	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("%s %s", kind, unit.Title))
	defer span.End()
	span.SetAttributes(
		attribute.String("webcept.run_id", runID),
		attribute.String("webcept.site", site),
		attribute.String("webcept.kind", kind.String()),
		attribute.String("webcept.type", unit.Type),
	)

	snap := entry.Snapshot
	invocation := NewCommandBuilder(snap, r.log).BuildFor(unit, req.Envs, req.RemoteAddr)
	workDir := WorkDir(snap, unit)
	header := Header(unit, workDir, invocation)

	r.log.Info("Running unit", "run_id", runID, "site", site, "kind", kind, "title", unit.Title, "dir", workDir)
	start := time.Now()
	lines, execErr := r.executor.Execute(ctx, Command{
		Invocation: invocation,
		Dir:        workDir,
		LogPath:    snap.LogPath,
	})
	duration := time.Since(start)

	unit.SetLog(header, lines, r.classifier)
	for _, notice := range unit.Notices() {
		r.log.Warn("Engine reported a notice", "run_id", runID, "title", unit.Title, "notice", notice)
	}

	resp := BuildResponse(kind, unit, ready)
	if execErr != nil {
		msg := execErr.Error()
		resp.Message = &msg
		span.RecordError(execErr)
		span.SetStatus(codes.Error, msg)
		metrics.RecordErrorDetails("execute", execErr)
		r.log.Error("Engine run failed", "run_id", runID, "title", unit.Title, "err", execErr)
	} else if resp.State != types.StatePassed {
		span.SetStatus(codes.Error, string(resp.State))
	}
	span.SetAttributes(attribute.String("webcept.state", string(resp.State)))

	metrics.RecordRun(site, kind, unit.Type, resp.State, duration)
	r.log.Info("Unit finished", "run_id", runID, "title", unit.Title, "state", resp.State, "duration", duration)
	return resp
}
