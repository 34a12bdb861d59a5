package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	webcept "github.com/ethereum-optimism/infra/op-webcept"
	"github.com/ethereum-optimism/infra/op-webcept/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-webcept"
	app.Usage = "Codeception test orchestrator"
	app.Description = "op-webcept discovers Codeception tests, modules and groups and runs them on request"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(serve)
	app.Commands = []*cli.Command{
		{
			Name:   "list",
			Usage:  "List the units discovered for a site",
			Action: withWebcept(list),
		},
		{
			Name:   "run",
			Usage:  "Run one test, module or group and print its result",
			Flags:  cliapp.ProtectFlags(flags.RunFlags),
			Action: withWebcept(run),
		},
		{
			Name:   "check",
			Usage:  "Check the log directory and the Codeception executable of a site",
			Action: withWebcept(check),
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), webcept.ExitCode(err)))
		}
	}
	return app
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func newWebcept(ctx *cli.Context) (*webcept.Webcept, error) {
	logger := setupLogger(ctx)

	cfg, err := webcept.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, webcept.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	w, err := webcept.New(cfg, Version)
	if err != nil {
		return nil, webcept.NewRuntimeError(fmt.Errorf("failed to create webcept: %w", err))
	}
	return w, nil
}

func serve(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	w, err := newWebcept(ctx)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func withWebcept(fn func(*cli.Context, *webcept.Webcept) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		w, err := newWebcept(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, w)
	}
}

func list(ctx *cli.Context, w *webcept.Webcept) error {
	return w.List(ctx.App.Writer)
}

func check(ctx *cli.Context, w *webcept.Webcept) error {
	return w.Check(ctx.App.Writer)
}

func run(ctx *cli.Context, w *webcept.Webcept) error {
	target, err := webcept.NewRunTarget(ctx)
	if err != nil {
		return webcept.NewRuntimeError(fmt.Errorf("invalid run target: %w", err))
	}
	return w.Run(ctx.Context, ctx.App.Writer, target)
}
