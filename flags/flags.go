package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/ethereum-optimism/infra/op-webcept/types"
)

const EnvVarPrefix = "OP_WEBCEPT"

var (
	Settings = &cli.StringFlag{
		Name:    "settings",
		Value:   "webcept.yaml",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SETTINGS"),
		Usage:   "Path to the settings file (YAML, or TOML when it ends in .toml)",
	}
	Site = &cli.StringFlag{
		Name:    "site",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SITE"),
		Usage:   "Site to operate on. Defaults to the first configured site",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server. Empty disables it",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "0.0.0.0:7300",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_ADDR"),
		Usage:   "Listen address of the Prometheus metrics server. Empty disables it",
	}
	APIAddr = &cli.StringFlag{
		Name:    "api-addr",
		Value:   "127.0.0.1:8545",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_ADDR"),
		Usage:   "Listen address of the JSON API. Empty disables it",
	}
	RunRateLimit = &cli.Float64Flag{
		Name:    "run-rate-limit",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_RATE_LIMIT"),
		Usage:   "Sustained number of API run requests accepted per second",
	}
	RunRateBurst = &cli.IntFlag{
		Name:    "run-rate-burst",
		Value:   4,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_RATE_BURST"),
		Usage:   "Number of API run requests accepted in a burst",
	}
	ReloadInterval = &cli.DurationFlag{
		Name:    "reload-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RELOAD_INTERVAL"),
		Usage:   "Interval between site reloads while serving (e.g. '5m'). Set to 0 or omit to reload only on request.",
	}
	MetricsDebug = &cli.BoolFlag{
		Name:    "metrics-debug",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_DEBUG"),
		Usage:   "Log every metric update at debug level",
	}
)

// Flags of the run subcommand
var (
	Kind = &cli.StringFlag{
		Name:    "kind",
		Value:   types.KindTest.String(),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KIND"),
		Usage:   "Kind of unit to run: test, module or group",
	}
	Type = &cli.StringFlag{
		Name:    "type",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TYPE"),
		Usage:   "Test type of the unit (eg. 'unit', 'acceptance'). Modules default to 'webdriver'",
	}
	ID = &cli.StringFlag{
		Name:    "id",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ID"),
		Usage:   "Identity token of the unit",
	}
	File = &cli.StringFlag{
		Name:    "file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILE"),
		Usage:   "Path of the test file or module config to run, used instead of --id",
	}
	Name = &cli.StringFlag{
		Name:    "name",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NAME"),
		Usage:   "Group name to run",
	}
	Env = &cli.StringSliceFlag{
		Name:    "env",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENV"),
		Usage:   "Engine environment to run with. May be repeated",
	}
	RemoteAddr = &cli.StringFlag{
		Name:    "remote-addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REMOTE_ADDR"),
		Usage:   "Client address exported to the engine",
	}
)

var optionalFlags = []cli.Flag{
	Settings,
	Site,
	HealthzAddr,
	MetricsAddr,
	APIAddr,
	RunRateLimit,
	RunRateBurst,
	ReloadInterval,
	MetricsDebug,
}

// RunFlags are the flags of the run subcommand
var RunFlags = []cli.Flag{
	Kind,
	Type,
	ID,
	File,
	Name,
	Env,
	RemoteAddr,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}
