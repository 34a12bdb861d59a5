package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-webcept/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "webcept"
)

var (
	Debug                bool = true
	validStates               = []types.State{types.StatePassed, types.StateFailed, types.StateError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of unit runs by outcome",
	}, []string{
		"site",
		"kind",
		"type",
		"state",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of engine runs",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{
		"site",
		"kind",
	})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "rejected_runs_total",
		Help:      "Count of run requests answered without running the engine",
	}, []string{
		"site",
		"kind",
		"reason",
	})

	discoveredUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "discovered_units",
		Help:      "Number of runnable units in the current registry",
	}, []string{
		"site",
		"kind",
	})

	discoveryTally = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "discovery_tally",
		Help:      "Instantiation counter of the current registry",
	}, []string{
		"site",
	})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reloads_total",
		Help:      "Count of registry reloads",
	}, []string{
		"site",
		"ready",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRun records a finished engine run.
func RecordRun(site string, kind types.Kind, unitType string, state types.State, duration time.Duration) {
	if !isValidState(state) {
		log.Error("RecordRun - invalid state", "state", state)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "runs_total",
			"site", site,
			"kind", kind,
			"type", unitType,
			"state", state,
			"duration", duration)
	}
	runsTotal.WithLabelValues(site, kind.String(), unitType, string(state)).Inc()
	runDuration.WithLabelValues(site, kind.String()).Observe(duration.Seconds())
}

// RecordRejected records a run request that never reached the engine.
func RecordRejected(site string, kind types.Kind, reason string) {
	rejectedTotal.WithLabelValues(site, kind.String(), reason).Inc()
}

// RecordDiscovery publishes the unit counts of a freshly built registry.
func RecordDiscovery(site string, counts map[types.Kind]int, tally int) {
	for _, kind := range types.Kinds {
		discoveredUnits.WithLabelValues(site, kind.String()).Set(float64(counts[kind]))
	}
	discoveryTally.WithLabelValues(site).Set(float64(tally))
}

// RecordReload counts a registry reload of a site.
func RecordReload(site string, ready bool) {
	reloadsTotal.WithLabelValues(site, fmt.Sprintf("%t", ready)).Inc()
}

func isValidState(state types.State) bool {
	return slices.Contains(validStates, state)
}
