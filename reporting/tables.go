// Package reporting renders units, run results and preflight checks as
// console tables.
package reporting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-webcept/registry"
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

// StateString returns a marked string representing a unit state
func StateString(state types.State) string {
	switch state {
	case types.StatePassed:
		return "✓ passed"
	case types.StateFailed:
		return "✗ failed"
	case types.StateError:
		return "! error"
	default:
		return "- ready"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// WriteUnits prints every unit of a registry, grouped by kind and type.
func WriteUnits(w io.Writer, site string, reg *registry.Registry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Units of %s", site))
	t.AppendHeader(table.Row{"Kind", "Type", "Title", "ID", "Location"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Kind", AutoMerge: true},
		{Name: "Type", AutoMerge: true},
		{Name: "Location", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, kind := range types.Kinds {
		byType := reg.Units(kind)
		typeNames := make([]string, 0, len(byType))
		for name := range byType {
			typeNames = append(typeNames, name)
		}
		sort.Strings(typeNames)

		for _, typeName := range typeNames {
			units := byType[typeName]
			for i, u := range units {
				prefix := "├──"
				if i == len(units)-1 {
					prefix = "└──"
				}
				t.AppendRow(table.Row{
					kind,
					typeName,
					fmt.Sprintf("%s %s", prefix, u.Title),
					u.ID,
					u.Location,
				})
			}
		}
		if len(typeNames) > 0 {
			t.AppendSeparator()
		}
	}

	counts := reg.Counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		fmt.Sprintf("%d tests, %d modules, %d groups", counts[types.KindTest], counts[types.KindModule], counts[types.KindGroup]),
		"",
		fmt.Sprintf("tally %d", reg.Tally()),
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// WriteRun prints the envelope of a finished run followed by its log.
func WriteRun(w io.Writer, kind types.Kind, resp types.RunResponse, duration time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Codeception %s run (%s)", kind, formatDuration(duration)))
	t.AppendHeader(table.Row{"Title", "Run", "Passed", "State", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	t.AppendRow(table.Row{
		resp.Title,
		resp.Run,
		resp.Passed,
		StateString(resp.State),
		resp.MessageText(),
	})

	switch resp.State {
	case types.StatePassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StateFailed:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	if resp.Log != nil {
		_, _ = fmt.Fprintln(w, *resp.Log)
	}
	t.Render()
}

// WriteChecks prints preflight results.
func WriteChecks(w io.Writer, site string, checks []types.CheckResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Preflight checks of %s", site))
	t.AppendHeader(table.Row{"Resource", "Config", "Ready", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Resource", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	ready := true
	for _, c := range checks {
		mark := "✓"
		if !c.Ready {
			mark = "✗"
			ready = false
		}
		t.AppendRow(table.Row{c.Resource, c.Config, mark, c.Error})
	}

	if ready {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}
