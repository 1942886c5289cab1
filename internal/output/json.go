package output

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

// JSONFormatter formats resources as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) encode(what string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}

// FormatVM formats a request file as JSON.
func (f *JSONFormatter) FormatVM(vm *v1alpha1.VirtualMachine) (string, error) {
	v1alpha1.SetDefaultAPIVersion(vm)
	return f.encode("VM", vm)
}

// FormatResources outputs a JSON array, [] when empty.
func (f *JSONFormatter) FormatResources(resources []remote.ResourceSummary) (string, error) {
	if len(resources) == 0 {
		return "[]\n", nil
	}
	return f.encode("resources", resources)
}

func (f *JSONFormatter) FormatDetail(detail *remote.ResourceDetail) (string, error) {
	return f.encode("detail", detail)
}

func (f *JSONFormatter) FormatStatus(name string, status *remote.ResourceStatus) (string, error) {
	return f.encode("status", statusView{Name: name, State: status.State, Running: status.Running})
}

func (f *JSONFormatter) FormatStats(name string, stats *remote.ResourceStats) (string, error) {
	return f.encode("stats", statsView{Name: name, Running: stats != nil, Stats: stats})
}

func (f *JSONFormatter) FormatSnapshots(snapshots []remote.Snapshot) (string, error) {
	if len(snapshots) == 0 {
		return "[]\n", nil
	}
	return f.encode("snapshots", snapshots)
}

func (f *JSONFormatter) FormatAddress(addr *remote.Address) (string, error) {
	return f.encode("address", addr)
}

func (f *JSONFormatter) FormatConsole(ep *remote.ConsoleEndpoint) (string, error) {
	return f.encode("console endpoint", ep)
}

func (f *JSONFormatter) FormatSystemInfo(info *remote.SystemInfo) (string, error) {
	return f.encode("system info", info)
}

func (f *JSONFormatter) FormatOutcome(out provision.Outcome) (string, error) {
	return f.encode("outcome", newOutcomeView(out))
}

func (f *JSONFormatter) FormatRuns(runs []provision.RunStatus) (string, error) {
	if len(runs) == 0 {
		return "[]\n", nil
	}
	return f.encode("runs", runs)
}

func (f *JSONFormatter) FormatSamples(samples []telemetry.Sample) (string, error) {
	if len(samples) == 0 {
		return "[]\n", nil
	}
	return f.encode("samples", samples)
}
