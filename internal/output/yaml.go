package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) encode(what string, v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}

// FormatVM formats a request file as YAML.
func (f *YAMLFormatter) FormatVM(vm *v1alpha1.VirtualMachine) (string, error) {
	v1alpha1.SetDefaultAPIVersion(vm)
	return f.encode("VM", vm)
}

// FormatResources outputs a YAML stream, one document per resource.
func (f *YAMLFormatter) FormatResources(resources []remote.ResourceSummary) (string, error) {
	var buf bytes.Buffer

	for i, r := range resources {
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to marshal resource %s to YAML: %w", r.Name, err)
		}

		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatDetail includes the live XML, which the YAML tags of
// ResourceDetail leave out.
func (f *YAMLFormatter) FormatDetail(detail *remote.ResourceDetail) (string, error) {
	return f.encode("detail", struct {
		Name    string       `yaml:"name"`
		State   remote.State `yaml:"state"`
		Running bool         `yaml:"running"`
		Info    string       `yaml:"info"`
		XML     string       `yaml:"xml,omitempty"`
	}{detail.Name, detail.State, detail.Running, detail.Info, detail.XML})
}

func (f *YAMLFormatter) FormatStatus(name string, status *remote.ResourceStatus) (string, error) {
	return f.encode("status", statusView{Name: name, State: status.State, Running: status.Running})
}

func (f *YAMLFormatter) FormatStats(name string, stats *remote.ResourceStats) (string, error) {
	return f.encode("stats", statsView{Name: name, Running: stats != nil, Stats: stats})
}

func (f *YAMLFormatter) FormatSnapshots(snapshots []remote.Snapshot) (string, error) {
	if len(snapshots) == 0 {
		return "[]\n", nil
	}
	return f.encode("snapshots", snapshots)
}

func (f *YAMLFormatter) FormatAddress(addr *remote.Address) (string, error) {
	return f.encode("address", addr)
}

func (f *YAMLFormatter) FormatConsole(ep *remote.ConsoleEndpoint) (string, error) {
	return f.encode("console endpoint", ep)
}

func (f *YAMLFormatter) FormatSystemInfo(info *remote.SystemInfo) (string, error) {
	return f.encode("system info", info)
}

func (f *YAMLFormatter) FormatOutcome(out provision.Outcome) (string, error) {
	return f.encode("outcome", newOutcomeView(out))
}

func (f *YAMLFormatter) FormatRuns(runs []provision.RunStatus) (string, error) {
	if len(runs) == 0 {
		return "[]\n", nil
	}
	return f.encode("runs", runs)
}

func (f *YAMLFormatter) FormatSamples(samples []telemetry.Sample) (string, error) {
	if len(samples) == 0 {
		return "[]\n", nil
	}
	return f.encode("samples", samples)
}
