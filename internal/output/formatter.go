// Package output renders thoth resources as tables, YAML or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for declarative configs.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats thoth resources for output.
type Formatter interface {
	// FormatVM formats a request file.
	FormatVM(vm *v1alpha1.VirtualMachine) (string, error)

	FormatResources(resources []remote.ResourceSummary) (string, error)
	FormatDetail(detail *remote.ResourceDetail) (string, error)
	FormatStatus(name string, status *remote.ResourceStatus) (string, error)

	// FormatStats formats one stats reading. A nil stats means the
	// resource is not running.
	FormatStats(name string, stats *remote.ResourceStats) (string, error)

	FormatSnapshots(snapshots []remote.Snapshot) (string, error)
	FormatAddress(addr *remote.Address) (string, error)
	FormatConsole(ep *remote.ConsoleEndpoint) (string, error)
	FormatSystemInfo(info *remote.SystemInfo) (string, error)
	FormatOutcome(out provision.Outcome) (string, error)

	// FormatRuns formats provisioning runs held by a thoth server.
	FormatRuns(runs []provision.RunStatus) (string, error)

	// FormatSamples formats telemetry samples, oldest first.
	FormatSamples(samples []telemetry.Sample) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	f := Format(format)
	switch f {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// statsView is the structured form of a FormatStats call.
type statsView struct {
	Name    string                `json:"name" yaml:"name"`
	Running bool                  `json:"running" yaml:"running"`
	Stats   *remote.ResourceStats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

type statusView struct {
	Name    string       `json:"name" yaml:"name"`
	State   remote.State `json:"state" yaml:"state"`
	Running bool         `json:"running" yaml:"running"`
}

// outcomeView flattens the error fields of an Outcome into strings.
type outcomeView struct {
	Succeeded    bool                `json:"succeeded" yaml:"succeeded"`
	Address      string              `json:"address,omitempty" yaml:"address,omitempty"`
	Interfaces   []remote.Interface  `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	AddressError string              `json:"addressError,omitempty" yaml:"addressError,omitempty"`
	PollAttempts int                 `json:"pollAttempts" yaml:"pollAttempts"`
	FailedPhase  provision.Phase     `json:"failedPhase,omitempty" yaml:"failedPhase,omitempty"`
	Reason       string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	Reconcile    provision.Reconcile `json:"reconcile" yaml:"reconcile"`
}

func newOutcomeView(out provision.Outcome) outcomeView {
	v := outcomeView{
		Succeeded:    out.Succeeded,
		Address:      out.Address,
		Interfaces:   out.Interfaces,
		PollAttempts: out.PollAttempts,
		FailedPhase:  out.FailedPhase,
		Reconcile:    out.Reconcile,
	}
	if out.AddressErr != nil {
		v.AddressError = out.AddressErr.Error()
	}
	if out.Reason != nil {
		v.Reason = out.Reason.Error()
	}
	return v
}
