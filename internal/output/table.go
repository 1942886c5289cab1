package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/thoth/api/v1alpha1"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool

	// Now is used for AGE columns. Defaults to time.Now.
	Now func() time.Time
}

func (f *TableFormatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// table runs fn against a tabwriter and returns the flushed text. The
// header is written unless NoHeaders is set.
func (f *TableFormatter) table(header string, fn func(w io.Writer)) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders && header != "" {
		_, _ = fmt.Fprintln(w, header)
	}
	fn(w)

	_ = w.Flush()
	return buf.String()
}

// keyValues renders label/value pairs as an aligned two-column block.
func keyValues(pairs [][2]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	for _, p := range pairs {
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", p[0], p[1])
	}
	_ = w.Flush()
	return buf.String()
}

// FormatVM formats a request file as a single table row.
func (f *TableFormatter) FormatVM(vm *v1alpha1.VirtualMachine) (string, error) {
	return f.table("NAME\tFLAVOR\tVCPUs\tMEMORY\tDISK\tIMAGE\tPHASE\tIP\tAGE", func(w io.Writer) {
		phase, ip := "-", "-"
		if vm.Status != nil {
			if vm.Status.Phase != "" {
				phase = vm.Status.Phase
			}
			if vm.Status.Address != "" {
				ip = vm.Status.Address
			}
		}

		age := "-"
		if !vm.CreationTimestamp.IsZero() {
			age = formatAge(f.now().Sub(vm.CreationTimestamp.Time))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			vm.Name,
			orDash(vm.Spec.Flavor),
			orDashInt(vm.Spec.VCPUs, ""),
			orDashInt(vm.Spec.MemoryMB, " MiB"),
			orDashInt(vm.Spec.DiskGB, " GB"),
			orDash(vm.Spec.Image),
			phase, ip, age)
	}), nil
}

// FormatResources formats the resource list.
func (f *TableFormatter) FormatResources(resources []remote.ResourceSummary) (string, error) {
	if len(resources) == 0 {
		return "No VMs found\n", nil
	}

	return f.table("ID\tNAME\tDISPLAY NAME\tOWNER\tSTATE\tCPU\tMEMORY", func(w io.Writer) {
		for _, r := range resources {
			id := "-"
			if r.ID >= 0 && r.Running {
				id = fmt.Sprintf("%d", r.ID)
			}

			cpu, mem := "-", "-"
			if r.Stats != nil {
				cpu = fmt.Sprintf("%.1f%%", r.Stats.CPUPercent)
				mem = fmt.Sprintf("%.1f%%", r.Stats.Memory.Percent)
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				id, r.Name, orDash(r.DisplayName), orDash(r.Owner), r.State, cpu, mem)
		}
	}), nil
}

// FormatDetail prints the backend's info text as-is.
func (f *TableFormatter) FormatDetail(detail *remote.ResourceDetail) (string, error) {
	info := strings.TrimRight(detail.Info, "\n")
	if info == "" {
		info = fmt.Sprintf("Name: %s\nState: %s", detail.Name, detail.State)
	}
	return info + "\n", nil
}

func (f *TableFormatter) FormatStatus(name string, status *remote.ResourceStatus) (string, error) {
	return f.table("NAME\tSTATE\tRUNNING", func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\n", name, status.State, status.Running)
	}), nil
}

func (f *TableFormatter) FormatStats(name string, stats *remote.ResourceStats) (string, error) {
	if stats == nil {
		return fmt.Sprintf("%s is not running\n", name), nil
	}

	return keyValues([][2]string{
		{"CPU", fmt.Sprintf("%.1f%%", stats.CPUPercent)},
		{"Memory", fmt.Sprintf("%.0f / %.0f MiB (%.1f%%)",
			float64(stats.Memory.UsedKB)/1024, float64(stats.Memory.MaxKB)/1024, stats.Memory.Percent)},
		{"Disk read", fmt.Sprintf("%.2f MiB", stats.Disk.ReadMB)},
		{"Disk write", fmt.Sprintf("%.2f MiB", stats.Disk.WriteMB)},
		{"Net rx", fmt.Sprintf("%.2f MiB", stats.Network.RxMB)},
		{"Net tx", fmt.Sprintf("%.2f MiB", stats.Network.TxMB)},
	}), nil
}

func (f *TableFormatter) FormatSnapshots(snapshots []remote.Snapshot) (string, error) {
	if len(snapshots) == 0 {
		return "No snapshots found\n", nil
	}

	return f.table("NAME\tCREATED\tAGE\tSTATE\tDESCRIPTION", func(w io.Writer) {
		for _, s := range snapshots {
			created, age := "-", "-"
			if !s.CreationTime.IsZero() {
				created = s.CreationTime.Local().Format("2006-01-02 15:04:05")
				age = formatAge(f.now().Sub(s.CreationTime))
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Name, created, age, orDash(s.State), orDash(s.Description))
		}
	}), nil
}

func (f *TableFormatter) FormatAddress(addr *remote.Address) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Primary IP: %s\n", orDash(addr.Primary))
	if len(addr.Interfaces) == 0 {
		return b.String(), nil
	}

	b.WriteString("\n")
	b.WriteString(f.table("INTERFACE\tMAC\tTYPE\tADDRESS", func(w io.Writer) {
		for _, iface := range addr.Interfaces {
			for _, a := range iface.Addrs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s/%d\n", iface.Name, orDash(iface.HWAddr), a.Type, a.Addr, a.Prefix)
			}
		}
	}))
	return b.String(), nil
}

func (f *TableFormatter) FormatConsole(ep *remote.ConsoleEndpoint) (string, error) {
	return fmt.Sprintf("vnc://%s:%d (display %s)\n", ep.Host, ep.Port, ep.Display), nil
}

func (f *TableFormatter) FormatSystemInfo(info *remote.SystemInfo) (string, error) {
	mem := "-"
	if info.MemoryKB > 0 {
		mem = fmt.Sprintf("%.1f GiB", float64(info.MemoryKB)/(1024*1024))
	}
	return keyValues([][2]string{
		{"Hostname", info.Hostname},
		{"Platform", orDash(info.Platform)},
		{"Kernel", orDash(info.KernelVersion)},
		{"CPUs", orDashInt(info.CPUs, "")},
		{"Memory", mem},
		{"Libvirt", orDash(info.LibvirtVersion)},
		{"Domains", fmt.Sprintf("%d", info.Domains)},
	}), nil
}

// FormatOutcome summarizes a provisioning run. Failed runs list what may
// have been left behind on the hypervisor.
func (f *TableFormatter) FormatOutcome(out provision.Outcome) (string, error) {
	name := out.Reconcile.ResourceName

	switch {
	case out.AddressKnown():
		return keyValues([][2]string{
			{"Result", "Succeeded"},
			{"VM", name},
			{"Address", out.Address},
		}), nil
	case out.Succeeded:
		reason := "no address reported in time"
		if out.AddressErr != nil {
			reason = out.AddressErr.Error()
		}
		return keyValues([][2]string{
			{"Result", "Succeeded (address unknown)"},
			{"VM", name},
			{"Address", reason},
			{"Hint", fmt.Sprintf("run 'thoth ip %s' once the guest has booted", name)},
		}), nil
	}

	pairs := [][2]string{
		{"Result", "Failed"},
		{"Phase", string(out.FailedPhase)},
		{"Reason", fmt.Sprintf("%v", out.Reason)},
	}
	switch {
	case out.Reconcile.Started:
		pairs = append(pairs, [2]string{"Left behind", fmt.Sprintf("%s (defined and started)", name)})
	case out.Reconcile.CreateIssued:
		pairs = append(pairs, [2]string{"Left behind", fmt.Sprintf("%s may exist (create was issued)", name)})
	}
	return keyValues(pairs), nil
}

func (f *TableFormatter) FormatRuns(runs []provision.RunStatus) (string, error) {
	if len(runs) == 0 {
		return "No runs found\n", nil
	}

	return f.table("ID\tHOSTNAME\tPHASE\tADDRESS\tAGE", func(w io.Writer) {
		for _, r := range runs {
			addr := "-"
			if r.Outcome != nil && r.Outcome.Address != "" {
				addr = r.Outcome.Address
			}
			age := "-"
			if !r.Submitted.IsZero() {
				age = formatAge(f.now().Sub(r.Submitted))
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Hostname, r.Phase, addr, age)
		}
	}), nil
}

func (f *TableFormatter) FormatSamples(samples []telemetry.Sample) (string, error) {
	return f.table("TIME\tCPU\tMEMORY\tDISK WRITE\tNET TX", func(w io.Writer) {
		for _, s := range samples {
			_, _ = fmt.Fprintf(w, "%s\t%.1f%%\t%.1f%%\t%.2f MiB\t%.2f MiB\n",
				s.Label(), s.CPUPercent, s.MemoryPct, s.DiskWriteMB, s.NetTxMB)
		}
	}), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orDashInt(n int, unit string) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%s", n, unit)
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
