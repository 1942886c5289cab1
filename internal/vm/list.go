package vm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/digitalocean/go-libvirt"

	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/metadata"
	"github.com/jbweber/thoth/internal/remote"
)

// ListResources lists every domain, active or not, sorted by name.
//
// Owner and display name come from thoth's metadata; domains created outside
// thoth show their libvirt name and no owner. Running domains carry stats.
func (b *Backend) ListResources(ctx context.Context) ([]remote.ResourceSummary, error) {
	const op = "list resources"
	if err := ctx.Err(); err != nil {
		return nil, remote.Unavailable(op, "", err)
	}

	domains, _, err := b.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, classify(op, "", err)
	}

	out := make([]remote.ResourceSummary, 0, len(domains))
	for _, dom := range domains {
		state, err := b.state(dom)
		if err != nil {
			// A domain can disappear between list and lookup.
			b.log.Debugw("skipping domain", "name", dom.Name, "error", err)
			continue
		}

		inst := metadata.LoadOrDefault(b.lv, dom)
		display := inst.DisplayName
		if display == "" {
			display = dom.Name
		}

		summary := remote.ResourceSummary{
			ID:          int(dom.ID),
			Name:        dom.Name,
			DisplayName: display,
			Owner:       inst.Owner,
			State:       remote.StateFromCode(state),
			Running:     state == domainStateRunning,
		}
		if summary.Running {
			stats, err := b.statsFor(dom)
			if err != nil {
				b.log.Debugw("failed to read stats", "name", dom.Name, "error", err)
			} else {
				summary.Stats = stats
			}
		}
		out = append(out, summary)
	}

	slices.SortFunc(out, func(a, b remote.ResourceSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// GetResourceDetail describes one domain. Info is a human-readable summary of
// its configuration; XML is the full live description.
func (b *Backend) GetResourceDetail(ctx context.Context, name string) (*remote.ResourceDetail, error) {
	const op = "get detail"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}

	state, err := b.state(dom)
	if err != nil {
		return nil, classify(op, name, err)
	}

	xmlDesc, err := b.lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return nil, classify(op, name, err)
	}

	desc, err := thothlibvirt.ParseDomain(xmlDesc)
	if err != nil {
		return nil, remote.Rejected(op, name, err)
	}

	var info strings.Builder
	fmt.Fprintf(&info, "State: %s\n", remote.StateFromCode(state))
	if _, _, memKB, _, cpuTime, err := b.lv.DomainGetInfo(dom); err == nil && state == domainStateRunning {
		fmt.Fprintf(&info, "Used memory: %d MiB\n", memKB/1024)
		fmt.Fprintf(&info, "CPU time: %.1fs\n", float64(cpuTime)/1e9)
	}
	if inst, err := metadata.Load(b.lv, dom); err == nil {
		writeInstance(&info, inst)
	}
	info.WriteString(desc.Summary())

	return &remote.ResourceDetail{
		Name:    name,
		State:   remote.StateFromCode(state),
		Running: state == domainStateRunning,
		Info:    info.String(),
		XML:     xmlDesc,
	}, nil
}

func writeInstance(w *strings.Builder, inst *metadata.Instance) {
	if inst.Owner != "" {
		fmt.Fprintf(w, "Owner: %s\n", inst.Owner)
	}
	if inst.Flavor != "" {
		fmt.Fprintf(w, "Flavor: %s\n", inst.Flavor)
	}
	if inst.Image != "" {
		fmt.Fprintf(w, "Image: %s\n", inst.Image)
	}
	if !inst.Created.IsZero() {
		fmt.Fprintf(w, "Created: %s\n", inst.Created.UTC().Format("2006-01-02 15:04:05"))
	}
	if inst.ClonedFrom != "" {
		fmt.Fprintf(w, "Cloned from: %s\n", inst.ClonedFrom)
	}
}

// GetResourceStatus reports the lifecycle state of one domain.
func (b *Backend) GetResourceStatus(ctx context.Context, name string) (*remote.ResourceStatus, error) {
	const op = "get status"
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return nil, err
	}
	state, err := b.state(dom)
	if err != nil {
		return nil, classify(op, name, err)
	}
	return &remote.ResourceStatus{
		State:   remote.StateFromCode(state),
		Running: state == domainStateRunning,
	}, nil
}

// domainExists reports whether name is defined. Errors other than "not
// found" are returned.
func (b *Backend) domainExists(name string) (bool, error) {
	_, err := b.lv.DomainLookupByName(name)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// inactiveXML returns the persistent definition of dom.
func (b *Backend) inactiveXML(dom libvirt.Domain) (string, error) {
	return b.lv.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
}
