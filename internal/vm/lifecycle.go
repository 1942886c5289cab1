package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"
)

// Start boots a defined domain.
func (b *Backend) Start(ctx context.Context, name string) error {
	return b.apply(ctx, "start", name, b.lv.DomainCreate)
}

// Shutdown asks the guest to power off. It returns once the request is
// delivered; the guest may take a while to comply.
func (b *Backend) Shutdown(ctx context.Context, name string) error {
	return b.apply(ctx, "shutdown", name, b.lv.DomainShutdown)
}

// Reboot asks the guest to restart using the hypervisor's default method.
func (b *Backend) Reboot(ctx context.Context, name string) error {
	return b.apply(ctx, "reboot", name, func(dom libvirt.Domain) error {
		return b.lv.DomainReboot(dom, 0)
	})
}

// Pause suspends the domain's vCPUs.
func (b *Backend) Pause(ctx context.Context, name string) error {
	return b.apply(ctx, "pause", name, b.lv.DomainSuspend)
}

// Resume continues a paused domain.
func (b *Backend) Resume(ctx context.Context, name string) error {
	return b.apply(ctx, "resume", name, b.lv.DomainResume)
}

// Destroy powers the domain off immediately. The definition is kept.
func (b *Backend) Destroy(ctx context.Context, name string) error {
	if err := b.apply(ctx, "destroy", name, b.lv.DomainDestroy); err != nil {
		return err
	}
	b.forgetCPU(name)
	return nil
}

func (b *Backend) apply(ctx context.Context, op, name string, fn func(libvirt.Domain) error) error {
	dom, err := b.lookup(ctx, op, name)
	if err != nil {
		return err
	}
	b.log.Infow("lifecycle operation", "op", op, "name", name)
	if err := fn(dom); err != nil {
		return classify(op, name, err)
	}
	return nil
}
