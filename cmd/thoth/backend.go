package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jbweber/thoth/internal/api"
	"github.com/jbweber/thoth/internal/config"
	"github.com/jbweber/thoth/internal/focus"
	"github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/storage"
	"github.com/jbweber/thoth/internal/telemetry"
	"github.com/jbweber/thoth/internal/vm"
)

// backend is a remote.Client plus whatever must be released after use.
type backend struct {
	remote.Client
	close func()
}

// openBackend connects to the configured backend.
func openBackend(ctx context.Context) (*backend, error) {
	switch cfg.Backend.Mode {
	case config.ModeHTTP:
		client := api.NewClient(cfg.Backend.URL, api.WithLogger(log.Sugar().Named("api")))
		return &backend{Client: client, close: func() {}}, nil
	case config.ModeLibvirt:
		b, _, err := openLibvirt(ctx)
		return b, err
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}
}

// openLibvirt connects to the local daemon and builds the libvirt backend.
// The storage manager is returned for commands that manage images.
func openLibvirt(ctx context.Context) (*backend, *storage.Manager, error) {
	conn, err := libvirt.ConnectWithContext(ctx, cfg.Backend.Socket, cfg.Backend.ConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	storageCfg := cfg.StorageConfig()
	owner, resolved := storage.ResolveOwner(storage.DefaultQEMUConf)
	if !resolved {
		log.Sugar().Debugw("qemu account not found, using fallback owner", "uid", owner.UID, "gid", owner.GID)
	}
	storageCfg.Owner = owner
	mgr := storage.NewManager(conn.Libvirt(), storageCfg)

	b := vm.NewBackend(conn.Libvirt(), mgr, vm.Config{
		Owner:        cfg.Backend.Owner,
		ConsoleHost:  cfg.Backend.ConsoleHost,
		DefaultImage: cfg.Provisioning.Image,
		Logger:       log.Sugar().Named("vm"),
	})

	closeFn := func() {
		if closeErr := conn.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
		}
	}
	return &backend{Client: b, close: closeFn}, mgr, nil
}

// withBackend opens the backend, runs fn and closes it.
func withBackend(ctx context.Context, fn func(client remote.Client) error) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(b.Client)
}

// newController builds a focus controller over client. onSample, when
// set, receives every telemetry sample of the focused resource.
func newController(client remote.Client, onSample func(string, telemetry.Sample)) *focus.Controller {
	monitorCfg := cfg.TelemetryConfig()
	monitorCfg.Logger = log.Sugar().Named("telemetry")
	monitor := telemetry.NewMonitor(client, monitorCfg)

	return focus.New(client, monitor, focus.Config{
		Logger:   log.Sugar().Named("focus"),
		OnSample: onSample,
	})
}

// withFocus focuses name on a fresh controller and runs fn.
func withFocus(ctx context.Context, name string, fn func(c *focus.Controller) error) error {
	return withBackend(ctx, func(client remote.Client) error {
		c := newController(client, nil)
		defer c.Close()

		if err := c.Focus(ctx, name); err != nil {
			return err
		}
		return fn(c)
	})
}
