package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/poll"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/storage"
)

const (
	// DefaultShutdownTimeout bounds the graceful shutdown that precedes delete.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultShutdownInterval is how often the state is polled while waiting.
	DefaultShutdownInterval = time.Second

	// Domain states (from libvirt VIR_DOMAIN_* constants)
	domainStateRunning = 1
	domainStateBlocked = 2
	domainStatePaused  = 3
	domainStateShutoff = 5
)

// Config tunes a Backend. The zero value is usable.
type Config struct {
	// Owner is recorded in the metadata of provisioned VMs.
	Owner string
	// ConsoleHost is the host reported in console endpoints. VNC listens on
	// all addresses, so this is whatever name clients reach the hypervisor by.
	ConsoleHost string
	// DefaultImage is used for requests that name no image.
	DefaultImage string
	Logger       *zap.SugaredLogger

	ShutdownTimeout  time.Duration
	ShutdownInterval time.Duration
	Clock            poll.Clock
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ShutdownInterval <= 0 {
		c.ShutdownInterval = DefaultShutdownInterval
	}
	if c.Clock == nil {
		c.Clock = poll.RealClock
	}
	return c
}

// cpuSample is the previous cumulative CPU time reading of a domain.
type cpuSample struct {
	cpuTime uint64
	at      time.Time
}

// Backend implements remote.Client on a libvirt connection.
type Backend struct {
	lv   libvirtClient
	sm   storageManager
	host hostInfo
	cfg  Config
	log  *zap.SugaredLogger

	mu   sync.Mutex
	cpus map[string]cpuSample
}

var (
	_ remote.Client       = (*Backend)(nil)
	_ remote.SystemInfoer = (*Backend)(nil)
)

// NewBackend creates a Backend over an open libvirt connection.
func NewBackend(conn *libvirt.Libvirt, sm *storage.Manager, cfg Config) *Backend {
	return newBackendWithDeps(conn, sm, gopsutilHost{}, cfg)
}

// newBackendWithDeps creates a Backend with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func newBackendWithDeps(lv libvirtClient, sm storageManager, host hostInfo, cfg Config) *Backend {
	cfg = cfg.withDefaults()
	return &Backend{
		lv:   lv,
		sm:   sm,
		host: host,
		cfg:  cfg,
		log:  cfg.Logger,
		cpus: make(map[string]cpuSample),
	}
}

// lookup resolves a domain by name.
func (b *Backend) lookup(ctx context.Context, op, name string) (libvirt.Domain, error) {
	if err := ctx.Err(); err != nil {
		return libvirt.Domain{}, remote.Unavailable(op, name, err)
	}
	if name == "" {
		return libvirt.Domain{}, remote.Validation(op, errors.New("resource name is required"))
	}
	dom, err := b.lv.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, classify(op, name, err)
	}
	return dom, nil
}

// classify maps a libvirt failure to a remote error kind.
func classify(op, name string, err error) error {
	if isNotFound(err) {
		return remote.Rejected(op, name, fmt.Errorf("%w: %v", remote.ErrNotFound, err))
	}
	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		return remote.Rejected(op, name, err)
	}
	return remote.Unavailable(op, name, err)
}

func isNotFound(err error) bool {
	if libvirt.IsNotFound(err) {
		return true
	}
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoDomainSnapshot)
}

func (b *Backend) state(dom libvirt.Domain) (int32, error) {
	state, _, err := b.lv.DomainGetState(dom, 0)
	return state, err
}
