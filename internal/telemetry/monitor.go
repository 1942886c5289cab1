// Package telemetry samples resource statistics on a fixed period into
// fixed-capacity sliding windows, one per tracked metric.
//
// A Monitor is a stateless factory: each Start returns an independent Handle
// bound to one resource. Stopping a Handle is final. After Stop returns no
// sample is ever appended to its series, even if a fetch that was already in
// flight completes later.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/metrics"
	"github.com/jbweber/thoth/internal/remote"
)

const (
	DefaultPeriod       = 3 * time.Second
	DefaultCapacity     = 20
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxInFlight  = 2
)

// StatsFetcher is the part of remote.Client the monitor uses.
type StatsFetcher interface {
	GetResourceStats(ctx context.Context, name string) (*remote.ResourceStats, error)
}

// Ticker is the subset of *time.Ticker the sampling loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Config tunes a Monitor. Zero values take the defaults above.
type Config struct {
	Period       time.Duration
	Capacity     int
	FetchTimeout time.Duration
	// MaxInFlight bounds concurrent fetches per handle; ticks beyond it are skipped.
	MaxInFlight int
	Logger      *zap.SugaredLogger
	NewTicker   func(period time.Duration) Ticker
	Now         func() time.Time
}

// Monitor starts sampling loops.
type Monitor struct {
	fetcher StatsFetcher
	cfg     Config
}

// NewMonitor returns a Monitor that fetches stats through fetcher.
func NewMonitor(fetcher StatsFetcher, cfg Config) *Monitor {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{fetcher: fetcher, cfg: cfg}
}

// Capacity is the window size of every series this monitor creates.
func (m *Monitor) Capacity() int { return m.cfg.Capacity }

// StartOption customizes one Handle.
type StartOption func(*Handle)

// WithOnSample registers a callback run for every appended sample. It runs
// with the handle locked and must not call back into the Handle.
func WithOnSample(fn func(resourceID string, s Sample)) StartOption {
	return func(h *Handle) { h.onSample = fn }
}

// Start begins sampling resourceID: once immediately, then every period.
func (m *Monitor) Start(ctx context.Context, resourceID string, opts ...StartOption) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		resourceID: resourceID,
		fetcher:    m.fetcher,
		cfg:        m.cfg,
		log:        m.cfg.Logger.With("resource", resourceID),
		series:     make(map[Metric]*Series, len(Metrics)),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, metric := range Metrics {
		h.series[metric] = NewSeries(m.cfg.Capacity)
	}
	for _, opt := range opts {
		opt(h)
	}

	metrics.MonitorStarted()
	h.log.Debugw("telemetry monitor started", "period", m.cfg.Period)

	ticker := m.cfg.NewTicker(m.cfg.Period)
	h.wg.Add(1)
	go h.run(ctx, ticker)
	go func() {
		h.wg.Wait()
		close(h.done)
	}()
	return h
}

// Handle is one running (or stopped) sampling loop.
type Handle struct {
	resourceID string
	fetcher    StatsFetcher
	cfg        Config
	log        *zap.SugaredLogger
	onSample   func(string, Sample)

	mu       sync.Mutex
	stopped  bool
	inFlight int
	series   map[Metric]*Series
	latest   Sample
	count    int
	failures int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

func (h *Handle) run(ctx context.Context, ticker Ticker) {
	defer h.wg.Done()
	defer ticker.Stop()

	h.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			h.fetch(ctx)
		}
	}
}

func (h *Handle) fetch(ctx context.Context) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.inFlight >= h.cfg.MaxInFlight {
		h.mu.Unlock()
		metrics.RecordSample("skipped")
		h.log.Debugw("skipping tick, previous fetches still in flight", "inFlight", h.cfg.MaxInFlight)
		return
	}
	h.inFlight++
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fctx, cancel := context.WithTimeout(ctx, h.cfg.FetchTimeout)
		defer cancel()
		st, err := h.fetcher.GetResourceStats(fctx, h.resourceID)
		h.apply(st, err)
	}()
}

// apply records one fetch result. Results are applied in completion order.
func (h *Handle) apply(st *remote.ResourceStats, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight--

	switch {
	case h.stopped:
		metrics.RecordSample("discarded")
		return
	case err != nil:
		h.failures++
		metrics.RecordSample("failed")
		h.log.Warnw("stats fetch failed", "error", err)
		return
	case st == nil:
		metrics.RecordSample("empty")
		return
	}

	s := SampleFromStats(h.cfg.Now(), st)
	label := s.Label()
	for _, metric := range Metrics {
		h.series[metric].Append(label, s.Value(metric))
	}
	h.latest = s
	h.count++
	metrics.RecordSample("ok")

	if h.onSample != nil {
		h.onSample(h.resourceID, s)
	}
}

// Stop ends sampling. It is idempotent. When it returns the series are
// frozen; in-flight fetches are cancelled and their results discarded.
func (h *Handle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	metrics.MonitorStopped()
	h.log.Debugw("telemetry monitor stopped")
}

// Done is closed once the loop and every in-flight fetch have returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) ResourceID() string { return h.resourceID }

func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Series returns a copy of one metric's window, oldest first.
func (h *Handle) Series(m Metric) []Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[m]
	if !ok {
		return nil
	}
	return s.Points()
}

// Snapshot returns copies of every window.
func (h *Handle) Snapshot() map[Metric][]Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[Metric][]Point, len(h.series))
	for m, s := range h.series {
		out[m] = s.Points()
	}
	return out
}

// Latest returns the most recent sample, if any.
func (h *Handle) Latest() (Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.count > 0
}

// SampleCount is the number of samples appended since Start.
func (h *Handle) SampleCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Failures is the number of failed fetches since Start.
func (h *Handle) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}
