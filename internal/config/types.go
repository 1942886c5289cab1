package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/logger"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/storage"
	"github.com/jbweber/thoth/internal/telemetry"
)

// Backend modes.
const (
	ModeHTTP    = "http"
	ModeLibvirt = "libvirt"
)

// DefaultListen is the serve command's bind address.
const DefaultListen = ":8080"

// DefaultBackendURL is where the http backend looks for a thoth server.
const DefaultBackendURL = "http://localhost:8080"

// Environment overrides applied after the file is read.
const (
	EnvAwaitInit       = "THOTH_AWAIT_INIT"
	EnvAddressTimeout  = "THOTH_ADDRESS_TIMEOUT"
	EnvAddressInterval = "THOTH_ADDRESS_INTERVAL"
	EnvTelemetryPeriod = "THOTH_TELEMETRY_PERIOD"
	EnvBackendURL      = "THOTH_BACKEND_URL"
)

// Config is the thoth configuration file.
type Config struct {
	Backend      BackendConfig      `yaml:"backend"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Logging      LoggingConfig      `yaml:"logging"`
	Server       ServerConfig       `yaml:"server"`
}

// BackendConfig selects how the CLI reaches the hypervisor.
type BackendConfig struct {
	Mode           string        `yaml:"mode"`                      // http or libvirt
	URL            string        `yaml:"url,omitempty"`             // http mode only
	Socket         string        `yaml:"socket,omitempty"`          // libvirt mode only
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"` // libvirt dial timeout
	Owner          string        `yaml:"owner,omitempty"`           // recorded on new VMs (default: $USER)
	ConsoleHost    string        `yaml:"console_host,omitempty"`    // host reported in console endpoints
}

// ProvisioningConfig tunes the provisioning workflow and the libvirt
// storage it lands on.
type ProvisioningConfig struct {
	AwaitInit       time.Duration            `yaml:"await_init,omitempty"`
	AddressInterval time.Duration            `yaml:"address_interval,omitempty"`
	AddressTimeout  time.Duration            `yaml:"address_timeout,omitempty"`
	GracePeriod     time.Duration            `yaml:"grace_period,omitempty"`
	Retention       time.Duration            `yaml:"retention,omitempty"`   // how long a server keeps finished runs
	Image           string                   `yaml:"image,omitempty"`       // base image for requests that name none
	ImagesPool      string                   `yaml:"images_pool,omitempty"` // default: thoth-images
	VMsPool         string                   `yaml:"vms_pool,omitempty"`    // default: thoth-vms
	FlavorAwaitInit map[string]time.Duration `yaml:"flavor_await_init,omitempty"`
}

// TelemetryConfig tunes the per-VM stats sampler.
type TelemetryConfig struct {
	Period   time.Duration `yaml:"period,omitempty"`
	Capacity int           `yaml:"capacity,omitempty"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ServerConfig configures thoth serve.
type ServerConfig struct {
	Listen      string        `yaml:"listen,omitempty"`
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
	Debug       bool          `yaml:"debug,omitempty"`
}

// Default returns a normalized configuration with no file behind it.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills unset fields with defaults and canonicalizes names.
func (c *Config) Normalize() {
	c.Backend.Mode = strings.ToLower(strings.TrimSpace(c.Backend.Mode))
	if c.Backend.Mode == "" {
		c.Backend.Mode = ModeLibvirt
	}
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.Socket == "" {
		c.Backend.Socket = libvirt.DefaultSocket
	}
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = libvirt.DefaultTimeout
	}
	if c.Backend.Owner == "" {
		c.Backend.Owner = os.Getenv("USER")
	}

	p := &c.Provisioning
	if p.AwaitInit == 0 {
		p.AwaitInit = provision.DefaultAwaitInit
	}
	if p.AddressInterval == 0 {
		p.AddressInterval = provision.DefaultAddressInterval
	}
	if p.AddressTimeout == 0 {
		p.AddressTimeout = provision.DefaultAddressTimeout
	}
	if p.GracePeriod == 0 {
		p.GracePeriod = provision.DefaultGracePeriod
	}
	if p.Retention == 0 {
		p.Retention = provision.DefaultRetention
	}
	if p.ImagesPool == "" {
		p.ImagesPool = storage.DefaultImagesPool
	}
	if p.VMsPool == "" {
		p.VMsPool = storage.DefaultVMsPool
	}
	if len(p.FlavorAwaitInit) > 0 {
		normalized := make(map[string]time.Duration, len(p.FlavorAwaitInit))
		for name, d := range p.FlavorAwaitInit {
			normalized[strings.ToLower(strings.TrimSpace(name))] = d
		}
		p.FlavorAwaitInit = normalized
	}

	if c.Telemetry.Period == 0 {
		c.Telemetry.Period = telemetry.DefaultPeriod
	}
	if c.Telemetry.Capacity == 0 {
		c.Telemetry.Capacity = telemetry.DefaultCapacity
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = string(logger.FormatConsole)
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.CallTimeout == 0 {
		c.Server.CallTimeout = 2 * time.Minute
	}
}

// Validate checks the configuration for errors. Call Normalize first.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Provisioning.Validate(); err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}
	if c.Telemetry.Period <= 0 {
		return fmt.Errorf("telemetry: period must be > 0, got %s", c.Telemetry.Period)
	}
	if c.Telemetry.Capacity <= 0 {
		return fmt.Errorf("telemetry: capacity must be > 0, got %d", c.Telemetry.Capacity)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Server.CallTimeout < 0 {
		return fmt.Errorf("server: call_timeout must be >= 0, got %s", c.Server.CallTimeout)
	}
	return nil
}

// Validate checks the backend selection.
func (b *BackendConfig) Validate() error {
	switch b.Mode {
	case ModeHTTP:
		u, err := url.Parse(b.URL)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", b.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url must use http or https, got %q", b.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("url must include a host, got %q", b.URL)
		}
	case ModeLibvirt:
		if !strings.HasPrefix(b.Socket, "/") {
			return fmt.Errorf("socket must be an absolute path, got %q", b.Socket)
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeHTTP, ModeLibvirt, b.Mode)
	}
	if b.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must be >= 0, got %s", b.ConnectTimeout)
	}
	return nil
}

// Validate checks provisioning timings and flavor overrides.
func (p *ProvisioningConfig) Validate() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"await_init", p.AwaitInit},
		{"address_interval", p.AddressInterval},
		{"address_timeout", p.AddressTimeout},
		{"grace_period", p.GracePeriod},
		{"retention", p.Retention},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", d.name, d.value)
		}
	}
	if p.AddressInterval > p.AddressTimeout {
		return fmt.Errorf("address_interval (%s) must not exceed address_timeout (%s)", p.AddressInterval, p.AddressTimeout)
	}
	if p.ImagesPool == p.VMsPool {
		return fmt.Errorf("images_pool and vms_pool must differ, both are %q", p.VMsPool)
	}
	for name, d := range p.FlavorAwaitInit {
		if _, ok := remote.LookupFlavor(name); !ok {
			return fmt.Errorf("flavor_await_init: unknown flavor %q (valid: %s)", name, strings.Join(remote.FlavorNames(), ", "))
		}
		if d <= 0 {
			return fmt.Errorf("flavor_await_init[%s] must be > 0, got %s", name, d)
		}
	}
	return nil
}

// Validate checks the level and format names.
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch logger.Format(l.Format) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", logger.FormatConsole, logger.FormatJSON, l.Format)
	}
	return nil
}

// ApplyEnv overrides timings and the backend URL from the environment.
// lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	durations := []struct {
		env    string
		target *time.Duration
	}{
		{EnvAwaitInit, &c.Provisioning.AwaitInit},
		{EnvAddressTimeout, &c.Provisioning.AddressTimeout},
		{EnvAddressInterval, &c.Provisioning.AddressInterval},
		{EnvTelemetryPeriod, &c.Telemetry.Period},
	}
	for _, d := range durations {
		val, ok := lookup(d.env)
		if !ok || val == "" {
			continue
		}
		parsed, err := parseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: %w", d.env, err)
		}
		*d.target = parsed
	}

	if val, ok := lookup(EnvBackendURL); ok && val != "" {
		c.Backend.URL = val
		c.Backend.Mode = ModeHTTP
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", val)
	}
	return d, nil
}

// LoadFromFile reads a YAML config, applies environment overrides,
// normalizes and validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return finish(&c)
}

// Load is LoadFromFile, except an empty path yields the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	return finish(&Config{})
}

func finish(c *Config) (*Config, error) {
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	c.Normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// ProvisionConfig maps the provisioning section onto the orchestrator's
// settings.
func (c *Config) ProvisionConfig() provision.Config {
	return provision.Config{
		AwaitInit:       c.Provisioning.AwaitInit,
		FlavorAwaitInit: c.Provisioning.FlavorAwaitInit,
		AddressInterval: c.Provisioning.AddressInterval,
		AddressTimeout:  c.Provisioning.AddressTimeout,
		GracePeriod:     c.Provisioning.GracePeriod,
		Retention:       c.Provisioning.Retention,
		DefaultImage:    c.Provisioning.Image,
	}
}

// TelemetryConfig maps the telemetry section onto the monitor's settings.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Period:   c.Telemetry.Period,
		Capacity: c.Telemetry.Capacity,
	}
}

// StorageConfig maps the pool names onto the storage manager's settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		ImagesPool: c.Provisioning.ImagesPool,
		VMsPool:    c.Provisioning.VMsPool,
	}
}
