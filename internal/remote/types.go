package remote

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a VMResource, spelled the way libvirt
// reports it.
type State string

const (
	StateNoState      State = "no state"
	StateRunning      State = "running"
	StateBlocked      State = "blocked"
	StatePaused       State = "paused"
	StateShuttingDown State = "shutdown"
	StateShutOff      State = "shut off"
	StateCrashed      State = "crashed"
	StatePMSuspended  State = "pmsuspended"
	StateUnknown      State = "unknown"
)

// StateFromCode maps a libvirt virDomainState value to a State.
func StateFromCode(code int32) State {
	switch code {
	case 0:
		return StateNoState
	case 1:
		return StateRunning
	case 2:
		return StateBlocked
	case 3:
		return StatePaused
	case 4:
		return StateShuttingDown
	case 5:
		return StateShutOff
	case 6:
		return StateCrashed
	case 7:
		return StatePMSuspended
	default:
		return StateUnknown
	}
}

// ResourceSummary is one entry of the resource list.
type ResourceSummary struct {
	ID          int            `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	DisplayName string         `json:"displayName" yaml:"displayName"`
	Owner       string         `json:"owner" yaml:"owner"`
	State       State          `json:"state" yaml:"state"`
	Running     bool           `json:"running" yaml:"running"`
	Stats       *ResourceStats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// ResourceDetail carries descriptive information about one resource. Info is
// free-form text; the core never interprets it.
type ResourceDetail struct {
	Name    string `json:"name" yaml:"name"`
	State   State  `json:"state" yaml:"state"`
	Running bool   `json:"running" yaml:"running"`
	Info    string `json:"info" yaml:"info"`
	XML     string `json:"xml,omitempty" yaml:"-"`
}

type ResourceStatus struct {
	State   State `json:"state" yaml:"state"`
	Running bool  `json:"running" yaml:"running"`
}

type MemoryStats struct {
	UsedKB  uint64  `json:"used" yaml:"used"`
	MaxKB   uint64  `json:"max" yaml:"max"`
	Percent float64 `json:"percent" yaml:"percent"`
}

type DiskStats struct {
	ReadBytes  int64   `json:"read" yaml:"read"`
	WriteBytes int64   `json:"write" yaml:"write"`
	ReadMB     float64 `json:"readMB" yaml:"readMB"`
	WriteMB    float64 `json:"writeMB" yaml:"writeMB"`
}

type NetworkStats struct {
	RxBytes int64   `json:"rx" yaml:"rx"`
	TxBytes int64   `json:"tx" yaml:"tx"`
	RxMB    float64 `json:"rxMB" yaml:"rxMB"`
	TxMB    float64 `json:"txMB" yaml:"txMB"`
}

// ResourceStats is one point-in-time statistics reading for a running resource.
type ResourceStats struct {
	CPUPercent float64      `json:"cpu" yaml:"cpu"`
	Memory     MemoryStats  `json:"memory" yaml:"memory"`
	Disk       DiskStats    `json:"disk" yaml:"disk"`
	Network    NetworkStats `json:"network" yaml:"network"`
}

// BytesToMB converts a byte counter to megabytes.
func BytesToMB(b int64) float64 {
	return float64(b) / (1024 * 1024)
}

// Snapshot is a SnapshotRecord.
type Snapshot struct {
	Name         string    `json:"name" yaml:"name"`
	CreationTime time.Time `json:"creationTime" yaml:"creationTime"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	State        string    `json:"state,omitempty" yaml:"state,omitempty"`
}

// DefaultSnapshotDescription is used when a snapshot is created without one.
const DefaultSnapshotDescription = "Created via web interface"

// ConsoleEndpoint locates a resource's VNC console.
type ConsoleEndpoint struct {
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	Display string `json:"display" yaml:"display"`
}

// vncBasePort is the TCP port of VNC display :0.
const vncBasePort = 5900

// NewConsoleEndpoint derives the display number from the VNC port.
func NewConsoleEndpoint(host string, port int) *ConsoleEndpoint {
	return &ConsoleEndpoint{
		Host:    host,
		Port:    port,
		Display: fmt.Sprintf(":%d", port-vncBasePort),
	}
}

type IPAddress struct {
	Type   string `json:"type" yaml:"type"`
	Addr   string `json:"addr" yaml:"addr"`
	Prefix uint32 `json:"prefix" yaml:"prefix"`
}

type Interface struct {
	Name   string      `json:"name" yaml:"name"`
	HWAddr string      `json:"hwaddr" yaml:"hwaddr"`
	Addrs  []IPAddress `json:"addrs" yaml:"addrs"`
}

// Address is the network address assignment of a resource. Primary is the
// first IPv4 address found across Interfaces.
type Address struct {
	Primary    string      `json:"primaryIP" yaml:"primaryIP"`
	Interfaces []Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// PrimaryIPv4 returns the first non-empty IPv4 address in ifaces.
func PrimaryIPv4(ifaces []Interface) string {
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			if a.Type == "ipv4" && a.Addr != "" {
				return a.Addr
			}
		}
	}
	return ""
}

// SystemInfo describes the hypervisor host.
type SystemInfo struct {
	Hostname       string `json:"hostname" yaml:"hostname"`
	Platform       string `json:"platform,omitempty" yaml:"platform,omitempty"`
	KernelVersion  string `json:"kernelVersion,omitempty" yaml:"kernelVersion,omitempty"`
	CPUs           int    `json:"cpus" yaml:"cpus"`
	MemoryKB       uint64 `json:"memoryKB" yaml:"memoryKB"`
	LibvirtVersion string `json:"libvirtVersion,omitempty" yaml:"libvirtVersion,omitempty"`
	Domains        int    `json:"domains" yaml:"domains"`
}
