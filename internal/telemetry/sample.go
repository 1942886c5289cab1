package telemetry

import (
	"time"

	"github.com/jbweber/thoth/internal/remote"
)

// Metric names one tracked series.
type Metric string

const (
	MetricCPU       Metric = "cpu"
	MetricMemory    Metric = "memory"
	MetricDiskWrite Metric = "disk_write"
	MetricNetTx     Metric = "net_tx"
)

// Metrics lists the tracked series in display order.
var Metrics = []Metric{MetricCPU, MetricMemory, MetricDiskWrite, MetricNetTx}

// Sample is one telemetry reading.
type Sample struct {
	Time         time.Time `json:"time" yaml:"time"`
	CPUPercent   float64   `json:"cpuPercent" yaml:"cpuPercent"`
	MemoryUsedKB uint64    `json:"memoryUsedKB" yaml:"memoryUsedKB"`
	MemoryMaxKB  uint64    `json:"memoryMaxKB" yaml:"memoryMaxKB"`
	MemoryPct    float64   `json:"memoryPercent" yaml:"memoryPercent"`
	DiskReadMB   float64   `json:"diskReadMB" yaml:"diskReadMB"`
	DiskWriteMB  float64   `json:"diskWriteMB" yaml:"diskWriteMB"`
	NetRxMB      float64   `json:"netRxMB" yaml:"netRxMB"`
	NetTxMB      float64   `json:"netTxMB" yaml:"netTxMB"`
}

// SampleFromStats flattens a stats reading taken at t.
// The backend's memory percentage is used when present, otherwise it is
// derived from used over max.
func SampleFromStats(t time.Time, st *remote.ResourceStats) Sample {
	s := Sample{
		Time:         t,
		CPUPercent:   st.CPUPercent,
		MemoryUsedKB: st.Memory.UsedKB,
		MemoryMaxKB:  st.Memory.MaxKB,
		MemoryPct:    st.Memory.Percent,
		DiskReadMB:   st.Disk.ReadMB,
		DiskWriteMB:  st.Disk.WriteMB,
		NetRxMB:      st.Network.RxMB,
		NetTxMB:      st.Network.TxMB,
	}
	if s.MemoryPct == 0 && s.MemoryMaxKB > 0 {
		s.MemoryPct = float64(s.MemoryUsedKB) / float64(s.MemoryMaxKB) * 100
	}
	return s
}

// Value returns the sample's value for a tracked metric.
func (s Sample) Value(m Metric) float64 {
	switch m {
	case MetricCPU:
		return s.CPUPercent
	case MetricMemory:
		return s.MemoryPct
	case MetricDiskWrite:
		return s.DiskWriteMB
	case MetricNetTx:
		return s.NetTxMB
	default:
		return 0
	}
}

// Label is the point label used for s, the wall-clock time of day.
func (s Sample) Label() string {
	return s.Time.Format("15:04:05")
}
