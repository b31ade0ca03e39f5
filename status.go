package ceptr

import (
	"os"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shirou/gopsutil/process"
	"golang.org/x/xerrors"
	"rsc.io/goversion/version"
)

// latencyWindow bounds how many recent reduction-round latencies the host
// keeps for Status.
const latencyWindow = 1024

// latencyRecorder is a fixed-size ring of recent reduction-round durations.
type latencyRecorder struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{samples: make([]float64, latencyWindow)}
}

func (l *latencyRecorder) record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples[l.next] = float64(d.Microseconds())
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

func (l *latencyRecorder) snapshot() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return append([]float64(nil), l.samples...)
	}
	return append([]float64(nil), l.samples[:l.next]...)
}

// ReduceLatency summarizes recent reduction-round latencies, microseconds.
type ReduceLatency struct {
	Samples int
	Median  float64
	P90     float64
	P99     float64
}

// HostStatus is a point-in-time report of the host's runtime state.
type HostStatus struct {
	ID              HostID
	Receptors       int
	ActiveReceptors int
	QueuedContexts  int
	Latency         ReduceLatency
	CPUPercent      float64
	ResidentBytes   uint64
	GoRelease       string
}

var (
	gover     version.Version
	goverOnce sync.Once
	goverOk   bool
)

// Status reports the host's receptor counts, recent reduction latency
// percentiles, and the process's CPU and memory use.
func (h *Host) Status() (HostStatus, error) {
	h.mu.Lock()
	st := HostStatus{
		ID:              h.ID,
		Receptors:       len(h.routing),
		ActiveReceptors: len(h.active),
	}
	for _, r := range h.active {
		st.QueuedContexts += r.Q.Len()
	}
	h.mu.Unlock()

	samples := h.lat.snapshot()
	st.Latency.Samples = len(samples)
	if len(samples) > 0 {
		// Percentile only errors on empty input or out-of-range percents
		st.Latency.Median, _ = stats.Percentile(samples, 50)
		st.Latency.P90, _ = stats.Percentile(samples, 90)
		st.Latency.P99, _ = stats.Percentile(samples, 99)
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return st, xerrors.Errorf("status: %w", err)
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		st.ResidentBytes = mem.RSS
	}

	goverOnce.Do(func() {
		v, err := version.ReadExe(os.Args[0])
		if err == nil {
			gover = v
			goverOk = true
		}
	})
	if goverOk {
		st.GoRelease = gover.Release
	}
	return st, nil
}
