// Package performance provides workload measurement for slabpool
// benchmark runs: operation throughput, latency percentiles, and
// process/system resource usage sampled through gopsutil.
package performance

import (
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Profiler measures one pool workload run.
type Profiler struct {
	name      string
	startTime time.Time
	memStats  runtime.MemStats

	ops      int64
	bytes    int64
	errs     int64
	latency  *LatencyTracker
	resource *ResourceMonitor

	cpuPercent float64
	sampling   bool
	stop       chan struct{}
	mu         sync.Mutex
}

// Metrics is the result of a profiled run.
type Metrics struct {
	// Throughput
	Operations   int64   `json:"operations"`
	Bytes        int64   `json:"bytes"`
	OpsPerSecond float64 `json:"ops_per_second"`

	// Latency
	MinLatency time.Duration `json:"min_latency_ns"`
	MaxLatency time.Duration `json:"max_latency_ns"`
	P50Latency time.Duration `json:"p50_latency_ns"`
	P95Latency time.Duration `json:"p95_latency_ns"`
	P99Latency time.Duration `json:"p99_latency_ns"`

	// Runtime
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	HeapAllocMB     uint64  `json:"heap_alloc_mb"`
	GoroutineCount  int     `json:"goroutine_count"`
	GCCount         uint32  `json:"gc_count"`
	GCPauseTotalNs  uint64  `json:"gc_pause_total_ns"`

	// Errors
	ErrorCount int64 `json:"error_count"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// ProfilerConfig configures a profiler.
type ProfilerConfig struct {
	Name             string
	SamplingInterval time.Duration
	ResourceMonitor  bool
}

// DefaultProfilerConfig returns the usual benchmark settings.
func DefaultProfilerConfig(name string) *ProfilerConfig {
	return &ProfilerConfig{
		Name:             name,
		SamplingInterval: 100 * time.Millisecond,
		ResourceMonitor:  true,
	}
}

// NewProfiler creates a profiler. Call Start before the workload and
// Stop after.
func NewProfiler(config *ProfilerConfig) *Profiler {
	if config == nil {
		config = DefaultProfilerConfig("default")
	}

	p := &Profiler{
		name:    config.Name,
		latency: NewLatencyTracker(),
	}

	if config.ResourceMonitor {
		p.resource = NewResourceMonitor()
		p.startSampling(config.SamplingInterval)
	}

	return p
}

// Start marks the beginning of the measured window.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	runtime.ReadMemStats(&p.memStats)
}

// Stop closes the measured window and returns the final metrics.
func (p *Profiler) Stop() *Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sampling {
		close(p.stop)
		p.sampling = false
	}

	elapsed := time.Since(p.startTime)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	min, max, p50, p95, p99 := p.latency.Summary()

	return &Metrics{
		Operations:      atomic.LoadInt64(&p.ops),
		Bytes:           atomic.LoadInt64(&p.bytes),
		OpsPerSecond:    float64(atomic.LoadInt64(&p.ops)) / elapsed.Seconds(),
		MinLatency:      min,
		MaxLatency:      max,
		P50Latency:      p50,
		P95Latency:      p95,
		P99Latency:      p99,
		CPUUsagePercent: p.cpuPercent,
		HeapAllocMB:     memStats.HeapAlloc / 1024 / 1024,
		GoroutineCount:  runtime.NumGoroutine(),
		GCCount:         memStats.NumGC - p.memStats.NumGC,
		GCPauseTotalNs:  memStats.PauseTotalNs - p.memStats.PauseTotalNs,
		ErrorCount:      atomic.LoadInt64(&p.errs),
		Elapsed:         elapsed,
	}
}

// RecordLatency records one operation latency sample.
func (p *Profiler) RecordLatency(d time.Duration) {
	p.latency.Record(d)
}

// IncrementOps adds to the operation counter.
func (p *Profiler) IncrementOps(count int64) {
	atomic.AddInt64(&p.ops, count)
}

// IncrementBytes adds to the byte counter.
func (p *Profiler) IncrementBytes(n int64) {
	atomic.AddInt64(&p.bytes, n)
}

// IncrementErrors adds to the error counter.
func (p *Profiler) IncrementErrors(count int64) {
	atomic.AddInt64(&p.errs, count)
}

// ResourceUsage returns the current process and system resource
// snapshot, or nil when the resource monitor is disabled.
func (p *Profiler) ResourceUsage() *ResourceUsage {
	if p.resource == nil {
		return nil
	}
	usage, err := p.resource.GetResourceUsage()
	if err != nil {
		return nil
	}
	return usage
}

func (p *Profiler) startSampling(interval time.Duration) {
	p.stop = make(chan struct{})
	p.sampling = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				percent, _ := cpu.Percent(0, false)
				if len(percent) > 0 {
					p.mu.Lock()
					p.cpuPercent = percent[0]
					p.mu.Unlock()
				}
			case <-p.stop:
				return
			}
		}
	}()
}

// ResourceMonitor reads process and system resource usage.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

// NewResourceMonitor creates a monitor bound to the current process.
func NewResourceMonitor() *ResourceMonitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	rm := &ResourceMonitor{
		process:   proc,
		startTime: time.Now(),
	}
	if proc != nil {
		if times, err := proc.Times(); err == nil {
			rm.startCPUTime = times.Total()
		}
	}
	return rm
}

// GetResourceUsage returns the current usage snapshot.
func (rm *ResourceMonitor) GetResourceUsage() (*ResourceUsage, error) {
	usage := &ResourceUsage{
		GoroutineCount: runtime.NumGoroutine(),
	}

	if rm.process != nil {
		if times, err := rm.process.Times(); err == nil {
			elapsed := time.Since(rm.startTime).Seconds()
			if elapsed > 0 {
				usage.CPUPercent = ((times.Total() - rm.startCPUTime) / elapsed) * 100
			}
		}
		if memInfo, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
			usage.MemoryVMS = memInfo.VMS
		}
		usage.ThreadCount, _ = rm.process.NumThreads()
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}

	return usage, nil
}

// ResourceUsage contains one point-in-time resource snapshot.
type ResourceUsage struct {
	CPUPercent            float64 `json:"cpu_percent"`
	MemoryRSS             uint64  `json:"memory_rss"`
	MemoryVMS             uint64  `json:"memory_vms"`
	SystemMemoryPercent   float64 `json:"system_memory_percent"`
	SystemMemoryAvailable uint64  `json:"system_memory_available"`
	GoroutineCount        int     `json:"goroutine_count"`
	ThreadCount           int32   `json:"thread_count"`
}

// LatencyTracker collects latency samples and reports percentiles.
type LatencyTracker struct {
	samples []time.Duration
	mu      sync.Mutex
}

// NewLatencyTracker creates a tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		samples: make([]time.Duration, 0, 10000),
	}
}

// Record adds one sample.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	lt.samples = append(lt.samples, d)
	lt.mu.Unlock()
}

// Summary returns min, max, and the 50th/95th/99th percentiles. All
// zeros when no samples were recorded.
func (lt *LatencyTracker) Summary() (min, max, p50, p95, p99 time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) == 0 {
		return 0, 0, 0, 0, 0
	}

	sorted := make([]time.Duration, len(lt.samples))
	copy(sorted, lt.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	p99 = sorted[len(sorted)*99/100]
	return min, max, p50, p95, p99
}
