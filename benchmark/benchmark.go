// benchmark.go
// A reusable benchmarking module for the pipeline commands
// Measures execution time and memory usage for any wrapped function

package benchmark

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
)

// Usage is what Run measured around one call.
type Usage struct {
	Elapsed        time.Duration
	AllocMB        float64
	TotalAllocMB   float64
	GCCycles       uint32
	GoroutinesFrom int
	GoroutinesTo   int
}

// Run wraps f to measure its runtime and memory usage, logging host and OS
// information for repeatability. It returns f's error unchanged.
func Run(label string, logger *log.Logger, f func() error) (Usage, error) {
	if logger == nil {
		logger = log.Default()
	}
	host, _ := os.Hostname()
	logger.Info("[Benchmark] running", "label", label, "host", host,
		"go", runtime.Version(), "os_arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), "cpus", runtime.NumCPU())

	runtime.GC()
	var memStart, memEnd runtime.MemStats // before and after execution
	runtime.ReadMemStats(&memStart)
	start := time.Now()
	startGoroutines := runtime.NumGoroutine()

	err := f()

	u := Usage{Elapsed: time.Since(start), GoroutinesFrom: startGoroutines}
	runtime.ReadMemStats(&memEnd)
	u.GoroutinesTo = runtime.NumGoroutine()
	u.AllocMB = float64(int64(memEnd.Alloc)-int64(memStart.Alloc)) / 1024.0 / 1024.0
	u.TotalAllocMB = float64(memEnd.TotalAlloc-memStart.TotalAlloc) / 1024.0 / 1024.0
	u.GCCycles = memEnd.NumGC - memStart.NumGC

	logger.Info("[Benchmark] finished", "label", label,
		"elapsed", u.Elapsed,
		"memory_used_mb", fmt.Sprintf("%.2f", u.AllocMB),
		"total_allocated_mb", fmt.Sprintf("%.2f", u.TotalAllocMB),
		"peak_heap_mb", fmt.Sprintf("%.2f", float64(memEnd.HeapAlloc)/1024.0/1024.0),
		"gc_cycles", u.GCCycles,
		"goroutines", fmt.Sprintf("%d → %d", u.GoroutinesFrom, u.GoroutinesTo))
	return u, err
}
