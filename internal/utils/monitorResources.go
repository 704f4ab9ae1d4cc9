package utils

import (
	"context"
	"log"
	"runtime"
	"time"
)

// MonitorResources logs resource usage (goroutines and memory) every
// interval until ctx is done.
func MonitorResources(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	var memStats runtime.MemStats
	for {
		runtime.ReadMemStats(&memStats)
		log.Printf("[Resource Monitor] Goroutines: %d | HeapAlloc: %.2f KB | HeapObjects: %d\n",
			runtime.NumGoroutine(),
			float64(memStats.HeapAlloc)/1024,
			memStats.HeapObjects,
		)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
