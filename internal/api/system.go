package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// SystemInfo is the body of GET /api/v1/system.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Devices       device.Stats   `json:"devices"`
	Indicators    map[string]int `json:"indicators"`
	Degraded      int            `json:"degraded"`
	CyclesActive  int            `json:"cycles_active"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleSystem returns process and controller statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: s.registry.GetStats(),
		Indicators: map[string]int{
			string(alert.Green): 0, string(alert.Yellow): 0,
			string(alert.Red): 0, string(alert.Blue): 0,
		},
		CyclesActive: len(s.cycles.Active()),
	}

	for _, snap := range s.status.Status() {
		info.Indicators[string(snap.Indicator)]++
		if snap.Degraded {
			info.Degraded++
		}
	}

	writeJSON(w, http.StatusOK, info)
}
