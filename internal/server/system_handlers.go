package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves host and process status
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	stats       func() (float64, float64)
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	CPUPercent    float64 `json:"cpu_percent"`
	DataDirMB     float64 `json:"data_dir_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	StartedAt     string  `json:"started_at"`
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
	}
	h.stats = h.getSystemStats
	return h
}

// HandleSystemStatus returns uptime, resource usage and data directory size
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.stats()

	response := SystemStatusResponse{
		CPUPercent:    cpuPercent,
		DataDirMB:     h.getDirSize(h.dataDir),
		MemoryPercent: memPercent,
		StartedAt:     h.startupTime.UTC().Format(time.RFC3339),
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the endpoint fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
