package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// SystemHandler reports health and streams runtime metrics via SSE.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	// Seed initial CPU reading so the first tick gets a real delta
	h.prevIdle, h.prevTotal, _ = readCPUStat()
	return h
}

// Health godoc
// GET /health
// 200 when Postgres and Redis answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := gin.H{"postgres": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := h.pool.Ping(ctx); err != nil {
		status["postgres"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	status["uptime"] = time.Since(h.startTime).Round(time.Second).String()

	c.JSON(code, status)
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// OS
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	LoadAvg1      float64 `json:"load_avg_1"`

	// Go Application
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`

	// Database pool
	DBAcquiredConns int32 `json:"db_acquired_conns"`
	DBTotalConns    int32 `json:"db_total_conns"`

	// Worker Queues
	QueueGrading    int64 `json:"queue_grading"`
	QueueViolations int64 `json:"queue_violations"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	writeSSEData(c, data)
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	}

	// CPU delta is shared between concurrent metric streams.
	if idle, total, err := readCPUStat(); err == nil {
		h.mu.Lock()
		if total > h.prevTotal {
			m.CPUPercent = (1 - float64(idle-h.prevIdle)/float64(total-h.prevTotal)) * 100
			h.prevIdle, h.prevTotal = idle, total
		}
		h.mu.Unlock()
	}

	if info, err := readProcFields("/proc/meminfo", "MemTotal:", "MemAvailable:"); err == nil && info["MemTotal:"] > 0 {
		m.MemTotalBytes = info["MemTotal:"]
		m.MemUsedBytes = info["MemTotal:"] - info["MemAvailable:"]
	}
	if status, err := readProcFields("/proc/self/status", "VmRSS:"); err == nil {
		m.AppRSSBytes = status["VmRSS:"]
	}
	m.LoadAvg1, _ = readLoadAvg()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.NumGC = ms.NumGC

	stat := h.pool.Stat()
	m.DBAcquiredConns = stat.AcquiredConns()
	m.DBTotalConns = stat.TotalConns()

	pipe := h.rdb.Pipeline()
	gradingCmd := pipe.LLen(ctx, config.WorkerKey.GradeSubmissionsQueue)
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueGrading, _ = gradingCmd.Result()
		m.QueueViolations, _ = violationsCmd.Result()
	}

	return m
}

// readCPUStat parses the aggregate line of /proc/stat.
// Returns idle ticks and total ticks.
func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, errors.New("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		val, _ := strconv.ParseUint(f, 10, 64)
		total += val
		if i == 3 {
			idle = val
		}
	}
	return idle, total, nil
}

// readProcFields reads "Name:   123 kB" lines and returns the values in bytes.
func readProcFields(path string, names ...string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]uint64, len(names))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(out) < len(names) {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		for _, name := range names {
			if fields[0] == name {
				val, _ := strconv.ParseUint(fields[1], 10, 64)
				out[name] = val * 1024
			}
		}
	}
	return out, scanner.Err()
}

func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, errors.New("unexpected /proc/loadavg format")
	}
	return strconv.ParseFloat(fields[0], 64)
}
