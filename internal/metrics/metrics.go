package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds the process-wide conversion counters
type Metrics struct {
	startTime time.Time

	// File metrics
	filesTotal     atomic.Int64
	filesSucceeded atomic.Int64
	filesFailed    atomic.Int64
	filesActive    atomic.Int64

	// Game/row metrics
	gamesTotal atomic.Int64
	rowsTotal  atomic.Int64

	// Conversion latency (microseconds)
	convertLatencySum   atomic.Int64
	convertLatencyCount atomic.Int64

	// Storage metrics
	storageReadBytesTotal atomic.Int64
	storageErrorsTotal    atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			startTime: time.Now(),
		}
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Debug().Msg("Metrics collector initialized")
	return m
}

// File Metrics
func (m *Metrics) IncFilesStarted() {
	m.filesTotal.Add(1)
	m.filesActive.Add(1)
}

func (m *Metrics) IncFilesSucceeded() {
	m.filesSucceeded.Add(1)
	m.filesActive.Add(-1)
}

func (m *Metrics) IncFilesFailed() {
	m.filesFailed.Add(1)
	m.filesActive.Add(-1)
}

// Game Metrics
func (m *Metrics) IncGames(count int64) { m.gamesTotal.Add(count) }
func (m *Metrics) IncRows(count int64)  { m.rowsTotal.Add(count) }

// RecordConvertLatency records how long one file took, in microseconds
func (m *Metrics) RecordConvertLatency(durationMicros int64) {
	m.convertLatencySum.Add(durationMicros)
	m.convertLatencyCount.Add(1)
}

// Storage Metrics
func (m *Metrics) IncStorageReadBytes(bytes int64) { m.storageReadBytesTotal.Add(bytes) }
func (m *Metrics) IncStorageErrors()               { m.storageErrorsTotal.Add(1) }

// Reset zeroes every counter and restarts the uptime clock
func (m *Metrics) Reset() {
	m.startTime = time.Now()
	for _, c := range []*atomic.Int64{
		&m.filesTotal, &m.filesSucceeded, &m.filesFailed, &m.filesActive,
		&m.gamesTotal, &m.rowsTotal,
		&m.convertLatencySum, &m.convertLatencyCount,
		&m.storageReadBytesTotal, &m.storageErrorsTotal,
	} {
		c.Store(0)
	}
}

// Snapshot returns all metrics as a map (for the run summary)
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		// Process info
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),

		// Memory (Go runtime)
		"memory_heap_alloc_bytes": memStats.HeapAlloc,
		"memory_sys_bytes":        memStats.Sys,
		"gc_cycles":               memStats.NumGC,

		// Files
		"files_total":     m.filesTotal.Load(),
		"files_succeeded": m.filesSucceeded.Load(),
		"files_failed":    m.filesFailed.Load(),
		"files_active":    m.filesActive.Load(),

		// Games
		"games_total": m.gamesTotal.Load(),
		"rows_total":  m.rowsTotal.Load(),

		// Latency
		"convert_latency_sum_us": m.convertLatencySum.Load(),
		"convert_latency_count":  m.convertLatencyCount.Load(),

		// Storage
		"storage_read_bytes_total": m.storageReadBytesTotal.Load(),
		"storage_errors_total":     m.storageErrorsTotal.Load(),
	}
}

// PrometheusFormat returns metrics in Prometheus text exposition format,
// suitable for a node_exporter textfile collector
func (m *Metrics) PrometheusFormat() string {
	var b []byte
	b = append(b, "# HELP pgnconv_uptime_seconds Time since the run started\n"...)
	b = append(b, "# TYPE pgnconv_uptime_seconds gauge\n"...)
	b = appendMetric(b, "pgnconv_uptime_seconds", time.Since(m.startTime).Seconds())

	b = append(b, "# HELP pgnconv_files_total Archives processed by result\n"...)
	b = append(b, "# TYPE pgnconv_files_total counter\n"...)
	b = appendMetricWithLabel(b, "pgnconv_files_total", "result", "success", float64(m.filesSucceeded.Load()))
	b = appendMetricWithLabel(b, "pgnconv_files_total", "result", "failure", float64(m.filesFailed.Load()))

	b = append(b, "# HELP pgnconv_games_total Games read from archives\n"...)
	b = append(b, "# TYPE pgnconv_games_total counter\n"...)
	b = appendMetric(b, "pgnconv_games_total", float64(m.gamesTotal.Load()))

	b = append(b, "# HELP pgnconv_rows_total Rows written to output tables\n"...)
	b = append(b, "# TYPE pgnconv_rows_total counter\n"...)
	b = appendMetric(b, "pgnconv_rows_total", float64(m.rowsTotal.Load()))

	b = append(b, "# HELP pgnconv_convert_duration_seconds Time spent converting archives\n"...)
	b = append(b, "# TYPE pgnconv_convert_duration_seconds summary\n"...)
	b = appendMetric(b, "pgnconv_convert_duration_seconds_sum", float64(m.convertLatencySum.Load())/1e6)
	b = appendMetric(b, "pgnconv_convert_duration_seconds_count", float64(m.convertLatencyCount.Load()))

	b = append(b, "# HELP pgnconv_storage_read_bytes_total Compressed bytes read from storage\n"...)
	b = append(b, "# TYPE pgnconv_storage_read_bytes_total counter\n"...)
	b = appendMetric(b, "pgnconv_storage_read_bytes_total", float64(m.storageReadBytesTotal.Load()))

	b = append(b, "# HELP pgnconv_storage_errors_total Storage operations that failed\n"...)
	b = append(b, "# TYPE pgnconv_storage_errors_total counter\n"...)
	b = appendMetric(b, "pgnconv_storage_errors_total", float64(m.storageErrorsTotal.Load()))

	return string(b)
}

// WriteTextfile writes PrometheusFormat to path. The file is written next
// to path and renamed into place so collectors never see a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create metrics textfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(m.PrometheusFormat()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install metrics textfile: %w", err)
	}
	return nil
}

// Helper functions for Prometheus format
func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendFloat(b []byte, v float64) []byte {
	if v == float64(int64(v)) {
		return appendInt(b, int64(v))
	}
	// Format with 6 decimal places
	intPart := int64(v)
	fracPart := int64((v - float64(intPart)) * 1000000)
	if fracPart < 0 {
		fracPart = -fracPart
	}
	b = appendInt(b, intPart)
	b = append(b, '.')
	for div := int64(100000); div > 1 && fracPart < div; div /= 10 {
		b = append(b, '0')
	}
	b = appendInt(b, fracPart)
	return b
}

func appendInt(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, digits[i:]...)
}
