// Package monitor keeps process-wide upload and download byte counters for
// the splicing engine and derives a per-second rate from them.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const initialFormatted = "0.00 B/s"

// Role names the side of a tunnel a pump is attached to.
type Role uint8

const (
	RoleClient Role = iota
	RoleTarget
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Op is the kind of transfer being accounted.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

func (op Op) String() string {
	if op == OpRead {
		return "read"
	}
	return "write"
}

// Stats is a point-in-time copy of the monitor state.
type Stats struct {
	TotalUpload   uint64
	TotalDownload uint64
	UploadRate    float64 // bytes per second
	DownloadRate  float64 // bytes per second
}

type meter struct {
	total     uint64
	lastTotal uint64
	lastTime  time.Time
	rate      float64
	formatted string
}

func (m *meter) reset(now time.Time) {
	*m = meter{lastTime: now, formatted: initialFormatted}
}

// add accumulates n bytes and resamples the rate once at least a second has
// passed since the previous sample.
func (m *meter) add(n uint64, now time.Time) {
	m.total += n
	elapsed := now.Sub(m.lastTime).Seconds()
	if elapsed < 1.0 {
		return
	}
	m.rate = float64(m.total-m.lastTotal) / elapsed
	m.formatted = FormatRate(m.rate)
	m.lastTotal = m.total
	m.lastTime = now
}

// Monitor is guarded by a single mutex shared by both directions.
type Monitor struct {
	mu       sync.Mutex
	now      func() time.Time
	upload   meter
	download meter
	running  bool
}

// New returns a monitor that has already been initialized.
func New() *Monitor {
	m := &Monitor{now: time.Now}
	m.Init()
	return m
}

// Init resets all counters and marks the monitor as running.
func (m *Monitor) Init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.upload.reset(now)
	m.download.reset(now)
	m.running = true
}

// Stop marks the monitor as stopped. Counters keep accumulating; only
// reporting stops.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Record accounts n bytes moved by the pump attached to role. Client reads and
// target writes are uploads, target reads and client writes are downloads.
// A nil Monitor ignores the call.
func (m *Monitor) Record(n int, role Role, op Op) {
	if m == nil || n <= 0 {
		return
	}
	switch {
	case role == RoleClient && op == OpRead, role == RoleTarget && op == OpWrite:
		m.AddUpload(uint64(n))
	case role == RoleTarget && op == OpRead, role == RoleClient && op == OpWrite:
		m.AddDownload(uint64(n))
	}
}

func (m *Monitor) AddUpload(n uint64) {
	m.mu.Lock()
	m.upload.add(n, m.now())
	m.mu.Unlock()
}

func (m *Monitor) AddDownload(n uint64) {
	m.mu.Lock()
	m.download.add(n, m.now())
	m.mu.Unlock()
}

// UploadRate returns the last sampled upload rate in bytes per second.
func (m *Monitor) UploadRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upload.rate
}

// DownloadRate returns the last sampled download rate in bytes per second.
func (m *Monitor) DownloadRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.download.rate
}

func (m *Monitor) FormattedUpload() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upload.formatted
}

func (m *Monitor) FormattedDownload() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.download.formatted
}

func (m *Monitor) TotalUpload() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upload.total
}

func (m *Monitor) TotalDownload() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.download.total
}

func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalUpload:   m.upload.total,
		TotalDownload: m.download.total,
		UploadRate:    m.upload.rate,
		DownloadRate:  m.download.rate,
	}
}

// Report logs the formatted rates every interval while the monitor is
// running, until ctx is done.
func (m *Monitor) Report(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if !m.Running() {
			continue
		}
		logger.Info("bandwidth",
			zap.String("upload", m.FormattedUpload()),
			zap.String("download", m.FormattedDownload()),
		)
	}
}

// FormatRate renders a bytes-per-second rate with two decimals, switching to
// KB/s above 1024 and MB/s above 1024*1024.
func FormatRate(rate float64) string {
	unit := "B/s"
	display := rate
	if rate > 1024*1024 {
		display = rate / (1024 * 1024)
		unit = "MB/s"
	} else if rate > 1024 {
		display = rate / 1024
		unit = "KB/s"
	}
	return fmt.Sprintf("%.2f %s", math.Round(display*100)/100, unit)
}
