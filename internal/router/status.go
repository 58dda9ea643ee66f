package router

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"github.com/wenerrp/device-agent/internal/models"
)

// StatusReporter assembles status reports from live system readings and
// the device metadata shared with the session. The last-report timestamp
// is process-wide and deliberately survives reconnects, so the reported
// delta reflects the true cadence seen by subscribers.
type StatusReporter struct {
	logger zerolog.Logger

	mu         sync.Mutex
	deviceIP   string
	activeLED  string
	lastReport time.Time

	// System readings, replaceable in tests.
	uptime     func() (uint64, error)
	freeMemory func() (uint64, error)
	now        func() time.Time
}

// NewStatusReporter creates a reporter backed by gopsutil readings.
func NewStatusReporter(logger zerolog.Logger) *StatusReporter {
	return &StatusReporter{
		logger:     logger,
		uptime:     host.Uptime,
		freeMemory: freeMemoryBytes,
		now:        time.Now,
	}
}

func freeMemoryBytes() (uint64, error) {
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stats.Available, nil
}

// SetDeviceIP updates the IP address included in future reports.
func (sr *StatusReporter) SetDeviceIP(ip string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.deviceIP = ip
}

// DeviceIP returns the last reported device IP.
func (sr *StatusReporter) DeviceIP() string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.deviceIP
}

// SetActiveLED records the identifier of the component last actuated.
func (sr *StatusReporter) SetActiveLED(name string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.activeLED = name
}

// Build assembles a fresh status report with the given status string and
// advances the last-report timestamp as a side effect. The first report
// of the process carries a zero delta.
func (sr *StatusReporter) Build(status string) models.StatusReport {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := sr.now()
	var sinceLast int64
	if !sr.lastReport.IsZero() {
		sinceLast = int64(now.Sub(sr.lastReport).Seconds())
	}
	sr.lastReport = now

	up, err := sr.uptime()
	if err != nil {
		sr.logger.Warn().Err(err).Msg("Failed to read system uptime")
	}
	free, err := sr.freeMemory()
	if err != nil {
		sr.logger.Warn().Err(err).Msg("Failed to read free memory")
	}

	return models.StatusReport{
		Status:              status,
		IP:                  sr.deviceIP,
		Uptime:              up,
		FreeHeap:            free,
		ActiveLED:           sr.activeLED,
		TimeSinceLastUpdate: sinceLast,
	}
}
