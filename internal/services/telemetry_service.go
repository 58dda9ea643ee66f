package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenerrp/device-agent/internal/constants"
	"github.com/wenerrp/device-agent/internal/models"
	"github.com/wenerrp/device-agent/internal/protocol"
	"github.com/wenerrp/device-agent/internal/router"
	"github.com/wenerrp/device-agent/internal/session"
)

// Publisher is the subset of the session manager the telemetry service
// uses to send reports.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
	IsConnected() bool
}

// TelemetryService publishes periodic status reports on the telemetry
// topic. It runs on its own goroutine and goes through the session's
// publish path, so reports are simply skipped while disconnected.
type TelemetryService struct {
	PubTopic string
	Interval time.Duration
	QOS      int
	Session  Publisher
	Reporter *router.StatusReporter
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(pubTopic string, interval time.Duration, qos int,
	sess Publisher, reporter *router.StatusReporter, logger zerolog.Logger) *TelemetryService {

	return &TelemetryService{
		PubTopic: pubTopic,
		Interval: interval,
		QOS:      qos,
		Session:  sess,
		Reporter: reporter,
		Logger:   logger,
	}
}

// Start launches the telemetry loop in a separate goroutine.
func (t *TelemetryService) Start() error {
	if t.ctx != nil {
		t.Logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runTelemetryLoop()
	}()

	t.Logger.Info().Str("topic", t.PubTopic).Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the telemetry service.
func (t *TelemetryService) Stop() error {
	if t.ctx == nil {
		t.Logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	t.cancel()
	t.wg.Wait()

	t.ctx = nil
	t.cancel = nil

	t.Logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

// runTelemetryLoop publishes a fresh status report at every tick.
func (t *TelemetryService) runTelemetryLoop() {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !t.Session.IsConnected() {
				t.Logger.Debug().Msg("Skipping telemetry report while disconnected")
				continue
			}

			report := t.Reporter.Build(constants.StatusOnline)
			payload := protocol.Encode(models.Envelope{Type: models.TypeTelemetry, Status: &report})

			err := t.Session.Publish(t.PubTopic, payload, byte(t.QOS), false)
			switch {
			case errors.Is(err, session.ErrNotConnected):
				// Lost the connection between the check and the publish.
				t.Logger.Debug().Msg("Connection lost before telemetry publish")
			case err != nil:
				t.Logger.Error().Err(err).Msg("Failed to publish telemetry report")
			default:
				t.Logger.Debug().Msg("Telemetry report published successfully")
			}

		case <-t.ctx.Done():
			t.Logger.Info().Msg("TelemetryService stopping gracefully")
			return
		}
	}
}
