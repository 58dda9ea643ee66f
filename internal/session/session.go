// Package session owns the broker session: connection state, the
// transport event loop, reconnection via the backoff policy, and the
// publish/subscribe surface offered to the rest of the device.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wenerrp/device-agent/internal/backoff"
	"github.com/wenerrp/device-agent/internal/constants"
	"github.com/wenerrp/device-agent/internal/models"
	"github.com/wenerrp/device-agent/internal/protocol"
	"github.com/wenerrp/device-agent/internal/router"
	"github.com/wenerrp/device-agent/pkg/mqtt"
)

// State is the connection state of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

var (
	// ErrNotConnected is returned by publish/subscribe operations while
	// the session is not connected. No buffering or retry happens here;
	// callers that need delivery must retry themselves.
	ErrNotConnected = errors.New("session: not connected to broker")

	// ErrTransportRejected is returned when the transport refuses an
	// accepted operation, e.g. reports a negative message id.
	ErrTransportRejected = errors.New("session: transport rejected operation")
)

// disconnectQuiesce is how long a graceful disconnect waits for in-flight
// work, in milliseconds.
const disconnectQuiesce = 250

// Manager drives one broker session. Operations may be called from any
// goroutine; the transport event stream is consumed on a single dedicated
// goroutine and all shared state is guarded by one mutex.
type Manager struct {
	client   mqtt.Client
	policy   *backoff.Policy
	router   *router.Router
	reporter *router.StatusReporter
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager wires a session over the given transport. The client must be
// unconnected; Start performs the first connection attempt.
func NewManager(client mqtt.Client, policy *backoff.Policy, rt *router.Router,
	reporter *router.StatusReporter, logger zerolog.Logger) *Manager {

	return &Manager{
		client:   client,
		policy:   policy,
		router:   rt,
		reporter: reporter,
		logger:   logger,
	}
}

// Start registers the last will, launches the event loop and performs the
// initial connection attempt. A second call while the session is active
// is a no-op that reports success. On failure every acquired resource is
// released and the session is left disconnected.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn().Msg("Session already started, ignoring start request")
		return nil
	}
	m.started = true
	m.state = StateConnecting
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.policy.Reset()

	// The will payload carries the last known IP so the broker reports a
	// meaningful retained offline status if we vanish ungracefully.
	will := protocol.Encode(models.Envelope{
		Type:   models.TypeStatus,
		Status: &models.StatusReport{Status: constants.StatusOffline, IP: m.reporter.DeviceIP()},
	})
	m.client.SetWill(constants.TopicStatus, will, constants.StatusQOS, true)

	m.wg.Add(1)
	go m.eventLoop()

	if err := m.client.Connect(); err != nil {
		m.logger.Error().Err(err).Msg("Initial broker connection failed")
		m.teardown(false)
		return fmt.Errorf("session: transport connect: %w", err)
	}

	m.logger.Info().Msg("Session started")
	return nil
}

// Stop cancels any pending reconnection, quiesces the event loop, and if
// connected publishes a retained offline status before disconnecting.
// Stopping an already stopped session is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		m.logger.Warn().Msg("Session already stopped")
		return
	}
	wasConnected := m.state == StateConnected
	m.mu.Unlock()

	m.teardown(wasConnected)
	m.logger.Info().Msg("Session stopped")
}

// teardown releases session resources in the order required to keep the
// timer and event callbacks from firing against a dead session: cancel
// the timer and wait out any in-flight reconnect attempt, quiesce the
// event loop, then release the transport. The transport is always
// disconnected, since a reconnect attempt racing the stop may have just
// re-established the connection.
func (m *Manager) teardown(publishOffline bool) {
	m.mu.Lock()
	m.started = false
	m.state = StateDisconnected
	done := m.done
	m.done = nil
	m.mu.Unlock()

	m.policy.Cancel()

	if done != nil {
		close(done)
	}
	m.wg.Wait()

	if publishOffline {
		report := m.reporter.Build(constants.StatusOffline)
		payload := protocol.Encode(models.Envelope{Type: models.TypeStatus, Status: &report})
		if _, err := m.client.Publish(constants.TopicStatus, payload, constants.StatusQOS, true); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to publish offline status during shutdown")
		}
	}
	m.client.Disconnect(disconnectQuiesce)

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
}

// IsConnected reports whether the session is currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetDeviceIP updates the device metadata used in future status reports.
// Valid in any connection state.
func (m *Manager) SetDeviceIP(ip string) {
	m.reporter.SetDeviceIP(ip)
	m.logger.Debug().Str("ip", ip).Msg("Device IP updated")
}

// Publish forwards payload to the transport. It fails fast when the
// session is not connected and maps transport refusals to
// ErrTransportRejected; no buffering or retry happens at this layer.
func (m *Manager) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	id, err := m.client.Publish(topic, payload, qos, retain)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportRejected, err)
	}
	if id < 0 {
		return ErrTransportRejected
	}
	return nil
}

// Subscribe registers a topic subscription, with the same connectivity
// precondition and failure mapping as Publish.
func (m *Manager) Subscribe(topic string, qos byte) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	id, err := m.client.Subscribe(topic, qos)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportRejected, err)
	}
	if id < 0 {
		return ErrTransportRejected
	}
	return nil
}

// Unsubscribe removes a topic subscription, with the same connectivity
// precondition and failure mapping as Publish.
func (m *Manager) Unsubscribe(topic string) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	id, err := m.client.Unsubscribe(topic)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportRejected, err)
	}
	if id < 0 {
		return ErrTransportRejected
	}
	return nil
}

// eventLoop consumes the transport's ordered event stream until the
// session is stopped. Handlers run to completion and never block.
func (m *Manager) eventLoop() {
	defer m.wg.Done()

	events := m.client.Events()
	for {
		select {
		case ev := <-events:
			m.handleEvent(ev)
		case <-m.done:
			return
		}
	}
}

// handleEvent dispatches one transport event to its handler.
func (m *Manager) handleEvent(ev mqtt.Event) {
	switch ev.Type {
	case mqtt.EventBeforeConnect:
		m.logger.Debug().Msg("Broker connection attempt starting")

	case mqtt.EventConnected:
		m.handleConnected()

	case mqtt.EventDisconnected:
		m.logger.Warn().Err(ev.Err).Msg("Disconnected from broker")
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.scheduleReconnect()

	case mqtt.EventSubscribed:
		m.logger.Debug().Str("topic", ev.Topic).Msg("Subscription confirmed")

	case mqtt.EventUnsubscribed:
		m.logger.Debug().Str("topic", ev.Topic).Msg("Unsubscription confirmed")

	case mqtt.EventPublished:
		m.logger.Debug().Str("topic", ev.Topic).Msg("Publish confirmed")

	case mqtt.EventDataReceived:
		m.handleData(ev.Topic, ev.Payload)

	case mqtt.EventError:
		m.logger.Error().Err(ev.Err).Int("code", ev.Code).Msg("Transport error reported")
	}
}

// handleConnected resets the backoff ladder, subscribes to the commands
// topic and announces the device as online with a retained status.
func (m *Manager) handleConnected() {
	m.mu.Lock()
	m.state = StateConnected
	m.mu.Unlock()

	m.policy.Reset()
	m.logger.Info().Msg("Connected to broker")

	if err := m.Subscribe(constants.TopicCommands, constants.StatusQOS); err != nil {
		m.logger.Error().Err(err).Str("topic", constants.TopicCommands).
			Msg("Failed to subscribe to commands topic")
	}

	report := m.reporter.Build(constants.StatusOnline)
	payload := protocol.Encode(models.Envelope{Type: models.TypeStatus, Status: &report})
	if err := m.Publish(constants.TopicStatus, payload, constants.StatusQOS, true); err != nil {
		m.logger.Error().Err(err).Msg("Failed to publish online status")
	}
}

// handleData routes inbound messages from the commands topic through the
// codec and the command router. Protocol failures are logged and the
// message is dropped; they never propagate.
func (m *Manager) handleData(topic string, payload []byte) {
	if topic != constants.TopicCommands {
		m.logger.Debug().Str("topic", topic).Msg("Ignoring data on unhandled topic")
		return
	}

	env, err := protocol.Decode(payload)
	if err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("Dropping undecodable message")
		return
	}

	reply, ok := m.router.Route(env)
	if !ok {
		return
	}

	if err := m.Publish(constants.TopicResponse, protocol.Encode(reply), 0, false); err != nil {
		m.logger.Error().Err(err).Str("topic", constants.TopicResponse).
			Msg("Failed to publish command response")
	}
}

// scheduleReconnect arms the backoff timer for the next connection
// attempt. Once the retry budget is exhausted the session parks in the
// failed state until an explicit stop/start cycle.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	err := m.policy.Schedule(m.reconnect)
	switch {
	case err == nil:
		m.mu.Lock()
		m.state = StateReconnecting
		m.mu.Unlock()

	case errors.Is(err, backoff.ErrExhausted):
		m.mu.Lock()
		m.state = StateFailed
		m.mu.Unlock()
		m.logger.Error().Msg("Reconnection attempts exhausted, session requires restart")

	case errors.Is(err, backoff.ErrTimerPending):
		// One Disconnected event arrives per lost connection, so a
		// pending timer here means events and timer callbacks raced.
		m.logger.Warn().Msg("Reconnect already scheduled, ignoring duplicate disconnect")
	}
}

// reconnect runs when the backoff timer fires. It restarts the transport;
// a failed attempt feeds back into the backoff ladder.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info().Int("attempt", m.policy.RetryCount()).Msg("Attempting broker reconnection")

	if err := m.client.Connect(); err != nil {
		m.logger.Error().Err(err).Msg("Reconnection attempt failed")
		// The transport emits no Disconnected event for a refused
		// connect, so drive the next attempt from here.
		m.scheduleReconnect()
	}
}
