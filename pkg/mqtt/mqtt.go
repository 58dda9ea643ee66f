// Package mqtt defines the broker transport used by the session manager
// and implements it on top of eclipse/paho.mqtt.golang. The transport is
// deliberately dumb: it never reconnects on its own and reports every
// connection change on an ordered event stream for the session to act on.
package mqtt

import (
	"errors"
	"time"
)

// EventType tags the closed set of transport events.
type EventType int

const (
	// EventBeforeConnect is advisory, emitted before a connect attempt.
	EventBeforeConnect EventType = iota
	// EventConnected means the broker accepted the connection.
	EventConnected
	// EventDisconnected means the connection was lost; Err carries the cause.
	EventDisconnected
	// EventSubscribed confirms a subscription; Topic is set.
	EventSubscribed
	// EventUnsubscribed confirms an unsubscription; Topic is set.
	EventUnsubscribed
	// EventPublished confirms a publish was accepted; Topic is set.
	EventPublished
	// EventDataReceived carries an inbound message; Topic and Payload are set.
	EventDataReceived
	// EventError reports a transport-level failure; Err and Code are set.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventBeforeConnect:
		return "before_connect"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventPublished:
		return "published"
	case EventDataReceived:
		return "data_received"
	case EventError:
		return "error"
	default:
		return "invalid"
	}
}

// Event is one entry of the transport's ordered event stream. Fields
// beyond Type are populated per tag, see the EventType constants.
type Event struct {
	Type    EventType
	Topic   string
	Payload []byte
	Err     error
	Code    int
}

// Client is the transport surface the session manager drives. Publish,
// Subscribe and Unsubscribe return the broker message id; a negative id
// means the transport rejected the operation.
type Client interface {
	// Connect starts a single connection attempt. It does not retry.
	Connect() error

	// Disconnect closes the connection gracefully, waiting up to quiesce
	// milliseconds for in-flight work.
	Disconnect(quiesce uint)

	// SetWill registers the last-will message. Must be called before the
	// first Connect to take effect.
	SetWill(topic string, payload []byte, qos byte, retain bool)

	Publish(topic string, payload []byte, qos byte, retain bool) (int, error)
	Subscribe(topic string, qos byte) (int, error)
	Unsubscribe(topic string) (int, error)

	// Events returns the ordered event stream. The channel is never
	// closed by the transport; consumers stop reading on their own.
	Events() <-chan Event
}

// Config is the connection surface for the paho transport.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	Keepalive      time.Duration
	NetworkTimeout time.Duration

	// PEM buffers for mutual TLS, supplied by an external credential
	// provider. All three must be set together or left nil.
	CACert     []byte
	ClientCert []byte
	ClientKey  []byte
}

// ErrTimeout is returned when the broker does not acknowledge an
// operation within the configured network timeout.
var ErrTimeout = errors.New("mqtt: operation timed out")
