package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// eventBuffer sizes the event channel. The session consumes events on a
// dedicated goroutine, so the buffer only has to absorb short bursts.
const eventBuffer = 64

// PahoClient implements Client over eclipse/paho.mqtt.golang with
// auto-reconnect disabled; the session layer owns all reconnection.
type PahoClient struct {
	opts    *pahomqtt.ClientOptions
	client  pahomqtt.Client
	events  chan Event
	timeout time.Duration
	logger  zerolog.Logger

	// subs tracks live subscriptions so they can be restored after the
	// session re-establishes the connection.
	subs cmap.ConcurrentMap[string, byte]
}

// NewPahoClient builds an unconnected transport from cfg. TLS material,
// when present, must parse or the constructor fails.
func NewPahoClient(cfg Config, logger zerolog.Logger) (*PahoClient, error) {
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 120 * time.Second
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = 10 * time.Second
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.Keepalive)
	opts.SetConnectTimeout(cfg.NetworkTimeout)
	opts.SetWriteTimeout(cfg.NetworkTimeout)
	opts.SetCleanSession(true)

	// Reconnection is owned entirely by the session layer.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.CACert != nil {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	c := &PahoClient{
		opts:    opts,
		events:  make(chan Event, eventBuffer),
		timeout: cfg.NetworkTimeout,
		logger:  logger,
		subs:    cmap.New[byte](),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.restoreSubscriptions()
		c.emit(Event{Type: EventConnected})
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn().Err(err).Msg("Broker connection lost")
		c.emit(Event{Type: EventDisconnected, Err: err})
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.emit(Event{Type: EventDataReceived, Topic: msg.Topic(), Payload: msg.Payload()})
	})

	return c, nil
}

// buildTLSConfig assembles a mutual-TLS configuration from PEM buffers.
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(cfg.CACert) {
		return nil, fmt.Errorf("mqtt: failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	if cfg.ClientCert != nil || cfg.ClientKey != nil {
		pair, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("mqtt: failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	return tlsConfig, nil
}

// SetWill registers the last-will message with the broker options. It
// only takes effect when called before the first Connect.
func (c *PahoClient) SetWill(topic string, payload []byte, qos byte, retain bool) {
	c.opts.SetBinaryWill(topic, payload, qos, retain)
}

// Connect performs one connection attempt. The Connected event is emitted
// by the connect handler once the broker accepts the session.
func (c *PahoClient) Connect() error {
	c.emit(Event{Type: EventBeforeConnect})

	if c.client == nil {
		c.client = pahomqtt.NewClient(c.opts)
	}

	token := c.client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%w: connect after %v", ErrTimeout, c.timeout)
	}
	if err := token.Error(); err != nil {
		c.emit(Event{Type: EventError, Err: err})
		return err
	}
	return nil
}

// Disconnect closes the connection gracefully.
func (c *PahoClient) Disconnect(quiesce uint) {
	if c.client != nil {
		c.client.Disconnect(quiesce)
	}
}

// Publish sends payload to topic and waits for broker acknowledgment up
// to the network timeout. A rejected publish reports id -1.
func (c *PahoClient) Publish(topic string, payload []byte, qos byte, retain bool) (int, error) {
	token := c.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(c.timeout) {
		return -1, fmt.Errorf("%w: publish to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return -1, err
	}

	c.emit(Event{Type: EventPublished, Topic: topic})
	if pt, ok := token.(*pahomqtt.PublishToken); ok {
		return int(pt.MessageID()), nil
	}
	return 0, nil
}

// Subscribe registers the topic and routes its messages onto the event
// stream. The subscription is remembered and restored on reconnect.
func (c *PahoClient) Subscribe(topic string, qos byte) (int, error) {
	token := c.client.Subscribe(topic, qos, c.inbound)
	if !token.WaitTimeout(c.timeout) {
		return -1, fmt.Errorf("%w: subscribe to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return -1, err
	}

	c.subs.Set(topic, qos)
	c.emit(Event{Type: EventSubscribed, Topic: topic})
	return 0, nil
}

// Unsubscribe removes the topic subscription.
func (c *PahoClient) Unsubscribe(topic string) (int, error) {
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(c.timeout) {
		return -1, fmt.Errorf("%w: unsubscribe from %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return -1, err
	}

	c.subs.Remove(topic)
	c.emit(Event{Type: EventUnsubscribed, Topic: topic})
	return 0, nil
}

// Events returns the transport event stream.
func (c *PahoClient) Events() <-chan Event {
	return c.events
}

func (c *PahoClient) inbound(_ pahomqtt.Client, msg pahomqtt.Message) {
	c.emit(Event{Type: EventDataReceived, Topic: msg.Topic(), Payload: msg.Payload()})
}

// restoreSubscriptions re-registers every remembered subscription after a
// new connection. Runs on paho's connect callback goroutine.
func (c *PahoClient) restoreSubscriptions() {
	for item := range c.subs.IterBuffered() {
		token := c.client.Subscribe(item.Key, item.Val, c.inbound)
		if !token.WaitTimeout(c.timeout) || token.Error() != nil {
			c.logger.Warn().Str("topic", item.Key).Err(token.Error()).
				Msg("Failed to restore subscription after reconnect")
		}
	}
}

// emit pushes ev onto the event stream. Connection transitions drive the
// session's recovery and nothing re-emits them, so a dropped Disconnected
// would leave the session stuck; those sends block until the consumer
// catches up. Everything else is best-effort: drops are logged and the
// session resynchronizes from later events.
func (c *PahoClient) emit(ev Event) {
	if ev.Type == EventConnected || ev.Type == EventDisconnected {
		c.events <- ev
		return
	}

	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("event", ev.Type.String()).Msg("Event channel full, dropping transport event")
	}
}
