package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/wenerrp/device-agent/internal/constants"
	"github.com/wenerrp/device-agent/pkg/file"
)

// ErrInvalidConfig marks configuration errors that are fatal to startup.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the structure of the configuration file. Durations
// are plain integers with the unit in the key name; the accessor methods
// below convert them.
type Config struct {
	MQTT struct {
		Broker           string `yaml:"broker"`             // Broker URI, e.g. tcp://broker.emqx.io
		Port             int    `yaml:"port"`               // Broker port
		ClientIDPrefix   string `yaml:"client_id_prefix"`   // Prefix for the MAC-derived client ID
		Username         string `yaml:"username"`           // Optional broker username
		Password         string `yaml:"password"`           // Optional broker password
		KeepaliveSeconds int    `yaml:"keepalive"`          // MQTT keepalive interval in seconds
		NetworkTimeoutMS int    `yaml:"network_timeout_ms"` // Timeout for broker acknowledgments

		TLS struct {
			Enabled           bool   `yaml:"enabled"`            // Enable mutual TLS
			CACertificate     string `yaml:"ca_certificate"`     // Path to the CA certificate
			ClientCertificate string `yaml:"client_certificate"` // Path to the client certificate
			ClientKey         string `yaml:"client_key"`         // Path to the client key
		} `yaml:"tls"`
	} `yaml:"mqtt"`

	Reconnect struct {
		BaseDelayMS int `yaml:"base_delay_ms"` // First backoff delay in milliseconds
		MaxDelayMS  int `yaml:"max_delay_ms"`  // Backoff cap in milliseconds
		MaxRetries  int `yaml:"max_retries"`   // Attempts before giving up
	} `yaml:"reconnect"`

	Telemetry struct {
		Enabled         bool `yaml:"enabled"`  // Enable/disable the telemetry publisher
		IntervalSeconds int  `yaml:"interval"` // Interval between telemetry reports in seconds
		QOS             int  `yaml:"qos"`      // MQTT QoS level for telemetry messages
	} `yaml:"telemetry"`
}

// LoadConfig loads the YAML configuration from the specified file,
// applies defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientIDPrefix == "" {
		c.MQTT.ClientIDPrefix = constants.DefaultClientIDPrefix
	}
	if c.MQTT.KeepaliveSeconds <= 0 {
		c.MQTT.KeepaliveSeconds = constants.DefaultKeepaliveSeconds
	}
	if c.MQTT.NetworkTimeoutMS <= 0 {
		c.MQTT.NetworkTimeoutMS = constants.DefaultNetworkTimeoutMS
	}
	if c.Reconnect.BaseDelayMS <= 0 {
		c.Reconnect.BaseDelayMS = constants.DefaultBaseDelayMS
	}
	if c.Reconnect.MaxDelayMS <= 0 {
		c.Reconnect.MaxDelayMS = constants.DefaultMaxDelayMS
	}
	if c.Reconnect.MaxRetries <= 0 {
		c.Reconnect.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Telemetry.IntervalSeconds <= 0 {
		c.Telemetry.IntervalSeconds = constants.DefaultTelemetryIntervalSeconds
	}
}

func (c *Config) validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required", ErrInvalidConfig)
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("%w: mqtt.port %d out of range", ErrInvalidConfig, c.MQTT.Port)
	}
	if c.Reconnect.MaxDelayMS < c.Reconnect.BaseDelayMS {
		return fmt.Errorf("%w: reconnect.max_delay_ms below reconnect.base_delay_ms", ErrInvalidConfig)
	}
	if c.MQTT.TLS.Enabled && c.MQTT.TLS.CACertificate == "" {
		return fmt.Errorf("%w: mqtt.tls.ca_certificate is required when TLS is enabled", ErrInvalidConfig)
	}
	return nil
}

// BrokerURL joins the broker URI and port into the transport address.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("%s:%d", c.MQTT.Broker, c.MQTT.Port)
}

// Keepalive returns the keepalive interval as a duration.
func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.MQTT.KeepaliveSeconds) * time.Second
}

// NetworkTimeout returns the broker acknowledgment timeout as a duration.
func (c *Config) NetworkTimeout() time.Duration {
	return time.Duration(c.MQTT.NetworkTimeoutMS) * time.Millisecond
}

// ReconnectBaseDelay returns the first backoff delay as a duration.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.Reconnect.BaseDelayMS) * time.Millisecond
}

// ReconnectMaxDelay returns the backoff cap as a duration.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelayMS) * time.Millisecond
}

// TelemetryInterval returns the telemetry period as a duration.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}
