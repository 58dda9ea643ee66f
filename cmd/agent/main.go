package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/wenerrp/device-agent/internal/backoff"
	"github.com/wenerrp/device-agent/internal/constants"
	"github.com/wenerrp/device-agent/internal/router"
	"github.com/wenerrp/device-agent/internal/services"
	"github.com/wenerrp/device-agent/internal/session"
	"github.com/wenerrp/device-agent/internal/utils"
	"github.com/wenerrp/device-agent/pkg/file"
	"github.com/wenerrp/device-agent/pkg/identity"
	"github.com/wenerrp/device-agent/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the agent configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging with JSON output
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration from file
	fileClient := file.NewFileService()
	if exists, err := fileClient.IsFileExists(*configPath); err != nil || !exists {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Configuration file not found")
	}
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Derive the stable client identity from the hardware address
	clientID := identity.ClientID(config.MQTT.ClientIDPrefix)
	log.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

	transportCfg := mqtt.Config{
		BrokerURL:      config.BrokerURL(),
		ClientID:       clientID,
		Username:       config.MQTT.Username,
		Password:       config.MQTT.Password,
		Keepalive:      config.Keepalive(),
		NetworkTimeout: config.NetworkTimeout(),
	}

	// TLS material comes from the filesystem credential provider
	if config.MQTT.TLS.Enabled {
		if transportCfg.CACert, err = fileClient.ReadFileRaw(config.MQTT.TLS.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to read CA certificate")
		}
		if config.MQTT.TLS.ClientCertificate != "" {
			if transportCfg.ClientCert, err = fileClient.ReadFileRaw(config.MQTT.TLS.ClientCertificate); err != nil {
				log.Fatal().Err(err).Msg("Failed to read client certificate")
			}
			if transportCfg.ClientKey, err = fileClient.ReadFileRaw(config.MQTT.TLS.ClientKey); err != nil {
				log.Fatal().Err(err).Msg("Failed to read client key")
			}
		}
	}

	transport, err := mqtt.NewPahoClient(transportCfg, log.With().Str("component", "mqtt").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT transport")
	}

	policy := backoff.NewPolicy(
		config.ReconnectBaseDelay(),
		config.ReconnectMaxDelay(),
		config.Reconnect.MaxRetries,
		backoff.NewSystemTimer(),
		log.With().Str("component", "backoff").Logger(),
	)

	reporter := router.NewStatusReporter(log.With().Str("component", "status").Logger())
	if ip := localIP(); ip != "" {
		reporter.SetDeviceIP(ip)
	}

	// The actuator is the boundary to the peripheral layer; the core only
	// hands over single-character codes.
	actuator := func(code byte) {
		log.Info().Str("code", string(code)).Msg("LED command dispatched")
	}

	commandRouter := router.New(reporter, actuator, log.With().Str("component", "router").Logger())
	sess := session.NewManager(transport, policy, commandRouter, reporter,
		log.With().Str("component", "session").Logger())

	if err := sess.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start broker session")
	}

	var telemetry *services.TelemetryService
	if config.Telemetry.Enabled {
		telemetry = services.NewTelemetryService(
			constants.TopicTelemetry,
			config.TelemetryInterval(),
			config.Telemetry.QOS,
			sess,
			reporter,
			log.With().Str("component", "telemetry").Logger(),
		)
		if err := telemetry.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start telemetry service")
		}
	}

	log.Info().Msg("Agent started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if telemetry != nil {
		if err := telemetry.Stop(); err != nil {
			log.Warn().Err(err).Msg("Telemetry service did not stop cleanly")
		}
	}
	sess.Stop()
}

// localIP returns the first non-loopback IPv4 address, or "" when the
// device has no usable address yet.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}
