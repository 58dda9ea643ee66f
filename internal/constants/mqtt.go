package constants

// Fixed topic convention shared with the backend.
const (
	// TopicCommands carries inbound command envelopes.
	TopicCommands = "/device/commands"
	// TopicStatus carries retained status reports and the last will.
	TopicStatus = "/device/status"
	// TopicTelemetry carries periodic telemetry reports, not retained.
	TopicTelemetry = "/device/telemetry"
	// TopicResponse carries command acks and ping replies, not retained.
	TopicResponse = "/device/response"
)

// Status values reported on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Connection defaults, applied when the configuration leaves them unset.
const (
	DefaultBaseDelayMS              = 5000
	DefaultMaxDelayMS               = 300000
	DefaultMaxRetries               = 5
	DefaultKeepaliveSeconds         = 120
	DefaultNetworkTimeoutMS         = 10000
	DefaultTelemetryIntervalSeconds = 60
	DefaultClientIDPrefix           = "esp32"
)

// StatusQOS is the QoS level for status reports and the last will.
const StatusQOS = 1
