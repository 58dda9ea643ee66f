package models

import "encoding/json"

// MessageType discriminates every application message exchanged over the
// broker. It maps directly to the wire-level "type" field.
type MessageType string

const (
	TypePing      MessageType = "ping"
	TypeCommand   MessageType = "command"
	TypeStatus    MessageType = "status"
	TypeTelemetry MessageType = "telemetry"
	TypeResponse  MessageType = "response"

	// TypeUnknown marks an envelope whose wire type is not recognized.
	// Such envelopes decode successfully so callers can drop them silently.
	TypeUnknown MessageType = "unknown"
)

// Envelope is the decoded form of one application message. Exactly one of
// the variant pointers is set, matching Type; Ping carries no payload.
type Envelope struct {
	Type MessageType

	// RawType preserves the wire value of "type" when Type is TypeUnknown.
	RawType string

	Status  *StatusReport
	Command *CommandRequest
	Ack     *CommandAck
}

// StatusReport carries the device status fields published on the status
// and telemetry topics and returned in reply to a ping.
type StatusReport struct {
	Status              string `json:"status"`
	IP                  string `json:"ip"`
	Uptime              uint64 `json:"uptime"`
	FreeHeap            uint64 `json:"free_heap"`
	ActiveLED           string `json:"active_led"`
	TimeSinceLastUpdate int64  `json:"time_since_last_update"`
}

// CommandRequest is a command received on the commands topic. Args holds
// optional structured arguments and is passed through undecoded.
type CommandRequest struct {
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// CommandAck acknowledges a recognized command back to the sender.
type CommandAck struct {
	CmdReceived string `json:"cmd_received"`
	Success     bool   `json:"success"`
}
