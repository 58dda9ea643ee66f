// Package protocol implements the JSON envelope codec used on every
// application topic. Decoding is strict about structure but tolerant of
// unrecognized message types; encoding is total for well-formed values.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/wenerrp/device-agent/internal/models"
)

var (
	// ErrMalformedJSON is returned when the payload is not a JSON object.
	ErrMalformedJSON = errors.New("protocol: malformed JSON payload")

	// ErrMissingType is returned when the object has no string "type" field.
	ErrMissingType = errors.New("protocol: missing type field")

	// ErrMissingCommand is returned when a command envelope has no nested
	// payload object with a string "cmd" field.
	ErrMissingCommand = errors.New("protocol: command payload missing cmd")
)

// wireMessage is the superset of fields any inbound envelope may carry.
type wireMessage struct {
	Type                *string      `json:"type"`
	Status              string       `json:"status"`
	IP                  string       `json:"ip"`
	Uptime              uint64       `json:"uptime"`
	FreeHeap            uint64       `json:"free_heap"`
	ActiveLED           string       `json:"active_led"`
	TimeSinceLastUpdate int64        `json:"time_since_last_update"`
	Payload             *wirePayload `json:"payload"`
}

// wirePayload is the nested object used by command requests and acks.
type wirePayload struct {
	Cmd         string          `json:"cmd,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	CmdReceived string          `json:"cmd_received,omitempty"`
	Success     bool            `json:"success,omitempty"`
}

// wireStatus is the flat encoding of status, telemetry and ping replies.
type wireStatus struct {
	Type                models.MessageType `json:"type"`
	Status              string             `json:"status"`
	IP                  string             `json:"ip"`
	Uptime              uint64             `json:"uptime"`
	FreeHeap            uint64             `json:"free_heap"`
	ActiveLED           string             `json:"active_led"`
	TimeSinceLastUpdate int64              `json:"time_since_last_update"`
}

// wireWrapper is the generic envelope used when content nests under payload.
type wireWrapper struct {
	Type    models.MessageType `json:"type"`
	Payload any                `json:"payload,omitempty"`
}

// Decode parses payload into a typed Envelope. Unrecognized "type" values
// decode into TypeUnknown rather than failing, so the caller can choose to
// ignore them without treating the message as an error.
func Decode(payload []byte) (models.Envelope, error) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.Envelope{}, ErrMalformedJSON
	}
	if msg.Type == nil {
		return models.Envelope{}, ErrMissingType
	}

	switch models.MessageType(*msg.Type) {
	case models.TypePing:
		return models.Envelope{Type: models.TypePing}, nil

	case models.TypeCommand:
		if msg.Payload == nil || msg.Payload.Cmd == "" {
			return models.Envelope{}, ErrMissingCommand
		}
		return models.Envelope{
			Type:    models.TypeCommand,
			Command: &models.CommandRequest{Cmd: msg.Payload.Cmd, Args: msg.Payload.Args},
		}, nil

	case models.TypeStatus:
		return models.Envelope{Type: models.TypeStatus, Status: statusFromWire(&msg)}, nil

	case models.TypeTelemetry:
		return models.Envelope{Type: models.TypeTelemetry, Status: statusFromWire(&msg)}, nil

	case models.TypeResponse:
		if msg.Payload != nil && msg.Payload.CmdReceived != "" {
			return models.Envelope{
				Type: models.TypeResponse,
				Ack:  &models.CommandAck{CmdReceived: msg.Payload.CmdReceived, Success: msg.Payload.Success},
			}, nil
		}
		return models.Envelope{Type: models.TypeResponse, Status: statusFromWire(&msg)}, nil

	default:
		return models.Envelope{Type: models.TypeUnknown, RawType: *msg.Type}, nil
	}
}

func statusFromWire(msg *wireMessage) *models.StatusReport {
	return &models.StatusReport{
		Status:              msg.Status,
		IP:                  msg.IP,
		Uptime:              msg.Uptime,
		FreeHeap:            msg.FreeHeap,
		ActiveLED:           msg.ActiveLED,
		TimeSinceLastUpdate: msg.TimeSinceLastUpdate,
	}
}

// Encode renders env as its wire form. Status, telemetry and status-style
// responses are flat objects; command acks nest under a payload field.
// Marshalling these value types cannot fail, so Encode never returns an
// error.
func Encode(env models.Envelope) []byte {
	switch env.Type {
	case models.TypeStatus, models.TypeTelemetry, models.TypeResponse:
		if env.Ack != nil {
			data, _ := json.Marshal(wireWrapper{Type: env.Type, Payload: env.Ack})
			return data
		}
		if env.Status != nil {
			data, _ := json.Marshal(wireStatus{
				Type:                env.Type,
				Status:              env.Status.Status,
				IP:                  env.Status.IP,
				Uptime:              env.Status.Uptime,
				FreeHeap:            env.Status.FreeHeap,
				ActiveLED:           env.Status.ActiveLED,
				TimeSinceLastUpdate: env.Status.TimeSinceLastUpdate,
			})
			return data
		}
		data, _ := json.Marshal(wireWrapper{Type: env.Type})
		return data

	case models.TypeCommand:
		payload := wirePayload{}
		if env.Command != nil {
			payload.Cmd = env.Command.Cmd
			payload.Args = env.Command.Args
		}
		data, _ := json.Marshal(wireWrapper{Type: env.Type, Payload: payload})
		return data

	default:
		data, _ := json.Marshal(wireWrapper{Type: env.Type})
		return data
	}
}
