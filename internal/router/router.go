// Package router maps decoded inbound envelopes to device actions and
// builds the outbound replies. The physical actuation itself happens
// behind the injected callback; this package only translates names to
// actuator codes.
package router

import (
	"github.com/rs/zerolog"

	"github.com/wenerrp/device-agent/internal/constants"
	"github.com/wenerrp/device-agent/internal/models"
)

// ActuatorFunc receives the single-character code for a recognized
// command. It runs on the event-handling goroutine and must not block.
type ActuatorFunc func(code byte)

// commandCodes is the fixed mapping of wire command names to actuator
// codes.
var commandCodes = map[string]byte{
	"led_a": 'A',
	"led_b": 'B',
	"led_c": 'C',
}

// Router dispatches decoded envelopes from the commands topic.
type Router struct {
	reporter *StatusReporter
	actuator ActuatorFunc
	logger   zerolog.Logger
}

// New creates a Router. actuator may be nil, in which case recognized
// commands are still acknowledged but trigger no action.
func New(reporter *StatusReporter, actuator ActuatorFunc, logger zerolog.Logger) *Router {
	return &Router{
		reporter: reporter,
		actuator: actuator,
		logger:   logger,
	}
}

// Route returns the reply envelope for env and whether a reply should be
// published. Pings always produce an online status reply. Recognized
// commands invoke the actuator and produce an ack. Everything else is
// dropped without a reply; unknown command names deliberately stay
// silent on the wire.
func (r *Router) Route(env models.Envelope) (models.Envelope, bool) {
	switch env.Type {
	case models.TypePing:
		report := r.reporter.Build(constants.StatusOnline)
		r.logger.Debug().Msg("Ping received, replying with status")
		return models.Envelope{Type: models.TypeResponse, Status: &report}, true

	case models.TypeCommand:
		code, ok := commandCodes[env.Command.Cmd]
		if !ok {
			r.logger.Warn().Str("cmd", env.Command.Cmd).Msg("Ignoring unrecognized command")
			return models.Envelope{}, false
		}

		if r.actuator != nil {
			r.actuator(code)
		}
		r.reporter.SetActiveLED(env.Command.Cmd)
		r.logger.Info().Str("cmd", env.Command.Cmd).Msg("Command dispatched to actuator")

		return models.Envelope{
			Type: models.TypeResponse,
			Ack:  &models.CommandAck{CmdReceived: env.Command.Cmd, Success: true},
		}, true

	default:
		r.logger.Debug().Str("type", string(env.Type)).Str("raw_type", env.RawType).
			Msg("Ignoring envelope with no command semantics")
		return models.Envelope{}, false
	}
}
