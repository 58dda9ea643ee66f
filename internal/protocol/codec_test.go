package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenerrp/device-agent/internal/models"
)

// TestDecode_MalformedJSON verifies that junk input fails cleanly.
func TestDecode_MalformedJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedJSON)

	_, err = Decode([]byte(""))
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

// TestDecode_MissingType verifies that objects without a string type fail.
func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"status":"online"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	// A non-string type is a structural failure, not a missing field.
	_, err = Decode([]byte(`{"type":42}`))
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestDecode_Ping(t *testing.T) {
	env, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, models.TypePing, env.Type)
	assert.Nil(t, env.Command)
	assert.Nil(t, env.Status)
}

func TestDecode_Command(t *testing.T) {
	env, err := Decode([]byte(`{"type":"command","payload":{"cmd":"led_a"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.TypeCommand, env.Type)
	require.NotNil(t, env.Command)
	assert.Equal(t, "led_a", env.Command.Cmd)
}

func TestDecode_CommandWithArgs(t *testing.T) {
	env, err := Decode([]byte(`{"type":"command","payload":{"cmd":"led_b","args":{"brightness":80}}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Command)
	assert.Equal(t, "led_b", env.Command.Cmd)
	assert.JSONEq(t, `{"brightness":80}`, string(env.Command.Args))
}

func TestDecode_CommandMissingCmd(t *testing.T) {
	_, err := Decode([]byte(`{"type":"command"}`))
	assert.ErrorIs(t, err, ErrMissingCommand)

	_, err = Decode([]byte(`{"type":"command","payload":{}}`))
	assert.ErrorIs(t, err, ErrMissingCommand)
}

// TestDecode_UnknownType verifies unrecognized types decode into the
// unknown marker instead of failing, so callers can ignore them silently.
func TestDecode_UnknownType(t *testing.T) {
	env, err := Decode([]byte(`{"type":"firmware_update"}`))
	require.NoError(t, err)
	assert.Equal(t, models.TypeUnknown, env.Type)
	assert.Equal(t, "firmware_update", env.RawType)
}

func TestDecode_Status(t *testing.T) {
	env, err := Decode([]byte(`{"type":"status","status":"online","ip":"10.0.0.7","uptime":321,"free_heap":102400,"active_led":"led_c","time_since_last_update":12}`))
	require.NoError(t, err)
	assert.Equal(t, models.TypeStatus, env.Type)
	require.NotNil(t, env.Status)
	assert.Equal(t, "online", env.Status.Status)
	assert.Equal(t, "10.0.0.7", env.Status.IP)
	assert.Equal(t, uint64(321), env.Status.Uptime)
	assert.Equal(t, uint64(102400), env.Status.FreeHeap)
	assert.Equal(t, "led_c", env.Status.ActiveLED)
	assert.Equal(t, int64(12), env.Status.TimeSinceLastUpdate)
}

func TestDecode_ResponseAck(t *testing.T) {
	env, err := Decode([]byte(`{"type":"response","payload":{"cmd_received":"led_a","success":true}}`))
	require.NoError(t, err)
	assert.Equal(t, models.TypeResponse, env.Type)
	require.NotNil(t, env.Ack)
	assert.Equal(t, "led_a", env.Ack.CmdReceived)
	assert.True(t, env.Ack.Success)
}

// TestEncode_StatusIsFlat verifies status reports encode as flat objects
// with the exact wire keys.
func TestEncode_StatusIsFlat(t *testing.T) {
	data := Encode(models.Envelope{
		Type: models.TypeStatus,
		Status: &models.StatusReport{
			Status:              "online",
			IP:                  "192.168.1.20",
			Uptime:              42,
			FreeHeap:            65536,
			ActiveLED:           "led_a",
			TimeSinceLastUpdate: 9,
		},
	})

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "status", fields["type"])
	assert.Equal(t, "online", fields["status"])
	assert.Equal(t, "192.168.1.20", fields["ip"])
	assert.Equal(t, float64(42), fields["uptime"])
	assert.Equal(t, float64(65536), fields["free_heap"])
	assert.Equal(t, "led_a", fields["active_led"])
	assert.Equal(t, float64(9), fields["time_since_last_update"])
	assert.NotContains(t, fields, "payload")
}

// TestEncode_AckNestsPayload verifies command acks nest under "payload".
func TestEncode_AckNestsPayload(t *testing.T) {
	data := Encode(models.Envelope{
		Type: models.TypeResponse,
		Ack:  &models.CommandAck{CmdReceived: "led_a", Success: true},
	})
	assert.JSONEq(t, `{"type":"response","payload":{"cmd_received":"led_a","success":true}}`, string(data))
}

func TestEncode_Ping(t *testing.T) {
	assert.JSONEq(t, `{"type":"ping"}`, string(Encode(models.Envelope{Type: models.TypePing})))
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	in := models.Envelope{
		Type:   models.TypeTelemetry,
		Status: &models.StatusReport{Status: "online", IP: "10.1.2.3", Uptime: 77, FreeHeap: 2048},
	}

	out, err := Decode(Encode(in))
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	require.NotNil(t, out.Status)
	assert.Equal(t, *in.Status, *out.Status)
}
