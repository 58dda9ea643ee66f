package router

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenerrp/device-agent/internal/models"
	"github.com/wenerrp/device-agent/internal/protocol"
)

func newTestReporter() *StatusReporter {
	sr := NewStatusReporter(zerolog.Nop())
	sr.uptime = func() (uint64, error) { return 3600, nil }
	sr.freeMemory = func() (uint64, error) { return 65536, nil }
	sr.now = func() time.Time { return time.Unix(1000, 0) }
	return sr
}

// TestRouter_PingProducesOnlineStatus runs a raw ping payload through the
// codec and the router, matching what the session does on data receipt.
func TestRouter_PingProducesOnlineStatus(t *testing.T) {
	reporter := newTestReporter()
	reporter.SetDeviceIP("192.168.1.20")
	reporter.SetActiveLED("led_b")
	r := New(reporter, nil, zerolog.Nop())

	env, err := protocol.Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)

	reply, ok := r.Route(env)
	require.True(t, ok)
	assert.Equal(t, models.TypeResponse, reply.Type)
	require.NotNil(t, reply.Status)
	assert.Equal(t, "online", reply.Status.Status)
	assert.Equal(t, "192.168.1.20", reply.Status.IP)
	assert.Equal(t, uint64(3600), reply.Status.Uptime)
	assert.Equal(t, uint64(65536), reply.Status.FreeHeap)
	assert.Equal(t, "led_b", reply.Status.ActiveLED)
}

func TestRouter_CommandInvokesActuator(t *testing.T) {
	reporter := newTestReporter()
	var codes []byte
	r := New(reporter, func(code byte) { codes = append(codes, code) }, zerolog.Nop())

	env, err := protocol.Decode([]byte(`{"type":"command","payload":{"cmd":"led_a"}}`))
	require.NoError(t, err)

	reply, ok := r.Route(env)
	require.True(t, ok)
	assert.Equal(t, []byte{'A'}, codes)
	require.NotNil(t, reply.Ack)
	assert.Equal(t, "led_a", reply.Ack.CmdReceived)
	assert.True(t, reply.Ack.Success)

	// The acknowledgment encodes with the content nested under payload.
	assert.JSONEq(t, `{"type":"response","payload":{"cmd_received":"led_a","success":true}}`,
		string(protocol.Encode(reply)))
}

func TestRouter_CommandCodes(t *testing.T) {
	reporter := newTestReporter()
	var last byte
	r := New(reporter, func(code byte) { last = code }, zerolog.Nop())

	for cmd, want := range map[string]byte{"led_a": 'A', "led_b": 'B', "led_c": 'C'} {
		_, ok := r.Route(models.Envelope{Type: models.TypeCommand, Command: &models.CommandRequest{Cmd: cmd}})
		require.True(t, ok, cmd)
		assert.Equal(t, want, last, cmd)
	}
}

// TestRouter_UnknownCommandDropped verifies the silent-drop contract: no
// actuator call and no reply for unrecognized command names.
func TestRouter_UnknownCommandDropped(t *testing.T) {
	reporter := newTestReporter()
	called := false
	r := New(reporter, func(byte) { called = true }, zerolog.Nop())

	_, ok := r.Route(models.Envelope{Type: models.TypeCommand, Command: &models.CommandRequest{Cmd: "reboot"}})
	assert.False(t, ok)
	assert.False(t, called)
	assert.Empty(t, reporter.Build("online").ActiveLED)
}

func TestRouter_NonCommandEnvelopesDropped(t *testing.T) {
	r := New(newTestReporter(), nil, zerolog.Nop())

	for _, env := range []models.Envelope{
		{Type: models.TypeStatus, Status: &models.StatusReport{}},
		{Type: models.TypeTelemetry, Status: &models.StatusReport{}},
		{Type: models.TypeResponse, Ack: &models.CommandAck{}},
		{Type: models.TypeUnknown, RawType: "firmware_update"},
	} {
		_, ok := r.Route(env)
		assert.False(t, ok, string(env.Type))
	}
}

func TestRouter_CommandRecordsActiveLED(t *testing.T) {
	reporter := newTestReporter()
	r := New(reporter, func(byte) {}, zerolog.Nop())

	r.Route(models.Envelope{Type: models.TypeCommand, Command: &models.CommandRequest{Cmd: "led_c"}})
	assert.Equal(t, "led_c", reporter.Build("online").ActiveLED)
}

// TestStatusReporter_TimeSinceLastUpdate checks the report delta: zero on
// the first build, then the wall-clock gap between builds.
func TestStatusReporter_TimeSinceLastUpdate(t *testing.T) {
	sr := newTestReporter()
	current := time.Unix(1000, 0)
	sr.now = func() time.Time { return current }

	first := sr.Build("online")
	assert.Equal(t, int64(0), first.TimeSinceLastUpdate)

	current = current.Add(42 * time.Second)
	second := sr.Build("online")
	assert.Equal(t, int64(42), second.TimeSinceLastUpdate)

	current = current.Add(5 * time.Second)
	third := sr.Build("offline")
	assert.Equal(t, int64(5), third.TimeSinceLastUpdate)
	assert.Equal(t, "offline", third.Status)
}
