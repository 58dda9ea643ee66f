package identity

import (
	"net"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var clientIDPattern = regexp.MustCompile(`^esp32_[0-9a-f]{12,}$`)

func TestClientID_Format(t *testing.T) {
	id := ClientID("esp32")
	assert.Regexp(t, clientIDPattern, id)
}

// TestClientID_StableFromMAC verifies the identity is derived from the
// interface table and does not change between calls.
func TestClientID_StableFromMAC(t *testing.T) {
	restore := netInterfaces
	defer func() { netInterfaces = restore }()

	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	netInterfaces = func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagLoopback},
			{Name: "eth0", HardwareAddr: mac},
		}, nil
	}

	assert.Equal(t, "esp32_aabbccddeeff", ClientID("esp32"))
	assert.Equal(t, ClientID("esp32"), ClientID("esp32"))
}

// TestClientID_FallbackWithoutMAC verifies the UUID fallback still yields
// the fixed textual form.
func TestClientID_FallbackWithoutMAC(t *testing.T) {
	restore := netInterfaces
	defer func() { netInterfaces = restore }()

	netInterfaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagLoopback}}, nil
	}

	id := ClientID("esp32")
	assert.Regexp(t, clientIDPattern, id)
	assert.NotEqual(t, ClientID("esp32"), id, "fallback identities are random")
}
