// Package identity derives the stable broker client identity from the
// device hardware.
package identity

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// netInterfaces is replaceable in tests.
var netInterfaces = net.Interfaces

// ClientID returns the broker client identity: the prefix followed by the
// first hardware MAC address as lowercase hex, e.g. "esp32_aabbccddeeff".
// The value is stable across restarts for the same hardware. When no
// interface exposes a MAC address, a random UUID-derived suffix is used
// instead; such an identity is unique but not stable.
func ClientID(prefix string) string {
	ifaces, err := netInterfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 6 {
				continue
			}
			return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(iface.HardwareAddr))
		}
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s", prefix, suffix)
}
