package cmd

import (
	"net"
	"testing"
)

// requireLoopbackListener skips tests that bind ports when the sandbox
// has no IPv4 loopback.
func requireLoopbackListener(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	_ = ln.Close()
}
