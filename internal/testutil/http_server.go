package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// listenLoopback4 binds an ephemeral IPv4 loopback port. The bridge dials
// "localhost", which some sandboxes resolve to an unbound ::1 first.
func listenLoopback4() (net.Listener, error) {
	return net.Listen("tcp4", "127.0.0.1:0")
}

// NewHTTPServerT starts handler on 127.0.0.1, skipping the test when no
// IPv4 listener can be opened. The server is closed when the test ends.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := listenLoopback4()
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	srv := httptest.NewUnstartedServer(handler)
	_ = srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
