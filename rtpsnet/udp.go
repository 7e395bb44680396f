// Package rtpsnet provides the Transport collaborator RTPS endpoints send
// through: a real UDP socket implementation and, for tests, an in-memory
// lossy/reorderable pipe.
package rtpsnet

import (
	"fmt"
	"net"
	"sync"

	"github.com/katzenpost/rtps/types"
)

// UDPTransport is a Transport backed by a single UDP socket shared by
// every local endpoint, matching RTPS's one-socket-per-participant
// convention (spec.md §6): outgoing datagrams are addressed per-call by
// the caller-supplied Locator, and incoming datagrams are dispatched to
// a single registered handler.
type UDPTransport struct {
	conn *net.UDPConn

	mu      sync.Mutex
	handler func(data []byte)
	closed  bool
}

// NewUDPTransport opens a UDP socket bound to port (0 picks an ephemeral
// port).
func NewUDPTransport(port int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("rtpsnet: listen udp: %w", err)
	}
	return &UDPTransport{conn: conn}, nil
}

// LocalPort returns the socket's bound port, useful after binding to 0.
func (t *UDPTransport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// SendTo implements writer.Transport/reader.Transport/participant.Transport.
func (t *UDPTransport) SendTo(loc types.Locator, data []byte) error {
	addr, err := loc.UDPAddr()
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(data, addr)
	return err
}

// SetHandler installs the callback invoked for every datagram received
// after Listen is called. Only one handler may be registered at a time;
// a later call replaces the prior one.
func (t *UDPTransport) SetHandler(handler func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Listen reads datagrams off the socket until Close is called, dispatching
// each to the registered handler. It blocks, so callers run it in its own
// goroutine.
func (t *UDPTransport) Listen() error {
	buf := make([]byte, 65536)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler == nil {
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		handler(cp)
	}
}

// Close shuts down the socket, unblocking a concurrent Listen.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
