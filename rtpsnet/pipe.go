package rtpsnet

import (
	"math/rand"
	"sync"
	"time"

	"github.com/katzenpost/rtps/types"
)

// Pipe is an in-memory Transport for tests: every datagram sent to a
// Locator is delivered to whichever Pipe is registered at that Locator in
// the shared Network, optionally dropped or reordered. This generalizes
// the ad hoc recordingTransport test doubles used across writer/reader/
// receiver/liveliness into one reusable fake, so scenario tests (spec.md
// §8) can exercise real loss/reorder rather than always-delivers stubs.
type Pipe struct {
	net  *Network
	loc  types.Locator
	rand *rand.Rand

	mu      sync.Mutex
	handler func(data []byte)
}

// Network is a shared address space of Pipes, keyed by Locator.
type Network struct {
	mu    sync.Mutex
	pipes map[types.Locator]*Pipe

	// LossPercent drops a sent datagram with this probability, 0-100.
	LossPercent int
	// ReorderDelay, when non-zero, delivers a datagram after a random
	// delay in [0, ReorderDelay) instead of immediately, so concurrent
	// sends can arrive out of order.
	ReorderDelay time.Duration
}

// NewNetwork constructs an empty, lossless, non-reordering Network.
func NewNetwork() *Network {
	return &Network{pipes: make(map[types.Locator]*Pipe)}
}

// NewPipe registers and returns a new Pipe bound to loc within n.
func (n *Network) NewPipe(loc types.Locator) *Pipe {
	p := &Pipe{
		net:  n,
		loc:  loc,
		rand: rand.New(rand.NewSource(int64(loc.Port) + 1)),
	}
	n.mu.Lock()
	n.pipes[loc] = p
	n.mu.Unlock()
	return p
}

// SetHandler installs the callback invoked for every datagram delivered
// to this pipe.
func (p *Pipe) SetHandler(handler func(data []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// SendTo implements writer.Transport/reader.Transport/participant.Transport:
// it looks up the Pipe registered at loc in the shared Network and, unless
// the Network's loss roll drops the datagram, delivers a copy to that
// pipe's handler (after ReorderDelay jitter, if configured).
func (p *Pipe) SendTo(loc types.Locator, data []byte) error {
	p.net.mu.Lock()
	dst, ok := p.net.pipes[loc]
	loss := p.net.LossPercent
	delay := p.net.ReorderDelay
	p.net.mu.Unlock()
	if !ok {
		return nil
	}
	if loss > 0 && p.rand.Intn(100) < loss {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	deliver := func() {
		dst.mu.Lock()
		handler := dst.handler
		dst.mu.Unlock()
		if handler != nil {
			handler(cp)
		}
	}
	if delay > 0 {
		go func() {
			time.Sleep(time.Duration(p.rand.Int63n(int64(delay))))
			deliver()
		}()
		return nil
	}
	deliver()
	return nil
}

// Locator returns the address this pipe is registered at.
func (p *Pipe) Locator() types.Locator { return p.loc }
