package change

import (
	"errors"
	"sync"
)

// ErrPoolExhausted is returned by Reserve when the pool cannot grow any
// further to satisfy the request.
var ErrPoolExhausted = errors.New("change: pool exhausted")

// ErrPayloadTooLarge is returned by Reserve under MemoryPolicyPreallocated
// when the requested payload would exceed the slot's fixed capacity.
var ErrPayloadTooLarge = errors.New("change: payload exceeds preallocated slot capacity")

// slot wraps a CacheChange with its backing payload buffer, so the buffer
// can be reused across Release/Reserve cycles instead of reallocated.
type slot struct {
	change *CacheChange
	buf    []byte
}

// Pool is the change pool of §4.2: a preallocated set of up to Max slots,
// each with a payload buffer of up to PayloadMaxSize bytes, grown lazily
// from Initial up to Max. The owning endpoint's mutex must already be held
// by callers; Pool's own mutex nests under it per the §5 lock order.
type Pool struct {
	mu sync.Mutex

	policy         MemoryPolicy
	payloadMaxSize int
	max            int

	free []*slot
	used map[*CacheChange]*slot
}

// NewPool preallocates `initial` slots (up to `max`) of `payloadMaxSize`
// bytes each, under the given memory policy.
func NewPool(policy MemoryPolicy, initial, max, payloadMaxSize int) *Pool {
	p := &Pool{
		policy:         policy,
		payloadMaxSize: payloadMaxSize,
		max:            max,
		used:           make(map[*CacheChange]*slot),
	}
	for i := 0; i < initial; i++ {
		p.free = append(p.free, p.newSlot())
	}
	return p
}

func (p *Pool) newSlot() *slot {
	cap := p.payloadMaxSize
	if p.policy == MemoryPolicyDynamic {
		cap = 0
	}
	return &slot{change: &CacheChange{}, buf: make([]byte, 0, cap)}
}

// Len reports the number of slots currently reserved.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}

// Reserve allocates a slot sized to hold payloadLen bytes and returns its
// CacheChange, with Payload.Data sliced to [0:payloadLen) of the slot's
// buffer ready to be filled in by the caller.
func (p *Pool) Reserve(payloadLen int) (*CacheChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.policy == MemoryPolicyPreallocated && payloadLen > p.payloadMaxSize {
		return nil, ErrPayloadTooLarge
	}

	var s *slot
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free = p.free[:n-1]
	} else if len(p.used) < p.max || p.max <= 0 {
		s = p.newSlot()
	} else {
		return nil, ErrPoolExhausted
	}

	switch p.policy {
	case MemoryPolicyPreallocatedWithRealloc:
		if cap(s.buf) < payloadLen {
			s.buf = make([]byte, payloadLen)
		}
	case MemoryPolicyDynamic:
		if cap(s.buf) < payloadLen {
			s.buf = make([]byte, payloadLen)
		}
	}
	s.buf = s.buf[:payloadLen]

	*s.change = CacheChange{}
	s.change.inUse = true
	s.change.Payload.Data = s.buf

	p.used[s.change] = s
	return s.change, nil
}

// Release returns a reserved CacheChange's slot to the free list.
func (p *Pool) Release(c *CacheChange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.used[c]
	if !ok {
		return
	}
	delete(p.used, c)
	s.change.inUse = false
	p.free = append(p.free, s)
}
