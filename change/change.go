// Package change implements the §3 CacheChange value type and the §4.2
// change pool: a preallocated set of cache-change slots with bounded
// payload buffers, grounded on original_source's CacheChange.h.
package change

import (
	"time"

	"github.com/katzenpost/rtps/types"
)

// SerializedPayload is a cache change's encoded sample, tagged with its
// CDR encapsulation scheme.
type SerializedPayload struct {
	Encapsulation types.Encapsulation
	Data          []byte
}

// CacheChange is one sample in flight, per spec.md §3. The sequence
// number is unique within WriterGUID; Payload.Data's length must not
// exceed the owning pool's payload_max_size.
type CacheChange struct {
	Kind            types.ChangeKind
	WriterGUID      types.GUID
	InstanceHandle  types.InstanceHandle
	SequenceNumber  types.SequenceNumber
	Payload         SerializedPayload
	SourceTimestamp time.Time
	read            bool

	inUse bool
}

// IsRead reports whether a reader-side listener has already consumed this
// change. Promoted to a plain field guarded by the owning endpoint's
// mutex (never accessed without it), per Design Note §9's fix for the
// original's unsynchronized isRead flag.
func (c *CacheChange) IsRead() bool { return c.read }

// SetRead marks the change as delivered to the listener. Caller must hold
// the owning endpoint's mutex.
func (c *CacheChange) SetRead(v bool) { c.read = v }

// MemoryPolicy selects how a Pool grows its payload buffers.
type MemoryPolicy uint8

const (
	// MemoryPolicyPreallocated never grows buffers beyond payload_max_size;
	// oversize payloads fail reservation.
	MemoryPolicyPreallocated MemoryPolicy = iota
	// MemoryPolicyPreallocatedWithRealloc replaces a slot's buffer with a
	// new one of the requested size when a reservation needs more than its
	// current capacity.
	MemoryPolicyPreallocatedWithRealloc
	// MemoryPolicyDynamic starts slots with no buffer and allocates one
	// sized exactly to the requested payload whenever the slot's current
	// buffer is too small; a reused slot keeps its buffer when it is
	// large enough.
	MemoryPolicyDynamic
)
