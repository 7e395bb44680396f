// Package history implements the §3/§4.2 HistoryCache: an ordered set of
// cache changes indexed by (writer GUID, sequence number) and by instance
// handle, with resource-limit and history-kind policy. Ordering is kept in
// an AVL tree, the same "ordered-by-key, forward-iterate" shape the
// teacher's decoy traffic source uses to order outstanding SURBs by ETA
// (server/internal/decoy/decoy.go's surbETAs).
package history

import (
	"errors"
	"sync"

	"gitlab.com/yawning/avl.git"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/types"
)

// ErrResourceLimit is returned by Add when a resource limit (max_samples,
// max_instances, max_samples_per_instance) would be violated and the
// history kind does not call for silent eviction.
var ErrResourceLimit = errors.New("history: resource limit exceeded")

// ErrDuplicateSequenceNumber is returned by Add when an entry already
// exists for the change's (WriterGUID, SequenceNumber).
var ErrDuplicateSequenceNumber = errors.New("history: duplicate (writer, sequence number)")

// ResourceLimits bounds a HistoryCache's size, per spec.md §3. A value of
// 0 means "unbounded" for that field.
type ResourceLimits struct {
	MaxSamples           int
	MaxInstances         int
	MaxSamplesPerInstance int
}

// Policy bundles a HistoryCache's history kind/depth and resource limits.
type Policy struct {
	Kind    types.HistoryKind
	Depth   int // meaningful only when Kind == HistoryKeepLast
	Limits  ResourceLimits
}

type seqKey struct {
	writer types.GUID
	seq    types.SequenceNumber
}

func compareSeqKeys(a, b interface{}) int {
	ka, kb := a.(seqKey), b.(seqKey)
	switch {
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	}
	// Tie-break by writer GUID bytes so changes from distinct writers with
	// coincidentally equal sequence numbers still order deterministically.
	ba, bb := ka.writer.Bytes(), kb.writer.Bytes()
	for i := range ba {
		if ba[i] != bb[i] {
			if ba[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Cache is the HistoryCache of §3/§4.2.
type Cache struct {
	mu sync.Mutex

	policy Policy

	ordered *avl.Tree
	nodes   map[seqKey]*avl.Node
	byWriterSeq map[seqKey]*change.CacheChange

	instances map[types.InstanceHandle][]*change.CacheChange

	minSeq, maxSeq types.SequenceNumber
	haveMinMax     bool
}

// New constructs an empty HistoryCache under the given policy.
func New(policy Policy) *Cache {
	return &Cache{
		policy:      policy,
		ordered:     avl.New(compareSeqKeys),
		nodes:       make(map[seqKey]*avl.Node),
		byWriterSeq: make(map[seqKey]*change.CacheChange),
		instances:   make(map[types.InstanceHandle][]*change.CacheChange),
	}
}

// Add inserts c into the cache, applying resource limits and, under
// KEEP_LAST with a full instance, evicting the oldest relevant change for
// that instance first. Returns the evicted change, if any, so the caller
// can release its pool slot.
func (h *Cache) Add(c *change.CacheChange) (evicted *change.CacheChange, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := seqKey{writer: c.WriterGUID, seq: c.SequenceNumber}
	if _, exists := h.byWriterSeq[key]; exists {
		return nil, ErrDuplicateSequenceNumber
	}

	perInstance := h.instances[c.InstanceHandle]

	switch h.policy.Kind {
	case types.HistoryKeepLast:
		depth := h.policy.Depth
		if depth <= 0 {
			depth = 1
		}
		if len(perInstance) >= depth {
			evicted = perInstance[0]
			h.removeLocked(evicted)
			perInstance = h.instances[c.InstanceHandle]
		}
	case types.HistoryKeepAll:
		if h.policy.Limits.MaxSamplesPerInstance > 0 && len(perInstance) >= h.policy.Limits.MaxSamplesPerInstance {
			return nil, ErrResourceLimit
		}
	}

	if h.policy.Limits.MaxSamples > 0 && len(h.byWriterSeq) >= h.policy.Limits.MaxSamples {
		return evicted, ErrResourceLimit
	}
	if h.policy.Limits.MaxInstances > 0 {
		if _, ok := h.instances[c.InstanceHandle]; !ok && len(h.instances) >= h.policy.Limits.MaxInstances {
			return evicted, ErrResourceLimit
		}
	}

	node := h.ordered.Insert(key)
	h.nodes[key] = node
	h.byWriterSeq[key] = c
	h.instances[c.InstanceHandle] = append(h.instances[c.InstanceHandle], c)
	h.updateMinMaxOnInsert(c.SequenceNumber)

	return evicted, nil
}

// Remove deletes c from the cache. Safe to call even if c is not present.
func (h *Cache) Remove(c *change.CacheChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Cache) removeLocked(c *change.CacheChange) {
	key := seqKey{writer: c.WriterGUID, seq: c.SequenceNumber}
	if _, ok := h.byWriterSeq[key]; !ok {
		return
	}
	delete(h.byWriterSeq, key)
	if node, ok := h.nodes[key]; ok {
		h.ordered.Remove(node)
		delete(h.nodes, key)
	}

	list := h.instances[c.InstanceHandle]
	for i, v := range list {
		if v == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.instances, c.InstanceHandle)
	} else {
		h.instances[c.InstanceHandle] = list
	}

	h.recomputeMinMaxLocked()
}

// updateMinMaxOnInsert is O(1): the first entry sets both extremes, and
// after that a new sequence number below the min or above the max simply
// replaces that extreme.
func (h *Cache) updateMinMaxOnInsert(seq types.SequenceNumber) {
	if !h.haveMinMax {
		h.minSeq, h.maxSeq = seq, seq
		h.haveMinMax = true
		return
	}
	if seq < h.minSeq {
		h.minSeq = seq
	}
	if seq > h.maxSeq {
		h.maxSeq = seq
	}
}

// recomputeMinMaxLocked is the removal-path fallback: removal can retire
// the current min or max, so the extremes are rederived by walking the
// ordered index from its first node to its last, which is O(n).
func (h *Cache) recomputeMinMaxLocked() {
	if len(h.byWriterSeq) == 0 {
		h.haveMinMax = false
		return
	}
	it := h.ordered.Iterator(avl.Forward)
	n := it.First()
	h.minSeq = n.Value.(seqKey).seq
	h.maxSeq = h.minSeq
	for ; n != nil; n = it.Next() {
		h.maxSeq = n.Value.(seqKey).seq
	}
	h.haveMinMax = true
}

// MinMax returns the cached minimum/maximum sequence numbers in the cache,
// for O(1) access by the stateful writer/reader, per spec.md §3(d). ok is
// false when the cache is empty.
func (h *Cache) MinMax() (min, max types.SequenceNumber, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.minSeq, h.maxSeq, h.haveMinMax
}

// Len reports the number of changes currently cached.
func (h *Cache) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byWriterSeq)
}

// Get looks up the change at (writerGUID, seq).
func (h *Cache) Get(writerGUID types.GUID, seq types.SequenceNumber) (*change.CacheChange, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byWriterSeq[seqKey{writer: writerGUID, seq: seq}]
	return c, ok
}

// Changes returns every cached change in ascending sequence-number order.
func (h *Cache) Changes() []*change.CacheChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*change.CacheChange, 0, len(h.byWriterSeq))
	it := h.ordered.Iterator(avl.Forward)
	for n := it.First(); n != nil; n = it.Next() {
		out = append(out, h.byWriterSeq[n.Value.(seqKey)])
	}
	return out
}

// InstanceChanges returns the changes for one instance, in insertion
// (hence sequence) order; O(k) in the instance's depth.
func (h *Cache) InstanceChanges(handle types.InstanceHandle) []*change.CacheChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.instances[handle]
	out := make([]*change.CacheChange, len(list))
	copy(out, list)
	return out
}
