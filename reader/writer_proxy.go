// Package reader implements the §4.4 read side: WriterProxy (C5) and
// StatefulReader (C7). Method surface grounded on
// original_source/include/eprosimartps/reader/WriterProxy.h
// (available_changes_max/min, missing_changes_update,
// lost_changes_update, received_change_set, irrelevant_change_set,
// missing_changes, assertLiveliness/checkLiveliness).
package reader

import (
	"sync"
	"time"

	"github.com/katzenpost/rtps/types"
)

// ChangeFromWriterStatus is a WriterProxy's per-sequence-number
// bookkeeping state, per spec.md §4.4.
type ChangeFromWriterStatus uint8

const (
	StatusUnknown ChangeFromWriterStatus = iota
	StatusMissing
	StatusReceived
	StatusLost
)

// ChangeFromWriter tracks one sequence number's state as seen by this
// reader, independent of whether the actual sample has arrived.
type ChangeFromWriter struct {
	SequenceNumber types.SequenceNumber
	Status         ChangeFromWriterStatus
	IsRelevant     bool
}

// WriterProxyParams are the match-time attributes of a remote writer.
type WriterProxyParams struct {
	RemoteWriterGUID  types.GUID
	UnicastLocators   []types.Locator
	MulticastLocators []types.Locator
	LeaseDuration     time.Duration
	Liveliness        types.LivelinessKind
}

// WriterProxy is the reader-side bookkeeping for one matched writer.
type WriterProxy struct {
	mu sync.Mutex

	params WriterProxyParams

	// changesFromWriter is ordered ascending by sequence number.
	changesFromWriter []*ChangeFromWriter

	maxAvailable types.SequenceNumber
	haveMax      bool
	minAvailable types.SequenceNumber
	haveMin      bool

	lastHeartbeatCount uint32
	acknackCount       uint32
	heartbeatFinalFlag bool

	livelinessAsserted bool

	// lastDelivered is the highest sequence number TakeDeliverable has
	// already handed back; 0 means none yet.
	lastDelivered types.SequenceNumber
}

// NewWriterProxy constructs a WriterProxy for a newly matched writer.
func NewWriterProxy(params WriterProxyParams) *WriterProxy {
	return &WriterProxy{params: params}
}

// Params returns the proxy's match-time parameters.
func (wp *WriterProxy) Params() WriterProxyParams {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.params
}

func (wp *WriterProxy) findLocked(seq types.SequenceNumber) *ChangeFromWriter {
	for _, cfw := range wp.changesFromWriter {
		if cfw.SequenceNumber == seq {
			return cfw
		}
	}
	return nil
}

// addChangesFromWriterUpToLocked appends UNKNOWN entries for every
// sequence number in (lastKnown, seq], per
// WriterProxy::add_changes_from_writer_up_to: "if you have 1,2,3 and
// receive 6, you need to add 4,5 and 6 as unknown".
func (wp *WriterProxy) addChangesFromWriterUpToLocked(seq types.SequenceNumber) {
	var from types.SequenceNumber = 1
	if n := len(wp.changesFromWriter); n > 0 {
		from = wp.changesFromWriter[n-1].SequenceNumber + 1
	}
	for s := from; s <= seq; s++ {
		wp.changesFromWriter = append(wp.changesFromWriter, &ChangeFromWriter{SequenceNumber: s, Status: StatusUnknown, IsRelevant: true})
	}
}

// ReceivedChangeSet marks seq RECEIVED, extending the tracked range if
// needed, per WriterProxy::received_change_set.
func (wp *WriterProxy) ReceivedChangeSet(seq types.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.findLocked(seq) == nil {
		wp.addChangesFromWriterUpToLocked(seq)
	}
	if cfw := wp.findLocked(seq); cfw != nil {
		cfw.Status = StatusReceived
	}
	if !wp.haveMax || seq > wp.maxAvailable {
		wp.maxAvailable = seq
		wp.haveMax = true
	}
}

// IrrelevantChangeSet marks seq RECEIVED but not relevant to the
// listener (e.g. a GAP entry), per WriterProxy::irrelevant_change_set.
func (wp *WriterProxy) IrrelevantChangeSet(seq types.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.findLocked(seq) == nil {
		wp.addChangesFromWriterUpToLocked(seq)
	}
	if cfw := wp.findLocked(seq); cfw != nil {
		cfw.Status = StatusReceived
		cfw.IsRelevant = false
	}
}

// MissingChangesUpdate marks every UNKNOWN entry with sequence number <=
// seq as MISSING, per WriterProxy::missing_changes_update.
func (wp *WriterProxy) MissingChangesUpdate(seq types.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.findLocked(seq) == nil {
		wp.addChangesFromWriterUpToLocked(seq)
	}
	for _, cfw := range wp.changesFromWriter {
		if cfw.SequenceNumber <= seq && cfw.Status == StatusUnknown {
			cfw.Status = StatusMissing
		}
	}
}

// LostChangesUpdate marks every UNKNOWN or MISSING entry with sequence
// number < seq as LOST, per WriterProxy::lost_changes_update.
func (wp *WriterProxy) LostChangesUpdate(seq types.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for _, cfw := range wp.changesFromWriter {
		if cfw.SequenceNumber < seq && (cfw.Status == StatusUnknown || cfw.Status == StatusMissing) {
			cfw.Status = StatusLost
		}
	}
	if !wp.haveMin || seq > wp.minAvailable {
		wp.minAvailable = seq
		wp.haveMin = true
	}
}

// AvailableChangesMax returns the largest sequence number such that every
// lower sequence number is RECEIVED or LOST: the contiguous advancement
// watermark, per WriterProxy::available_changes_max and universal
// invariant 2 (non-decreasing). ok is false until the first entry is
// known.
func (wp *WriterProxy) AvailableChangesMax() (types.SequenceNumber, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.availableChangesMaxLocked()
}

func (wp *WriterProxy) availableChangesMaxLocked() (types.SequenceNumber, bool) {
	var max types.SequenceNumber
	ok := false
	for _, cfw := range wp.changesFromWriter {
		if cfw.Status != StatusReceived && cfw.Status != StatusLost {
			break
		}
		max = cfw.SequenceNumber
		ok = true
	}
	return max, ok
}

// TakeDeliverable returns, in ascending order, the sequence numbers newly
// eligible for delivery to the listener now that the contiguous watermark
// (AvailableChangesMax) has advanced past wp.lastDelivered: every
// RECEIVED-and-relevant entry up to the new watermark. LOST and
// RECEIVED-but-irrelevant entries are skipped — and, being at or below the
// watermark, are treated as delivered — without ever reaching the
// listener. Returns nil if the watermark hasn't moved.
func (wp *WriterProxy) TakeDeliverable() []types.SequenceNumber {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	watermark, ok := wp.availableChangesMaxLocked()
	if !ok || watermark <= wp.lastDelivered {
		return nil
	}
	var out []types.SequenceNumber
	for _, cfw := range wp.changesFromWriter {
		if cfw.SequenceNumber <= wp.lastDelivered || cfw.SequenceNumber > watermark {
			continue
		}
		if cfw.Status == StatusReceived && cfw.IsRelevant {
			out = append(out, cfw.SequenceNumber)
		}
	}
	wp.lastDelivered = watermark
	return out
}

// MissingChanges returns every entry currently MISSING, per
// WriterProxy::missing_changes.
func (wp *WriterProxy) MissingChanges() []*ChangeFromWriter {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	var out []*ChangeFromWriter
	for _, cfw := range wp.changesFromWriter {
		if cfw.Status == StatusMissing {
			out = append(out, cfw)
		}
	}
	return out
}

// MissingSet renders the MISSING entries as an ACKNACK-ready
// (base, bitmap) pair: base is the lowest missing (or maxAvailable+1 when
// nothing is missing) and bits[i] reports whether base+i is missing.
func (wp *WriterProxy) MissingSet() (base types.SequenceNumber, bits []bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	missing := map[types.SequenceNumber]bool{}
	var lo, hi types.SequenceNumber
	first := true
	for _, cfw := range wp.changesFromWriter {
		if cfw.Status == StatusMissing {
			missing[cfw.SequenceNumber] = true
			if first {
				lo, hi = cfw.SequenceNumber, cfw.SequenceNumber
				first = false
			} else {
				if cfw.SequenceNumber < lo {
					lo = cfw.SequenceNumber
				}
				if cfw.SequenceNumber > hi {
					hi = cfw.SequenceNumber
				}
			}
		}
	}
	if first {
		return wp.maxAvailable + 1, nil
	}
	bits = make([]bool, hi-lo+1)
	for s := lo; s <= hi; s++ {
		bits[s-lo] = missing[s]
	}
	return lo, bits
}

// NextHeartbeatCount records count as the last seen HEARTBEAT count,
// returning false if it is not newer, per §4.4's stale-count-ignored rule.
func (wp *WriterProxy) NextHeartbeatCount(count uint32) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if count <= wp.lastHeartbeatCount && wp.lastHeartbeatCount != 0 {
		return false
	}
	wp.lastHeartbeatCount = count
	return true
}

// NextAckNackCount returns the count to place in this proxy's next
// ACKNACK, incrementing the internal counter.
func (wp *WriterProxy) NextAckNackCount() uint32 {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.acknackCount++
	return wp.acknackCount
}

// AssertLiveliness records that this writer has been heard from, per
// WriterProxy::assertLiveliness.
func (wp *WriterProxy) AssertLiveliness() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.livelinessAsserted = true
}

// CheckLiveliness reports and clears the asserted flag, per
// WriterProxy::checkLiveliness.
func (wp *WriterProxy) CheckLiveliness() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	aux := wp.livelinessAsserted
	wp.livelinessAsserted = false
	return aux
}

// Get returns the ChangeFromWriter bookkeeping entry for seq, if the proxy
// tracks one (WriterProxy itself holds no payload, only bookkeeping).
func (wp *WriterProxy) Get(seq types.SequenceNumber) (*ChangeFromWriter, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	cfw := wp.findLocked(seq)
	return cfw, cfw != nil
}
