// Package writer implements the §4.3 write side: ReaderProxy (C4) and
// StatefulWriter (C6). Method surface grounded on
// original_source/include/eprosimartps/writer/ReaderProxy.h
// (getChangeForReader, acked_changes_set, requested_changes_set,
// next_requested_change, next_unsent_change, unsent/unacked/requested
// _changes, max_acked_change), renamed to Go conventions.
package writer

import (
	"sync"
	"time"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/types"
)

// ChangeForReaderStatus is the per-(reader, change) delivery state of
// spec.md §4.3.
type ChangeForReaderStatus uint8

const (
	StatusUnsent ChangeForReaderStatus = iota
	StatusUnacknowledged
	StatusRequested
	StatusUnderway
	StatusAcknowledged
)

// ChangeForReader pairs a cached change with its delivery state and
// relevance to one specific matched reader.
type ChangeForReader struct {
	Change     *change.CacheChange
	Status     ChangeForReaderStatus
	IsRelevant bool
}

// ReaderProxyParams are the match-time attributes of a remote reader, per
// ReaderProxy_t.
type ReaderProxyParams struct {
	RemoteReaderGUID  types.GUID
	ExpectsInlineQos  bool
	UnicastLocators   []types.Locator
	MulticastLocators []types.Locator
	Reliability       types.ReliabilityKind
}

// ReaderProxy is the writer-side bookkeeping for one matched reader: the
// per-change delivery state machine UNSENT/UNACKNOWLEDGED/REQUESTED/
// UNDERWAY/ACKNOWLEDGED and the last ACKNACK count seen. Heartbeats are
// driven by the writer; the proxy only schedules nack-suppression expiry.
type ReaderProxy struct {
	mu sync.Mutex

	params ReaderProxyParams

	// changes is kept in ascending sequence-number order; the writer
	// appends new entries at the back and removes an entry, wherever it
	// sits and whatever its status, once its history drops that change.
	changes []*ChangeForReader

	lastAcknackCount uint32
}

// NewReaderProxy constructs a ReaderProxy for a newly matched reader.
func NewReaderProxy(params ReaderProxyParams) *ReaderProxy {
	return &ReaderProxy{params: params}
}

// Params returns the proxy's match-time parameters.
func (rp *ReaderProxy) Params() ReaderProxyParams {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.params
}

// AddChange registers a newly added history change as UNSENT for this
// reader, per spec.md §4.3's unsent_change_added. A best-effort reader's
// entry moves to UNACKNOWLEDGED once sent (see MarkUnderway).
func (rp *ReaderProxy) AddChange(c *change.CacheChange, isRelevant bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	status := StatusUnsent
	rp.changes = append(rp.changes, &ChangeForReader{Change: c, Status: status, IsRelevant: isRelevant})
}

// getChangeForReaderLocked finds the entry for seq, or nil.
func (rp *ReaderProxy) getChangeForReaderLocked(seq types.SequenceNumber) *ChangeForReader {
	for _, cfr := range rp.changes {
		if cfr.Change.SequenceNumber == seq {
			return cfr
		}
	}
	return nil
}

// GetChangeForReader returns the delivery-state entry for seq.
func (rp *ReaderProxy) GetChangeForReader(seq types.SequenceNumber) (*ChangeForReader, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	cfr := rp.getChangeForReaderLocked(seq)
	return cfr, cfr != nil
}

// AckedChangesSet marks every change with sequence number < seqNum as
// ACKNOWLEDGED (e.g. seqNum == 30 acknowledges 1..29), per
// ReaderProxy::acked_changes_set.
func (rp *ReaderProxy) AckedChangesSet(seqNum types.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for _, cfr := range rp.changes {
		if cfr.Change.SequenceNumber < seqNum {
			cfr.Status = StatusAcknowledged
		}
	}
}

// RequestedChangesSet marks every change in seqNumSet as REQUESTED, unless
// already ACKNOWLEDGED or still UNDERWAY, per
// ReaderProxy::requested_changes_set. A change just sent stays UNDERWAY
// until its nack-suppression window elapses (ScheduleNackSuppressionExpiry)
// so an ACKNACK already in flight when it was sent cannot trigger an
// immediate duplicate retransmit.
func (rp *ReaderProxy) RequestedChangesSet(seqNumSet []types.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	want := make(map[types.SequenceNumber]bool, len(seqNumSet))
	for _, sn := range seqNumSet {
		want[sn] = true
	}
	for _, cfr := range rp.changes {
		if want[cfr.Change.SequenceNumber] && cfr.Status != StatusAcknowledged && cfr.Status != StatusUnderway {
			cfr.Status = StatusRequested
		}
	}
}

// NextRequestedChange returns the lowest-sequence-number REQUESTED change,
// if any, per ReaderProxy::next_requested_change.
func (rp *ReaderProxy) NextRequestedChange() (*ChangeForReader, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for _, cfr := range rp.changes {
		if cfr.Status == StatusRequested {
			return cfr, true
		}
	}
	return nil, false
}

// NextUnsentChange returns the lowest-sequence-number UNSENT change, if
// any, per ReaderProxy::next_unsent_change.
func (rp *ReaderProxy) NextUnsentChange() (*ChangeForReader, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for _, cfr := range rp.changes {
		if cfr.Status == StatusUnsent {
			return cfr, true
		}
	}
	return nil, false
}

func (rp *ReaderProxy) changesListLocked(status ChangeForReaderStatus) []*ChangeForReader {
	var out []*ChangeForReader
	for _, cfr := range rp.changes {
		if cfr.Status == status {
			out = append(out, cfr)
		}
	}
	return out
}

// UnsentChanges returns every UNSENT change, per ReaderProxy::unsent_changes.
func (rp *ReaderProxy) UnsentChanges() []*ChangeForReader {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.changesListLocked(StatusUnsent)
}

// UnackedChanges returns every UNACKNOWLEDGED change, per
// ReaderProxy::unacked_changes.
func (rp *ReaderProxy) UnackedChanges() []*ChangeForReader {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.changesListLocked(StatusUnacknowledged)
}

// RequestedChanges returns every REQUESTED change, per
// ReaderProxy::requested_changes.
func (rp *ReaderProxy) RequestedChanges() []*ChangeForReader {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.changesListLocked(StatusRequested)
}

// MaxAckedChange returns the highest sequence number that is
// ACKNOWLEDGED and has no lower-sequence-numbered entry that is not,
// i.e. the point up to which delivery is contiguous and confirmed. ok is
// false when nothing has been acknowledged yet.
func (rp *ReaderProxy) MaxAckedChange() (types.SequenceNumber, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	var max types.SequenceNumber
	ok := false
	for _, cfr := range rp.changes {
		if cfr.Status != StatusAcknowledged {
			break
		}
		max = cfr.Change.SequenceNumber
		ok = true
	}
	return max, ok
}

// MarkUnderway transitions seq from REQUESTED/UNSENT to UNDERWAY, right
// after a DATA submessage carrying it has been handed to the transport.
// Best-effort readers move straight to UNACKNOWLEDGED since no ACKNACK
// loop will ever confirm them; reliable readers stay UNDERWAY until
// ScheduleNackSuppressionExpiry's timer lands.
func (rp *ReaderProxy) MarkUnderway(seq types.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	cfr := rp.getChangeForReaderLocked(seq)
	if cfr == nil {
		return
	}
	if rp.params.Reliability == types.ReliabilityBestEffort {
		cfr.Status = StatusUnacknowledged
		return
	}
	cfr.Status = StatusUnderway
}

// ScheduleNackSuppressionExpiry arranges for seq to fall from UNDERWAY to
// UNACKNOWLEDGED after d elapses, making it eligible for repair again. Per
// spec.md §4.3's nack-suppression duration, this keeps a change just
// handed to the transport from being immediately re-requested by an
// ACKNACK that was already in flight when it was sent. d <= 0 expires the
// window immediately. A no-op if seq has moved on (acknowledged, resent,
// or evicted) by the time the timer fires.
func (rp *ReaderProxy) ScheduleNackSuppressionExpiry(seq types.SequenceNumber, d time.Duration) {
	expire := func() {
		rp.mu.Lock()
		defer rp.mu.Unlock()
		if cfr := rp.getChangeForReaderLocked(seq); cfr != nil && cfr.Status == StatusUnderway {
			cfr.Status = StatusUnacknowledged
		}
	}
	if d <= 0 {
		expire()
		return
	}
	time.AfterFunc(d, expire)
}

// AllAcknowledged reports whether every relevant change tracked for this
// reader is ACKNOWLEDGED, used to set a HEARTBEAT's final flag per
// spec.md §4.3.
func (rp *ReaderProxy) AllAcknowledged() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for _, cfr := range rp.changes {
		if cfr.IsRelevant && cfr.Status != StatusAcknowledged {
			return false
		}
	}
	return true
}

// RemoveChange drops the entry for seq, e.g. once the writer's history
// has evicted it under KEEP_LAST.
func (rp *ReaderProxy) RemoveChange(seq types.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for i, cfr := range rp.changes {
		if cfr.Change.SequenceNumber == seq {
			rp.changes = append(rp.changes[:i], rp.changes[i+1:]...)
			return
		}
	}
}

// NextAckNackCount records count as the last ACKNACK count seen and
// returns true, per §4.3's stale-count-is-ignored rule. It returns false
// (and leaves state unchanged) when count is not newer than the last one
// processed.
func (rp *ReaderProxy) NextAckNackCount(count uint32) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if count <= rp.lastAcknackCount && rp.lastAcknackCount != 0 {
		return false
	}
	rp.lastAcknackCount = count
	return true
}
