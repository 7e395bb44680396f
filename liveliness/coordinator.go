// Package liveliness implements the §4.6 C9 liveliness coordinator: a
// built-in participant-message writer that periodically asserts AUTOMATIC
// and MANUAL_BY_PARTICIPANT liveliness, and a built-in reader whose listener
// asserts every matched remote writer proxy the sample's (participant
// prefix, liveliness kind) key names. Split grounded on
// original_source/include/eprosimartps/liveliness/LivelinessPeriodicAssertion.h
// (assertion half) and WriterLivelinessListener.h (listener half).
package liveliness

import (
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/internal/worker"
	"github.com/katzenpost/rtps/reader"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/writer"
)

// periodDivisor is N from spec.md §4.6's `period = min(lease_duration)/N`;
// must be >= 2 to survive one dropped assertion.
const periodDivisor = 3

// defaultPeriod is used when no local writer with a lease is registered yet,
// so the assertion loop still ticks (harmlessly, nothing to assert) rather
// than stalling at zero.
const defaultPeriod = time.Second

// Coordinator owns one participant's liveliness bookkeeping: the set of
// local writers needing AUTOMATIC or MANUAL_BY_PARTICIPANT assertion, the
// built-in writer that publishes those assertions, and the set of matched
// readers whose writer proxies get asserted on receipt of a remote one.
type Coordinator struct {
	worker.Worker

	localPrefix   types.GuidPrefix
	builtinWriter *writer.StatefulWriter
	log           *logging.Logger

	mu               sync.Mutex
	automaticLeases  map[types.GUID]time.Duration
	manualLeases     map[types.GUID]time.Duration
	manualAsserted   map[types.GUID]bool
	matchedReaders   []*reader.StatefulReader
}

// New constructs a Coordinator. builtinWriter is the participant-message
// topic's writer, already matched to remote participants' participant-
// message readers by SEDP/SPDP discovery. Call Go to start the periodic
// assertion loop, and use Listener to wire the built-in reader's delivery.
func New(localPrefix types.GuidPrefix, builtinWriter *writer.StatefulWriter, log *logging.Logger) *Coordinator {
	return &Coordinator{
		localPrefix:     localPrefix,
		builtinWriter:   builtinWriter,
		log:             log,
		automaticLeases: make(map[types.GUID]time.Duration),
		manualLeases:    make(map[types.GUID]time.Duration),
		manualAsserted:  make(map[types.GUID]bool),
	}
}

// Go starts the periodic assertion loop.
func (c *Coordinator) Go() {
	c.Worker.Go(c.assertionLoop)
}

// RegisterReader adds sr to the set scanned when a remote liveliness
// assertion arrives, so its matched writer proxies can be asserted.
func (c *Coordinator) RegisterReader(sr *reader.StatefulReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchedReaders = append(c.matchedReaders, sr)
}

// RegisterLocalWriter tells the coordinator about a local user writer with
// a finite lease, so the periodic assertion loop's period and per-kind
// active set account for it. A zero lease means "no liveliness lease
// configured" and the writer is not tracked.
func (c *Coordinator) RegisterLocalWriter(guid types.GUID, kind types.LivelinessKind, lease time.Duration) {
	if lease <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case types.LivelinessAutomatic:
		c.automaticLeases[guid] = lease
	case types.LivelinessManualByParticipant:
		c.manualLeases[guid] = lease
		c.manualAsserted[guid] = false
	}
	// MANUAL_BY_TOPIC is asserted through ordinary DATA traffic, per
	// spec.md §4.6, and needs no periodic-writer bookkeeping here.
}

// UnregisterLocalWriter forgets a local writer, e.g. on endpoint deletion.
func (c *Coordinator) UnregisterLocalWriter(guid types.GUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.automaticLeases, guid)
	delete(c.manualLeases, guid)
	delete(c.manualAsserted, guid)
}

// AssertLiveliness records that guid (a MANUAL_BY_PARTICIPANT writer) was
// explicitly asserted by the user since the last periodic tick.
func (c *Coordinator) AssertLiveliness(guid types.GUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, tracked := c.manualLeases[guid]; tracked {
		c.manualAsserted[guid] = true
	}
}

func (c *Coordinator) currentPeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	min := time.Duration(0)
	consider := func(d time.Duration) {
		if min == 0 || d < min {
			min = d
		}
	}
	for _, d := range c.automaticLeases {
		consider(d)
	}
	for _, d := range c.manualLeases {
		consider(d)
	}
	if min == 0 {
		return defaultPeriod
	}
	period := min / periodDivisor
	if period <= 0 {
		period = time.Millisecond
	}
	return period
}

func (c *Coordinator) assertionLoop() {
	ticker := time.NewTicker(c.currentPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-c.HaltCh():
			return
		case <-ticker.C:
			c.tick()
			ticker.Reset(c.currentPeriod())
		}
	}
}

func (c *Coordinator) tick() {
	c.mu.Lock()
	hasAutomatic := len(c.automaticLeases) > 0
	var manualAsserted bool
	for guid, asserted := range c.manualAsserted {
		if asserted {
			manualAsserted = true
		}
		c.manualAsserted[guid] = false
	}
	c.mu.Unlock()

	if hasAutomatic {
		c.publish(types.LivelinessAutomatic)
	}
	if manualAsserted {
		c.publish(types.LivelinessManualByParticipant)
	}
}

// participantMessageHandle builds the instance handle key the original
// implementation's participant-message samples use: the announcing
// participant's guid prefix in the first 12 bytes, and kind+1 (0 means "not
// a liveliness sample", distinguishing it from an unset handle) at byte 15.
func participantMessageHandle(prefix types.GuidPrefix, kind types.LivelinessKind) types.InstanceHandle {
	var h types.InstanceHandle
	copy(h[:12], prefix[:])
	h[15] = byte(kind) + 1
	return h
}

func (c *Coordinator) publish(kind types.LivelinessKind) {
	handle := participantMessageHandle(c.localPrefix, kind)
	// The payload carries the same bytes as the instance handle: Data
	// submessages transmit no separate handle field, so StatefulReader
	// reconstructs it from the payload's leading InstanceHandleLength
	// bytes, the same convention every other keyed topic uses.
	cc, err := c.builtinWriter.NewChange(types.ChangeKindAlive, handle, handle[:])
	if err != nil {
		c.log.Warningf("liveliness: reserve participant-message change: %v", err)
		return
	}
	if err := c.builtinWriter.AddChange(cc); err != nil {
		c.log.Warningf("liveliness: publish participant-message: %v", err)
	}
}

// OnDataAvailable implements reader.Listener for the built-in
// participant-message reader: it asserts every matched writer proxy whose
// (remote participant prefix, liveliness kind) matches the sample's key,
// per WriterLivelinessListener::onNewDataMessage. Samples announcing this
// participant's own prefix are ignored.
func (c *Coordinator) OnDataAvailable(cc *change.CacheChange) {
	kindByte := cc.InstanceHandle[15]
	if kindByte == 0 {
		return
	}
	kind := types.LivelinessKind(kindByte - 1)
	var prefix types.GuidPrefix
	copy(prefix[:], cc.InstanceHandle[:12])
	if prefix == c.localPrefix {
		return
	}

	c.mu.Lock()
	readers := append([]*reader.StatefulReader(nil), c.matchedReaders...)
	c.mu.Unlock()

	for _, sr := range readers {
		for _, wp := range sr.MatchedWriters() {
			params := wp.Params()
			if params.Liveliness == kind && params.RemoteWriterGUID.Prefix == prefix {
				wp.AssertLiveliness()
				c.log.Debugf("liveliness: asserted writer %s", params.RemoteWriterGUID)
			}
		}
	}
}
