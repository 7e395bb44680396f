package writer

import (
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/eapache/channels.v1"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/internal/instrument"
	"github.com/katzenpost/rtps/internal/worker"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire"
	"github.com/katzenpost/rtps/wire/commands"
)

// Transport is the narrow send collaborator a StatefulWriter needs,
// defined at point of use the way client2's SphinxComposerSender is:
// just enough surface for this package to push bytes at a locator.
type Transport interface {
	SendTo(loc types.Locator, data []byte) error
}

// Config bundles a StatefulWriter's identity, QoS, and timing.
type Config struct {
	GUID           types.GUID
	Reliability    types.ReliabilityKind
	Durability     types.DurabilityKind
	Ownership      types.OwnershipKind
	PublishMode    types.PublishMode
	HistoryPolicy  history.Policy
	MemoryPolicy   change.MemoryPolicy
	PayloadMaxSize int
	PoolInitial    int
	PoolMax        int

	// DeadlinePeriod and Lifespan are carried as QoS metadata only; like
	// OwnershipKind, the core does not enforce them (no deadline-miss
	// listener callback, no payload expiry sweep).
	DeadlinePeriod time.Duration
	Lifespan       time.Duration

	HeartbeatPeriod         time.Duration
	NackResponseDelay       time.Duration
	NackSuppressionDuration time.Duration

	// DisablePositiveAcks puts the writer in spec.md §4.3's disable-
	// positive-ACKs mode: ACKNACK is used only for NACKs, and
	// KeepDuration after add_change an unacked change is freed from
	// history regardless of ack state.
	DisablePositiveAcks bool
	KeepDuration        time.Duration
}

// StatefulWriter is the §4.3 C6 reliable/best-effort write endpoint: it
// owns a HistoryCache and change pool, tracks one ReaderProxy per
// matched reader, and drives heartbeat/acknack processing.
type StatefulWriter struct {
	worker.Worker

	cfg       Config
	log       *logging.Logger
	transport Transport

	history *history.Cache
	pool    *change.Pool

	mu      sync.Mutex
	proxies map[types.GUID]*ReaderProxy

	nextSeqNum int64 // accessed only via atomic ops
	hbCount    uint32

	asyncQueues map[types.GUID]*channels.InfiniteChannel
}

// NewStatefulWriter constructs a StatefulWriter. Call Go to start its
// periodic heartbeat loop.
func NewStatefulWriter(cfg Config, transport Transport, log *logging.Logger) *StatefulWriter {
	sw := &StatefulWriter{
		cfg:         cfg,
		log:         log,
		transport:   transport,
		history:     history.New(cfg.HistoryPolicy),
		pool:        change.NewPool(cfg.MemoryPolicy, cfg.PoolInitial, cfg.PoolMax, cfg.PayloadMaxSize),
		proxies:     make(map[types.GUID]*ReaderProxy),
		asyncQueues: make(map[types.GUID]*channels.InfiniteChannel),
	}
	return sw
}

// GUID returns the writer's own GUID.
func (sw *StatefulWriter) GUID() types.GUID { return sw.cfg.GUID }

// Go starts the periodic-heartbeat background loop. Reliable writers
// with no matched readers simply heartbeat into the void until one
// matches, matching the original's always-on PeriodicHeartbeat timed
// event.
func (sw *StatefulWriter) Go() {
	sw.Worker.Go(sw.heartbeatLoop)
}

func (sw *StatefulWriter) heartbeatLoop() {
	if sw.cfg.Reliability != types.ReliabilityReliable || sw.cfg.HeartbeatPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(sw.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sw.HaltCh():
			return
		case <-ticker.C:
			sw.sendHeartbeatToAll()
		}
	}
}

func (sw *StatefulWriter) sendHeartbeatToAll() {
	sw.mu.Lock()
	proxies := make([]*ReaderProxy, 0, len(sw.proxies))
	for _, rp := range sw.proxies {
		proxies = append(proxies, rp)
	}
	sw.mu.Unlock()

	first, last, ok := sw.history.MinMax()
	if !ok {
		first, last = 1, 0 // empty-history convention: first > last
	}
	count := atomic.AddUint32(&sw.hbCount, 1)

	for _, rp := range proxies {
		hb := &commands.Heartbeat{
			ReaderID: rp.Params().RemoteReaderGUID.Entity,
			WriterID: sw.cfg.GUID.Entity,
			FirstSN:  first,
			LastSN:   last,
			Count:    count,
			Final:    rp.AllAcknowledged(),
		}
		sw.sendCommand(rp, hb)
		instrument.HeartbeatSent()
	}
}

func (sw *StatefulWriter) sendCommand(rp *ReaderProxy, cmd commands.Command) {
	params := rp.Params()
	locs := params.UnicastLocators
	if len(locs) == 0 {
		locs = params.MulticastLocators
	}
	if len(locs) == 0 {
		return
	}
	hdr := wire.Header{Version: wire.Version21, Vendor: wire.VendorIDThis, GuidPrefix: sw.cfg.GUID.Prefix}
	raw, err := commands.EncodeMessage(hdr, false, []commands.Command{cmd})
	if err != nil {
		sw.log.Errorf("encode %T: %v", cmd, err)
		return
	}
	if err := sw.transport.SendTo(locs[0], raw); err != nil {
		sw.log.Warningf("send %T to %v: %v", cmd, locs[0], err)
	}
}

// NewChange reserves a pool slot sized for payload and assigns it the
// next sequence number for this writer, per §4.2's change-pool contract.
func (sw *StatefulWriter) NewChange(kind types.ChangeKind, handle types.InstanceHandle, payload []byte) (*change.CacheChange, error) {
	c, err := sw.pool.Reserve(len(payload))
	if err != nil {
		return nil, err
	}
	copy(c.Payload.Data, payload)
	c.Kind = kind
	c.WriterGUID = sw.cfg.GUID
	c.InstanceHandle = handle
	c.SequenceNumber = types.SequenceNumber(atomic.AddInt64(&sw.nextSeqNum, 1))
	c.SourceTimestamp = time.Now()
	return c, nil
}

// AddChange inserts c into history and fans it out to every matched
// reader, per ReaderProxy::unsent_change_added / StatefulWriter::add_change.
// Under PublishModeSync it blocks until the change has been handed to
// every reader's transport; under PublishModeAsync it enqueues per-reader
// delivery and returns immediately.
func (sw *StatefulWriter) AddChange(c *change.CacheChange) error {
	evicted, err := sw.history.Add(c)
	if err != nil {
		return err
	}
	if evicted != nil {
		sw.removeFromProxies(evicted.SequenceNumber)
		sw.pool.Release(evicted)
	}

	sw.mu.Lock()
	proxies := make([]*ReaderProxy, 0, len(sw.proxies))
	for _, rp := range sw.proxies {
		proxies = append(proxies, rp)
	}
	sw.mu.Unlock()

	for _, rp := range proxies {
		rp.AddChange(c, true)
	}

	if sw.cfg.PublishMode == types.PublishModeSync {
		sw.flushUnsent()
	} else {
		for _, rp := range proxies {
			sw.queueFor(rp).In() <- c.SequenceNumber
		}
	}

	if sw.cfg.DisablePositiveAcks && sw.cfg.KeepDuration > 0 {
		seq := c.SequenceNumber
		time.AfterFunc(sw.cfg.KeepDuration, func() {
			if cur, ok := sw.history.Get(sw.cfg.GUID, seq); ok && cur == c {
				sw.freeAfterKeepDuration(c)
			}
		})
	}
	return nil
}

// freeAfterKeepDuration implements disable-positive-ACKs mode's keep
// timer: c is dropped from history and every reader proxy's tracking once
// KeepDuration has elapsed since it was added, whether or not it was ever
// acknowledged, per spec.md §4.3 and scenario S3. AddChange's timer calls
// it only while c is still cached under the sequence number it was added
// with, so a change already evicted (whose pool slot may since hold
// another change) is left alone.
func (sw *StatefulWriter) freeAfterKeepDuration(c *change.CacheChange) {
	sw.history.Remove(c)
	sw.removeFromProxies(c.SequenceNumber)
	sw.pool.Release(c)
}

func (sw *StatefulWriter) queueFor(rp *ReaderProxy) *channels.InfiniteChannel {
	guid := rp.Params().RemoteReaderGUID
	sw.mu.Lock()
	defer sw.mu.Unlock()
	q, ok := sw.asyncQueues[guid]
	if !ok {
		q = channels.NewInfiniteChannel()
		sw.asyncQueues[guid] = q
		sw.Worker.Go(func() { sw.asyncSendLoop(rp, q) })
	}
	return q
}

func (sw *StatefulWriter) asyncSendLoop(rp *ReaderProxy, q *channels.InfiniteChannel) {
	for {
		select {
		case <-sw.HaltCh():
			return
		case v, ok := <-q.Out():
			if !ok {
				return
			}
			seq, _ := v.(types.SequenceNumber)
			sw.sendOneChange(rp, seq)
		}
	}
}

// flushUnsent sends every UNSENT change to every matched reader, used by
// the synchronous publish mode.
func (sw *StatefulWriter) flushUnsent() {
	sw.mu.Lock()
	proxies := make([]*ReaderProxy, 0, len(sw.proxies))
	for _, rp := range sw.proxies {
		proxies = append(proxies, rp)
	}
	sw.mu.Unlock()

	for _, rp := range proxies {
		for {
			cfr, ok := rp.NextUnsentChange()
			if !ok {
				break
			}
			sw.sendOneChange(rp, cfr.Change.SequenceNumber)
		}
	}
}

func (sw *StatefulWriter) sendOneChange(rp *ReaderProxy, seq types.SequenceNumber) {
	cfr, ok := rp.GetChangeForReader(seq)
	if !ok {
		sw.sendGap(rp, seq)
		return
	}
	d := &commands.Data{
		ReaderID:          rp.Params().RemoteReaderGUID.Entity,
		WriterID:          sw.cfg.GUID.Entity,
		WriterSN:          seq,
		SerializedPayload: cfr.Change.Payload.Data,
	}
	sw.sendCommand(rp, d)
	rp.MarkUnderway(seq)
	if rp.Params().Reliability == types.ReliabilityReliable {
		rp.ScheduleNackSuppressionExpiry(seq, sw.cfg.NackSuppressionDuration)
	}
}

// sendGap tells rp that seq will never be delivered, per §4.3's "on
// receiving a NACK for a sequence no longer in history, emit a GAP
// covering it" — the case a KEEP_LAST eviction (S2) produces when a
// reader keeps re-NACKing an already-evicted sequence number.
func (sw *StatefulWriter) sendGap(rp *ReaderProxy, seq types.SequenceNumber) {
	g := &commands.Gap{
		ReaderID:    rp.Params().RemoteReaderGUID.Entity,
		WriterID:    sw.cfg.GUID.Entity,
		GapStart:    seq,
		GapListBase: seq + 1,
	}
	sw.sendCommand(rp, g)
}

// removeFromProxies drops seq from every matched reader's tracking,
// e.g. once the history cache has evicted it.
func (sw *StatefulWriter) removeFromProxies(seq types.SequenceNumber) {
	sw.mu.Lock()
	proxies := make([]*ReaderProxy, 0, len(sw.proxies))
	for _, rp := range sw.proxies {
		proxies = append(proxies, rp)
	}
	sw.mu.Unlock()
	for _, rp := range proxies {
		rp.RemoveChange(seq)
	}
}

// MatchedReaderAdd registers a newly discovered matched reader and seeds
// it with the writer's full retained history as UNSENT, per
// StatefulWriter::matched_reader_add.
func (sw *StatefulWriter) MatchedReaderAdd(params ReaderProxyParams) *ReaderProxy {
	rp := NewReaderProxy(params)
	for _, c := range sw.history.Changes() {
		rp.AddChange(c, true)
	}
	sw.mu.Lock()
	sw.proxies[params.RemoteReaderGUID] = rp
	sw.mu.Unlock()
	instrument.SetMatchedProxies(sw.cfg.GUID.String(), "reader", len(sw.proxies))
	return rp
}

// MatchedReaderRemove forgets a reader, per
// StatefulWriter::matched_reader_remove.
func (sw *StatefulWriter) MatchedReaderRemove(guid types.GUID) {
	sw.mu.Lock()
	delete(sw.proxies, guid)
	if q, ok := sw.asyncQueues[guid]; ok {
		q.Close()
		delete(sw.asyncQueues, guid)
	}
	n := len(sw.proxies)
	sw.mu.Unlock()
	instrument.SetMatchedProxies(sw.cfg.GUID.String(), "reader", n)
}

// MatchedReader returns the ReaderProxy for guid, if matched.
func (sw *StatefulWriter) MatchedReader(guid types.GUID) (*ReaderProxy, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	rp, ok := sw.proxies[guid]
	return rp, ok
}

// ProcessAckNack applies an incoming ACKNACK from a matched reader: marks
// acknowledged changes, marks requested changes REQUESTED, and resends
// them after NackResponseDelay, per StatefulWriter::process_acknack.
func (sw *StatefulWriter) ProcessAckNack(readerGUID types.GUID, ack *commands.AckNack) {
	rp, ok := sw.MatchedReader(readerGUID)
	if !ok {
		return
	}
	if !rp.NextAckNackCount(ack.Count) {
		return
	}
	instrument.AcknackReceived()

	rp.AckedChangesSet(ack.ReaderSNBase)

	var missing []types.SequenceNumber
	for i, isMissing := range ack.Missing {
		if isMissing {
			missing = append(missing, ack.ReaderSNBase+types.SequenceNumber(i))
		}
	}
	if len(missing) == 0 {
		return
	}

	// A requested seq no longer tracked by rp was already evicted from
	// history (e.g. KEEP_LAST, or freed by the keep-duration timer); it
	// will never reappear in rp.changes for RequestedChangesSet/
	// NextRequestedChange to find, so GAP it immediately instead of
	// leaving the reader to re-NACK it forever.
	var present []types.SequenceNumber
	for _, seq := range missing {
		if _, ok := rp.GetChangeForReader(seq); ok {
			present = append(present, seq)
		} else {
			sw.sendGap(rp, seq)
		}
	}
	if len(present) == 0 {
		return
	}
	rp.RequestedChangesSet(present)

	respond := func() {
		for {
			cfr, ok := rp.NextRequestedChange()
			if !ok {
				break
			}
			instrument.Retransmit(readerGUID.String())
			sw.sendOneChange(rp, cfr.Change.SequenceNumber)
		}
	}
	if sw.cfg.NackResponseDelay <= 0 {
		respond()
		return
	}
	time.AfterFunc(sw.cfg.NackResponseDelay, respond)
}
