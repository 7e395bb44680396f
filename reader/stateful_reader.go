package reader

import (
	"sort"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/internal/instrument"
	"github.com/katzenpost/rtps/internal/worker"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire"
	"github.com/katzenpost/rtps/wire/commands"
)

// Transport is the narrow send collaborator a StatefulReader needs to
// emit ACKNACKs back at a matched writer.
type Transport interface {
	SendTo(loc types.Locator, data []byte) error
}

// Listener receives delivered samples from a StatefulReader. Each batch a
// writer proxy makes deliverable at once arrives in sequence-number order,
// or sorted by source timestamp under DestinationOrderBySourceTimestamp.
type Listener interface {
	OnDataAvailable(c *change.CacheChange)
}

// Config bundles a StatefulReader's identity, QoS, and timing.
type Config struct {
	GUID             types.GUID
	Reliability      types.ReliabilityKind
	Durability       types.DurabilityKind
	Ownership        types.OwnershipKind
	HistoryPolicy    history.Policy
	MemoryPolicy     change.MemoryPolicy
	PayloadMaxSize   int
	PoolInitial      int
	PoolMax          int
	DestinationOrder types.DestinationOrderKind

	// DeadlinePeriod and Lifespan are carried as QoS metadata only; like
	// OwnershipKind, the core does not enforce them.
	DeadlinePeriod time.Duration
	Lifespan       time.Duration

	HeartbeatResponseDelay time.Duration
}

// StatefulReader is the §4.4 C7 reliable/best-effort read endpoint.
type StatefulReader struct {
	worker.Worker

	cfg       Config
	log       *logging.Logger
	transport Transport
	listener  Listener

	history *history.Cache
	pool    *change.Pool

	mu      sync.Mutex
	proxies map[types.GUID]*WriterProxy
}

// NewStatefulReader constructs a StatefulReader.
func NewStatefulReader(cfg Config, transport Transport, listener Listener, log *logging.Logger) *StatefulReader {
	return &StatefulReader{
		cfg:       cfg,
		log:       log,
		transport: transport,
		listener:  listener,
		history:   history.New(cfg.HistoryPolicy),
		pool:      change.NewPool(cfg.MemoryPolicy, cfg.PoolInitial, cfg.PoolMax, cfg.PayloadMaxSize),
		proxies:   make(map[types.GUID]*WriterProxy),
	}
}

// GUID returns the reader's own GUID.
func (sr *StatefulReader) GUID() types.GUID { return sr.cfg.GUID }

// MatchedWriterAdd registers a newly discovered matched writer and, when
// it declares a lease duration, starts a per-proxy watchdog that polls
// at half the lease and marks the proxy not-alive (per
// WriterProxy::checkLiveliness) if no assertion arrived in that window.
func (sr *StatefulReader) MatchedWriterAdd(params WriterProxyParams) *WriterProxy {
	wp := NewWriterProxy(params)
	if params.LeaseDuration > 0 {
		sr.Worker.Go(func() { sr.watchLiveliness(params.RemoteWriterGUID, wp, params.LeaseDuration) })
	}
	sr.mu.Lock()
	sr.proxies[params.RemoteWriterGUID] = wp
	sr.mu.Unlock()
	instrument.SetMatchedProxies(sr.cfg.GUID.String(), "writer", len(sr.proxies))
	return wp
}

// MatchedWriterRemove forgets a writer.
func (sr *StatefulReader) MatchedWriterRemove(guid types.GUID) {
	sr.mu.Lock()
	delete(sr.proxies, guid)
	n := len(sr.proxies)
	sr.mu.Unlock()
	instrument.SetMatchedProxies(sr.cfg.GUID.String(), "writer", n)
}

// watchLiveliness polls wp at half its lease duration for as long as it
// remains matched, marking it not-alive on a missed window.
func (sr *StatefulReader) watchLiveliness(guid types.GUID, wp *WriterProxy, lease time.Duration) {
	ticker := time.NewTicker(lease / 2)
	defer ticker.Stop()
	for {
		select {
		case <-sr.HaltCh():
			return
		case <-ticker.C:
			if _, stillMatched := sr.MatchedWriter(guid); !stillMatched {
				return
			}
			if !wp.CheckLiveliness() {
				instrument.LivelinessChanged("not-alive")
			}
		}
	}
}

// MatchedWriter returns the WriterProxy for guid, if matched.
func (sr *StatefulReader) MatchedWriter(guid types.GUID) (*WriterProxy, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	wp, ok := sr.proxies[guid]
	return wp, ok
}

// MatchedWriters returns every currently matched WriterProxy, for the
// liveliness coordinator's OnDataAvailable to scan for a matching
// (remote-participant-prefix, liveliness-kind) pair.
func (sr *StatefulReader) MatchedWriters() []*WriterProxy {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]*WriterProxy, 0, len(sr.proxies))
	for _, wp := range sr.proxies {
		out = append(out, wp)
	}
	return out
}

// ProcessDataMsg handles an incoming DATA submessage: reserves a history
// slot, stores the payload, marks the writer proxy's sequence number
// RECEIVED, and delivers every sample the contiguous watermark now covers
// to the listener in sequence-number order (spec.md §5, universal
// invariant 2). A sample received out of order waits in history, undelivered,
// until the gap ahead of it is filled or declared LOST.
func (sr *StatefulReader) ProcessDataMsg(writerGUID types.GUID, d *commands.Data, sourceTimestamp time.Time) error {
	wp, ok := sr.MatchedWriter(writerGUID)
	if !ok {
		return nil
	}
	wp.AssertLiveliness()

	var handle types.InstanceHandle
	if len(d.SerializedPayload) >= types.InstanceHandleLength {
		copy(handle[:], d.SerializedPayload[:types.InstanceHandleLength])
	}

	c, err := sr.pool.Reserve(len(d.SerializedPayload))
	if err != nil {
		instrument.SubmessageDropped("pool-exhausted")
		return err
	}
	copy(c.Payload.Data, d.SerializedPayload)
	c.Kind = types.ChangeKindAlive
	c.WriterGUID = writerGUID
	c.InstanceHandle = handle
	c.SequenceNumber = d.WriterSN
	c.SourceTimestamp = sourceTimestamp

	if evicted, err := sr.history.Add(c); err != nil {
		sr.pool.Release(c)
		if err == history.ErrDuplicateSequenceNumber {
			return nil // already have it, not an error
		}
		return err
	} else if evicted != nil {
		sr.pool.Release(evicted)
	}

	wp.ReceivedChangeSet(d.WriterSN)
	sr.deliverAvailable(writerGUID, wp)
	return nil
}

// deliverAvailable drains wp's newly deliverable sequence numbers and
// hands each one's cached change to the listener, in order. Called after
// any event that can advance the contiguous watermark: a DATA arrival, a
// HEARTBEAT's missing/lost update, or a GAP.
func (sr *StatefulReader) deliverAvailable(writerGUID types.GUID, wp *WriterProxy) {
	if sr.listener == nil {
		return
	}
	var batch []*change.CacheChange
	for _, seq := range wp.TakeDeliverable() {
		if c, ok := sr.history.Get(writerGUID, seq); ok {
			batch = append(batch, c)
		}
	}
	if sr.cfg.DestinationOrder == types.DestinationOrderBySourceTimestamp {
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].SourceTimestamp.Before(batch[j].SourceTimestamp)
		})
	}
	for _, c := range batch {
		sr.listener.OnDataAvailable(c)
	}
}

// ProcessHeartbeatMsg handles an incoming HEARTBEAT: updates the writer
// proxy's missing/lost bookkeeping and schedules (or sends immediately)
// an ACKNACK, per StatefulReader::processHeartbeatMsg. Best-effort
// readers never ACKNACK.
func (sr *StatefulReader) ProcessHeartbeatMsg(writerGUID types.GUID, hb *commands.Heartbeat) {
	wp, ok := sr.MatchedWriter(writerGUID)
	if !ok {
		return
	}
	if !wp.NextHeartbeatCount(hb.Count) {
		instrument.StaleProtocolCount("heartbeat")
		return
	}
	wp.AssertLiveliness()

	if hb.LastSN >= hb.FirstSN {
		wp.MissingChangesUpdate(hb.LastSN)
	}
	if hb.FirstSN > 0 {
		wp.LostChangesUpdate(hb.FirstSN)
	}
	sr.deliverAvailable(writerGUID, wp)

	if sr.cfg.Reliability != types.ReliabilityReliable {
		return
	}
	respond := func() { sr.sendAckNack(wp) }
	if sr.cfg.HeartbeatResponseDelay <= 0 {
		respond()
		return
	}
	time.AfterFunc(sr.cfg.HeartbeatResponseDelay, respond)
}

// ProcessGapMsg handles an incoming GAP: marks the named range
// irrelevant/lost so the reader stops waiting on sequence numbers the
// writer will never send, per StatefulReader's GAP handling.
func (sr *StatefulReader) ProcessGapMsg(writerGUID types.GUID, g *commands.Gap) {
	wp, ok := sr.MatchedWriter(writerGUID)
	if !ok {
		return
	}
	for seq := g.GapStart; seq < g.GapListBase; seq++ {
		wp.IrrelevantChangeSet(seq)
	}
	for i, irrelevant := range g.GapList {
		if irrelevant {
			wp.IrrelevantChangeSet(g.GapListBase + types.SequenceNumber(i))
		}
	}
	wp.LostChangesUpdate(g.GapListBase + types.SequenceNumber(len(g.GapList)))
	sr.deliverAvailable(writerGUID, wp)
}

func (sr *StatefulReader) sendAckNack(wp *WriterProxy) {
	params := wp.Params()
	base, bits := wp.MissingSet()
	ack := &commands.AckNack{
		ReaderID:     sr.cfg.GUID.Entity,
		WriterID:     params.RemoteWriterGUID.Entity,
		ReaderSNBase: base,
		Missing:      bits,
		Count:        wp.NextAckNackCount(),
		Final:        len(bits) == 0,
	}

	locs := params.UnicastLocators
	if len(locs) == 0 {
		locs = params.MulticastLocators
	}
	if len(locs) == 0 {
		return
	}
	hdr := wire.Header{Version: wire.Version21, Vendor: wire.VendorIDThis, GuidPrefix: sr.cfg.GUID.Prefix}
	raw, err := commands.EncodeMessage(hdr, false, []commands.Command{ack})
	if err != nil {
		sr.log.Errorf("encode acknack: %v", err)
		return
	}
	if err := sr.transport.SendTo(locs[0], raw); err != nil {
		sr.log.Warningf("send acknack to %v: %v", locs[0], err)
	}
}

// Take returns every currently cached change in the history's
// sequence-number order, or sorted by source timestamp when
// Config.DestinationOrder is DestinationOrderBySourceTimestamp, marking
// each IsRead along the way.
func (sr *StatefulReader) Take() []*change.CacheChange {
	changes := sr.history.Changes()
	if sr.cfg.DestinationOrder == types.DestinationOrderBySourceTimestamp {
		sort.SliceStable(changes, func(i, j int) bool {
			return changes[i].SourceTimestamp.Before(changes[j].SourceTimestamp)
		})
	}
	for _, c := range changes {
		c.SetRead(true)
	}
	return changes
}
