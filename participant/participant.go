package participant

import (
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/liveliness"
	"github.com/katzenpost/rtps/reader"
	"github.com/katzenpost/rtps/receiver"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/writer"
)

// Transport is the narrow send collaborator every endpoint a Participant
// creates needs. A concrete rtpsnet transport satisfies this (and
// writer.Transport/reader.Transport, which share its shape) without any
// adapter.
type Transport interface {
	SendTo(loc types.Locator, data []byte) error
}

// Config is a Participant's identity and metatraffic domain.
type Config struct {
	GuidPrefix types.GuidPrefix
	Domain     Domain
}

// Participant is the value-with-explicit-lifecycle replacement for the
// original's process-wide RTPSDomain singleton (Design Note §9): a
// participant owns an endpoint Registry, a message Receiver wired to that
// registry, and a liveliness Coordinator driving its built-in
// participant-message writer/reader, all created and torn down by an
// explicit Start/Stop pair rather than a package-level factory.
type Participant struct {
	cfg       Config
	log       *logging.Logger
	transport Transport

	registry   *Registry
	receiver   *receiver.Receiver
	liveliness *liveliness.Coordinator
	msgReader  *reader.StatefulReader

	mu      sync.Mutex
	started bool
}

// New constructs a Participant and its built-in participant-message
// writer/reader, per spec.md §4.7's reserved entity ids. Call Start before
// feeding it datagrams or creating user endpoints, and Stop to tear
// everything down.
func New(cfg Config, transport Transport, log *logging.Logger) *Participant {
	p := &Participant{
		cfg:       cfg,
		log:       log,
		transport: transport,
		registry:  NewRegistry(),
	}

	msgWriterCfg := writer.Config{
		GUID:           p.GUID(EntityIDParticipantMessageWriter),
		Reliability:    types.ReliabilityBestEffort,
		PublishMode:    types.PublishModeSync,
		HistoryPolicy:  history.Policy{Kind: types.HistoryKeepLast, Depth: 1},
		MemoryPolicy:   change.MemoryPolicyDynamic,
		PayloadMaxSize: types.InstanceHandleLength,
		PoolInitial:    4,
		PoolMax:        32,
	}
	msgWriter := writer.NewStatefulWriter(msgWriterCfg, transport, log)
	p.liveliness = liveliness.New(cfg.GuidPrefix, msgWriter, log)

	msgReaderCfg := reader.Config{
		GUID:           p.GUID(EntityIDParticipantMessageReader),
		Reliability:    types.ReliabilityBestEffort,
		HistoryPolicy:  history.Policy{Kind: types.HistoryKeepAll},
		MemoryPolicy:   change.MemoryPolicyDynamic,
		PayloadMaxSize: types.InstanceHandleLength,
		PoolInitial:    4,
		PoolMax:        32,
	}
	p.msgReader = reader.NewStatefulReader(msgReaderCfg, transport, p.liveliness, log)

	p.registry.AddWriter(EntityIDParticipantMessageWriter, msgWriter)
	p.registry.AddReader(EntityIDParticipantMessageReader, p.msgReader)
	p.receiver = receiver.New(cfg.GuidPrefix, p.registry, log)

	return p
}

// GUID forms the full GUID of one of this participant's local entities.
func (p *Participant) GUID(entity types.EntityID) types.GUID {
	return types.GUID{Prefix: p.cfg.GuidPrefix, Entity: entity}
}

// Registry returns the participant's endpoint registry.
func (p *Participant) Registry() *Registry { return p.registry }

// Receiver returns the participant's datagram demultiplexer.
func (p *Participant) Receiver() *receiver.Receiver { return p.receiver }

// Liveliness returns the participant's liveliness coordinator.
func (p *Participant) Liveliness() *liveliness.Coordinator { return p.liveliness }

// Start begins the participant's background work: the liveliness
// assertion loop and the built-in participant-message writer's heartbeat
// loop.
func (p *Participant) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	if sw, ok := p.registry.StatefulWriter(EntityIDParticipantMessageWriter); ok {
		sw.Go()
	}
	p.liveliness.Go()
}

// Stop halts every registered endpoint and the liveliness coordinator, per
// spec.md §4.7's "destruction cancels all timers... before any memory is
// released" ordering: endpoints stop accepting new work before the
// participant-wide machinery that feeds them does.
func (p *Participant) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	for _, sr := range p.registry.Readers() {
		sr.Halt()
	}
	for _, sw := range p.registry.Writers() {
		sw.Halt()
	}
	p.liveliness.Halt()
	p.started = false
}

// CreateWriter registers a new local writer under localID, wiring it into
// the registry and (when lease > 0) the liveliness coordinator. cfg.GUID
// is overwritten with this participant's GUID for localID.
func (p *Participant) CreateWriter(localID types.EntityID, cfg writer.Config, lk types.LivelinessKind, lease time.Duration) *writer.StatefulWriter {
	cfg.GUID = p.GUID(localID)
	sw := writer.NewStatefulWriter(cfg, p.transport, p.log)
	sw.Go()
	p.registry.AddWriter(localID, sw)
	if lease > 0 {
		p.liveliness.RegisterLocalWriter(cfg.GUID, lk, lease)
	}
	return sw
}

// CreateReader registers a new local reader under localID, wiring it into
// the registry, the liveliness coordinator (so its matched writer proxies
// get asserted by incoming participant-message samples), and listener for
// delivered samples. cfg.GUID is overwritten with this participant's GUID
// for localID.
func (p *Participant) CreateReader(localID types.EntityID, cfg reader.Config, listener reader.Listener) *reader.StatefulReader {
	cfg.GUID = p.GUID(localID)
	sr := reader.NewStatefulReader(cfg, p.transport, listener, p.log)
	p.registry.AddReader(localID, sr)
	p.liveliness.RegisterReader(sr)
	return sr
}

// RemoveWriter halts and unregisters the writer at localID.
func (p *Participant) RemoveWriter(localID types.EntityID) {
	if sw, ok := p.registry.StatefulWriter(localID); ok {
		sw.Halt()
		p.liveliness.UnregisterLocalWriter(p.GUID(localID))
	}
	p.registry.RemoveWriter(localID)
}

// RemoveReader halts and unregisters the reader at localID.
func (p *Participant) RemoveReader(localID types.EntityID) {
	if sr, ok := p.registry.StatefulReader(localID); ok {
		sr.Halt()
	}
	p.registry.RemoveReader(localID)
}
