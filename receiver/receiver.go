// Package receiver implements the §4.5 C8 message receiver: it demuxes an
// incoming RTPS datagram into its Message submessages, carries INFO_TS/
// INFO_DST state across them the way the submessages that follow are
// defined to inherit it, and dispatches each DATA/HEARTBEAT/GAP/ACKNACK to
// the local endpoint its entity id names. Grounded on client2/connection.go's
// onWireConn command-receive loop: sequential per-submessage processing
// with state carried across iterations.
package receiver

import (
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire/commands"
)

// ReaderSink is the subset of StatefulReader a receiver needs to deliver
// writer-originated submessages.
type ReaderSink interface {
	ProcessDataMsg(writerGUID types.GUID, d *commands.Data, sourceTimestamp time.Time) error
	ProcessHeartbeatMsg(writerGUID types.GUID, hb *commands.Heartbeat)
	ProcessGapMsg(writerGUID types.GUID, g *commands.Gap)
}

// WriterSink is the subset of StatefulWriter a receiver needs to deliver
// reader-originated submessages.
type WriterSink interface {
	ProcessAckNack(readerGUID types.GUID, ack *commands.AckNack)
}

// Registry resolves the local entity id carried in a submessage to the
// endpoint that owns it. A participant registers its readers and writers
// here as they're created.
type Registry interface {
	Reader(localID types.EntityID) (ReaderSink, bool)
	Writer(localID types.EntityID) (WriterSink, bool)
}

// Receiver demultiplexes datagrams for one local participant.
type Receiver struct {
	localPrefix types.GuidPrefix
	registry    Registry
	log         *logging.Logger
}

// New constructs a Receiver dispatching into registry on behalf of the
// participant identified by localPrefix.
func New(localPrefix types.GuidPrefix, registry Registry, log *logging.Logger) *Receiver {
	return &Receiver{localPrefix: localPrefix, registry: registry, log: log}
}

// ProcessDatagram decodes data as one RTPS Message and dispatches each of
// its submessages in order, carrying INFO_TS/INFO_DST state between them
// per spec.md §4.1. A DATA/HEARTBEAT/GAP/ACKNACK addressed to an entity id
// this participant has no endpoint for is silently dropped; decode errors
// abort the rest of the datagram, matching the "malformed submessage ends
// processing of this datagram" rule.
func (r *Receiver) ProcessDatagram(data []byte) error {
	msg, err := commands.DecodeMessage(data)
	if err != nil {
		return err
	}

	sourcePrefix := msg.Header.GuidPrefix
	timestamp := time.Now()
	haveTimestamp := false
	// directedAway is set by an INFO_DST naming a participant other than
	// ours; submessages until the next INFO_DST (or end of datagram) are
	// addressed elsewhere and must be skipped.
	directedAway := false

	for _, cmd := range msg.Cmds {
		switch c := cmd.(type) {
		case *commands.InfoTS:
			if c.Invalid {
				haveTimestamp = false
				continue
			}
			timestamp = c.Timestamp
			haveTimestamp = true

		case *commands.InfoDst:
			directedAway = !c.GuidPrefix.IsUnknown() && c.GuidPrefix != r.localPrefix

		case *commands.Data:
			if directedAway {
				continue
			}
			writerGUID := types.GUID{Prefix: sourcePrefix, Entity: c.WriterID}
			sink, ok := r.registry.Reader(c.ReaderID)
			if !ok {
				r.log.Debugf("data for unknown reader %s, dropping", c.ReaderID)
				continue
			}
			ts := timestamp
			if !haveTimestamp {
				ts = time.Now()
			}
			if err := sink.ProcessDataMsg(writerGUID, c, ts); err != nil {
				r.log.Warningf("process data from %s: %v", writerGUID, err)
			}

		case *commands.Heartbeat:
			if directedAway {
				continue
			}
			writerGUID := types.GUID{Prefix: sourcePrefix, Entity: c.WriterID}
			sink, ok := r.registry.Reader(c.ReaderID)
			if !ok {
				r.log.Debugf("heartbeat for unknown reader %s, dropping", c.ReaderID)
				continue
			}
			sink.ProcessHeartbeatMsg(writerGUID, c)

		case *commands.Gap:
			if directedAway {
				continue
			}
			writerGUID := types.GUID{Prefix: sourcePrefix, Entity: c.WriterID}
			sink, ok := r.registry.Reader(c.ReaderID)
			if !ok {
				r.log.Debugf("gap for unknown reader %s, dropping", c.ReaderID)
				continue
			}
			sink.ProcessGapMsg(writerGUID, c)

		case *commands.AckNack:
			if directedAway {
				continue
			}
			readerGUID := types.GUID{Prefix: sourcePrefix, Entity: c.ReaderID}
			sink, ok := r.registry.Writer(c.WriterID)
			if !ok {
				r.log.Debugf("acknack for unknown writer %s, dropping", c.WriterID)
				continue
			}
			sink.ProcessAckNack(readerGUID, c)
		}
	}

	return nil
}
