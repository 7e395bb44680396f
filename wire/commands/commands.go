// Package commands implements the six RTPS submessage kinds this
// implementation speaks (DATA, HEARTBEAT, ACKNACK, GAP, INFO_TS,
// INFO_DST) as a Command interface dispatched by type switch, the same
// shape the teacher uses for its own session-layer PDUs in
// core/wire/commands (consumed via client2/connection.go's
// `switch cmd := rawCmd.(type) { case *commands.Message: ... }`).
package commands

import (
	"errors"
	"time"

	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire"
)

// ErrUnknownSubmessage is returned by Parse when a submessage id has no
// registered command type. Callers should skip the submessage and
// continue with the rest of the datagram, per spec.md §4.1.
var ErrUnknownSubmessage = errors.New("commands: unknown submessage id")

// Command is implemented by every parsed submessage body.
type Command interface {
	// SubmessageID reports which wire.SubmessageID this command encodes as.
	SubmessageID() wire.SubmessageID
	// Marshal appends the command's body to b, returning the flags byte to
	// place in the submessage envelope.
	Marshal(b *wire.Buffer, littleEndian bool) (flags uint8, err error)
}

// Parse dispatches a raw Submessage to its concrete Command, decoding the
// body in the endianness the submessage's own header flag declares.
func Parse(sub wire.Submessage) (Command, error) {
	b := wire.NewReadBuffer(sub.Body, sub.Header.LittleEndian())
	switch sub.Header.ID {
	case wire.SubmessageIDData:
		return parseData(b, sub.Header.Flags)
	case wire.SubmessageIDHeartbeat:
		return parseHeartbeat(b, sub.Header.Flags)
	case wire.SubmessageIDAckNack:
		return parseAckNack(b, sub.Header.Flags)
	case wire.SubmessageIDGap:
		return parseGap(b)
	case wire.SubmessageIDInfoTS:
		return parseInfoTS(b, sub.Header.Flags)
	case wire.SubmessageIDInfoDst:
		return parseInfoDst(b)
	default:
		return nil, ErrUnknownSubmessage
	}
}

// flagEndianness is set on every Marshal'd command so the envelope and
// body agree on byte order; the remaining flag bits are command-specific.
const flagEndianness = 0x01

func endiannessFlag(littleEndian bool) uint8 {
	if littleEndian {
		return flagEndianness
	}
	return 0
}

// Data carries one cache change's payload, per spec.md §4.1. InlineQos is
// nil when the writer sent no inline parameter list; SerializedPayload is
// nil for an unregister/dispose-only Data with no data (status-info only).
type Data struct {
	ReaderID        types.EntityID
	WriterID        types.EntityID
	WriterSN        types.SequenceNumber
	InlineQos       []wire.Parameter
	SerializedPayload []byte

	hasInlineQos bool
	hasData      bool
	keyOnly      bool
}

const (
	dataFlagInlineQos = 0x02
	dataFlagData      = 0x04
	dataFlagKey       = 0x08
)

func (d *Data) SubmessageID() wire.SubmessageID { return wire.SubmessageIDData }

// Marshal encodes Data per spec.md §4.1: extraFlags(2)/octetsToInlineQos(2)
// header, readerID, writerID, writerSN, optional inline qos parameter
// list, optional serialized payload.
func (d *Data) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	if len(d.InlineQos) > 0 {
		flags |= dataFlagInlineQos
	}
	if d.keyOnly {
		flags |= dataFlagKey
	} else if len(d.SerializedPayload) > 0 {
		flags |= dataFlagData
	}

	if err := b.WriteUint16(0); err != nil { // extraFlags, unused
		return 0, err
	}
	octetsToInlineQosPos := b.Pos()
	if err := b.WriteUint16(0); err != nil { // octetsToInlineQos placeholder
		return 0, err
	}
	if err := b.WriteEntityID(d.ReaderID); err != nil {
		return 0, err
	}
	if err := b.WriteEntityID(d.WriterID); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumber(d.WriterSN); err != nil {
		return 0, err
	}

	afterHeader := b.Pos()
	octetsToInlineQos := afterHeader - (octetsToInlineQosPos + 2)
	savedPos := b.Pos()
	b.SetPos(octetsToInlineQosPos)
	if err := b.WriteUint16(uint16(octetsToInlineQos)); err != nil {
		return 0, err
	}
	b.SetPos(savedPos)

	if len(d.InlineQos) > 0 {
		if err := wire.WriteParameterList(b, d.InlineQos); err != nil {
			return 0, err
		}
	}
	if len(d.SerializedPayload) > 0 {
		if err := b.WriteOctets(d.SerializedPayload); err != nil {
			return 0, err
		}
	}
	return flags, nil
}

func parseData(b *wire.Buffer, flags uint8) (*Data, error) {
	d := &Data{
		hasInlineQos: flags&dataFlagInlineQos != 0,
		hasData:      flags&dataFlagData != 0,
		keyOnly:      flags&dataFlagKey != 0,
	}
	if _, err := b.ReadUint16(); err != nil { // extraFlags
		return nil, err
	}
	octetsToInlineQos, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}
	headerStart := b.Pos()
	if d.ReaderID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if d.WriterID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if d.WriterSN, err = b.ReadSequenceNumber(); err != nil {
		return nil, err
	}

	want := headerStart + int(octetsToInlineQos)
	if want > b.Pos() {
		if _, err := b.ReadOctets(want - b.Pos()); err != nil {
			return nil, err
		}
	}

	if d.hasInlineQos {
		d.InlineQos, err = wire.ReadParameterList(b)
		if err != nil {
			return nil, err
		}
	}
	if d.hasData || d.keyOnly {
		d.SerializedPayload, err = b.ReadOctets(b.Remaining())
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Heartbeat announces a writer's live sequence-number range, per
// spec.md §4.1.
type Heartbeat struct {
	ReaderID types.EntityID
	WriterID types.EntityID
	FirstSN  types.SequenceNumber
	LastSN   types.SequenceNumber
	Count    uint32
	Final    bool
	Liveliness bool
}

const (
	heartbeatFlagFinal      = 0x02
	heartbeatFlagLiveliness = 0x04
)

func (h *Heartbeat) SubmessageID() wire.SubmessageID { return wire.SubmessageIDHeartbeat }

func (h *Heartbeat) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	if h.Final {
		flags |= heartbeatFlagFinal
	}
	if h.Liveliness {
		flags |= heartbeatFlagLiveliness
	}
	if err := b.WriteEntityID(h.ReaderID); err != nil {
		return 0, err
	}
	if err := b.WriteEntityID(h.WriterID); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumber(h.FirstSN); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumber(h.LastSN); err != nil {
		return 0, err
	}
	if err := b.WriteUint32(h.Count); err != nil {
		return 0, err
	}
	return flags, nil
}

func parseHeartbeat(b *wire.Buffer, flags uint8) (*Heartbeat, error) {
	h := &Heartbeat{
		Final:      flags&heartbeatFlagFinal != 0,
		Liveliness: flags&heartbeatFlagLiveliness != 0,
	}
	var err error
	if h.ReaderID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if h.WriterID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if h.FirstSN, err = b.ReadSequenceNumber(); err != nil {
		return nil, err
	}
	if h.LastSN, err = b.ReadSequenceNumber(); err != nil {
		return nil, err
	}
	if h.Count, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	return h, nil
}

// AckNack reports a reader's view of a writer's history: which sequence
// numbers it still wants (ReaderSNState's bitmap), per spec.md §4.1.
type AckNack struct {
	ReaderID     types.EntityID
	WriterID     types.EntityID
	ReaderSNBase types.SequenceNumber
	Missing      []bool
	Count        uint32
	Final        bool
}

const ackNackFlagFinal = 0x02

func (a *AckNack) SubmessageID() wire.SubmessageID { return wire.SubmessageIDAckNack }

func (a *AckNack) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	if a.Final {
		flags |= ackNackFlagFinal
	}
	if err := b.WriteEntityID(a.ReaderID); err != nil {
		return 0, err
	}
	if err := b.WriteEntityID(a.WriterID); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumberSet(a.ReaderSNBase, a.Missing); err != nil {
		return 0, err
	}
	if err := b.WriteUint32(a.Count); err != nil {
		return 0, err
	}
	return flags, nil
}

func parseAckNack(b *wire.Buffer, flags uint8) (*AckNack, error) {
	a := &AckNack{Final: flags&ackNackFlagFinal != 0}
	var err error
	if a.ReaderID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if a.WriterID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if a.ReaderSNBase, a.Missing, err = b.ReadSequenceNumberSet(); err != nil {
		return nil, err
	}
	if a.Count, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	return a, nil
}

// Gap tells a reader that a range of sequence numbers will never be
// delivered (irrelevant or already expired), per spec.md §4.1.
type Gap struct {
	ReaderID  types.EntityID
	WriterID  types.EntityID
	GapStart  types.SequenceNumber
	GapListBase types.SequenceNumber
	GapList   []bool
}

func (g *Gap) SubmessageID() wire.SubmessageID { return wire.SubmessageIDGap }

func (g *Gap) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	if err := b.WriteEntityID(g.ReaderID); err != nil {
		return 0, err
	}
	if err := b.WriteEntityID(g.WriterID); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumber(g.GapStart); err != nil {
		return 0, err
	}
	if err := b.WriteSequenceNumberSet(g.GapListBase, g.GapList); err != nil {
		return 0, err
	}
	return flags, nil
}

func parseGap(b *wire.Buffer) (*Gap, error) {
	g := &Gap{}
	var err error
	if g.ReaderID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if g.WriterID, err = b.ReadEntityID(); err != nil {
		return nil, err
	}
	if g.GapStart, err = b.ReadSequenceNumber(); err != nil {
		return nil, err
	}
	if g.GapListBase, g.GapList, err = b.ReadSequenceNumberSet(); err != nil {
		return nil, err
	}
	return g, nil
}

// InfoTS carries a source timestamp applied to subsequent Data
// submessages in the same datagram, per spec.md §4.1. Invalid, when set,
// means "the following Data submessages carry no source timestamp"
// (the timestamp field itself is omitted on the wire).
type InfoTS struct {
	Timestamp time.Time
	Invalid   bool
}

const infoTSFlagInvalid = 0x02

func (i *InfoTS) SubmessageID() wire.SubmessageID { return wire.SubmessageIDInfoTS }

func (i *InfoTS) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	if i.Invalid {
		flags |= infoTSFlagInvalid
		return flags, nil
	}
	secs := i.Timestamp.Unix()
	frac := uint32((i.Timestamp.Nanosecond() * 0x100000000) / 1e9)
	if err := b.WriteInt32(int32(secs)); err != nil {
		return 0, err
	}
	if err := b.WriteUint32(frac); err != nil {
		return 0, err
	}
	return flags, nil
}

func parseInfoTS(b *wire.Buffer, flags uint8) (*InfoTS, error) {
	i := &InfoTS{Invalid: flags&infoTSFlagInvalid != 0}
	if i.Invalid {
		return i, nil
	}
	secs, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	frac, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	nanos := int64(frac) * 1e9 / 0x100000000
	i.Timestamp = time.Unix(int64(secs), nanos).UTC()
	return i, nil
}

// InfoDst directs the submessages that follow it in the same datagram to
// a specific destination participant, per spec.md §4.1.
type InfoDst struct {
	GuidPrefix types.GuidPrefix
}

func (i *InfoDst) SubmessageID() wire.SubmessageID { return wire.SubmessageIDInfoDst }

func (i *InfoDst) Marshal(b *wire.Buffer, littleEndian bool) (uint8, error) {
	flags := endiannessFlag(littleEndian)
	return flags, b.WriteGuidPrefix(i.GuidPrefix)
}

func parseInfoDst(b *wire.Buffer) (*InfoDst, error) {
	i := &InfoDst{}
	var err error
	i.GuidPrefix, err = b.ReadGuidPrefix()
	return i, err
}
