package commands

import "github.com/katzenpost/rtps/wire"

// EncodeMessage serializes a full RTPS datagram: the fixed header
// followed by each command's submessage envelope and body, per
// spec.md §4.1. littleEndian governs both the header's own encoding and
// the default submessage endianness; each command can still encode at a
// different endianness via its Marshal's returned flags, in which case
// the length field must be computed in that submessage's endianness
// (WriteSubmessageHeader handles this).
func EncodeMessage(hdr wire.Header, littleEndian bool, cmds []Command) ([]byte, error) {
	b := wire.NewWriteBuffer(0, littleEndian)
	if err := wire.WriteHeader(b, hdr); err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		envelopePos := b.Pos()
		if err := wire.WriteSubmessageHeader(b, wire.SubmessageHeader{ID: cmd.SubmessageID()}); err != nil {
			return nil, err
		}
		bodyStart := b.Pos()
		flags, err := cmd.Marshal(b, littleEndian)
		if err != nil {
			return nil, err
		}
		bodyEnd := b.Pos()

		saved := b.Pos()
		b.SetPos(envelopePos)
		if err := wire.WriteSubmessageHeader(b, wire.SubmessageHeader{
			ID:     cmd.SubmessageID(),
			Flags:  flags,
			Length: uint16(bodyEnd - bodyStart),
		}); err != nil {
			return nil, err
		}
		b.SetPos(saved)
	}
	return b.Bytes(), nil
}

// Message is a fully decoded datagram: its header and the commands
// found in body order.
type Message struct {
	Header wire.Header
	Cmds   []Command
}

// DecodeMessage parses a datagram per spec.md §4.1, dropping the rest of
// the datagram (but returning what was parsed so far) on the first
// submessage parse error, per the receiver's abort-on-malformed-envelope
// rule.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	b := wire.NewReadBuffer(data, false)
	hdr, err := wire.ReadHeader(b)
	if err != nil {
		return msg, err
	}
	msg.Header = hdr

	subs, splitErr := wire.SplitSubmessages(data[b.Pos():], false)
	for _, sub := range subs {
		cmd, err := Parse(sub)
		if err != nil {
			if err == ErrUnknownSubmessage {
				continue
			}
			return msg, err
		}
		msg.Cmds = append(msg.Cmds, cmd)
	}
	if splitErr != nil {
		return msg, splitErr
	}
	return msg, nil
}
