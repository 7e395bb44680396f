package wire

// ParameterID identifies one entry of a parameter list, per spec.md §4.1.
type ParameterID uint16

const (
	// PIDSentinel terminates a parameter list; its length is always 0.
	PIDSentinel ParameterID = 0x0001

	PIDTopicName        ParameterID = 0x0005
	PIDTypeName         ParameterID = 0x0007
	PIDKeyHash          ParameterID = 0x0070
	PIDStatusInfo       ParameterID = 0x0071
	PIDUnicastLocator   ParameterID = 0x002f
	PIDMulticastLocator ParameterID = 0x0030
	PIDEndpointGUID     ParameterID = 0x005a
	PIDProtocolVersion  ParameterID = 0x0015
	PIDVendorID         ParameterID = 0x0016
)

// Parameter is one (pid, value) entry of a parameter list. Value holds the
// raw, still-encoded parameter payload; callers parse it according to pid.
type Parameter struct {
	ID    ParameterID
	Value []byte
}

// WriteParameterList appends a CDR parameter list: each Parameter as
// (2-byte pid, 2-byte length, value), where length is Value's true byte
// count and the value is zero-padded on the wire to a 4-byte boundary
// (the padding bytes are not part of Value and are stripped back out by
// ReadParameterList). Terminated by PIDSentinel with a zero length.
func WriteParameterList(b *Buffer, params []Parameter) error {
	for _, p := range params {
		if err := b.WriteUint16(uint16(p.ID)); err != nil {
			return err
		}
		if err := b.WriteUint16(uint16(len(p.Value))); err != nil {
			return err
		}
		if err := b.WriteOctets(p.Value); err != nil {
			return err
		}
		padded := (len(p.Value) + 3) &^ 3
		for i := len(p.Value); i < padded; i++ {
			if err := b.WriteUint8(0); err != nil {
				return err
			}
		}
	}
	if err := b.WriteUint16(uint16(PIDSentinel)); err != nil {
		return err
	}
	return b.WriteUint16(0)
}

// ReadParameterList parses a parameter list written by WriteParameterList,
// stopping at PIDSentinel. Unknown pids are kept as opaque Parameters so
// callers can skip what they don't understand, per spec.md §4.1's
// unknown-parameter-is-skipped rule.
func ReadParameterList(b *Buffer) ([]Parameter, error) {
	var out []Parameter
	for {
		id, err := b.ReadUint16()
		if err != nil {
			return out, err
		}
		length, err := b.ReadUint16()
		if err != nil {
			return out, err
		}
		if ParameterID(id) == PIDSentinel {
			return out, nil
		}
		value, err := b.ReadOctets(int(length))
		if err != nil {
			return out, err
		}
		padded := (int(length) + 3) &^ 3
		if pad := padded - int(length); pad > 0 {
			if _, err := b.ReadOctets(pad); err != nil {
				return out, err
			}
		}
		out = append(out, Parameter{ID: ParameterID(id), Value: value})
	}
}

// ParameterFromString builds a Parameter whose value is a CDR-encoded
// string (via Buffer.WriteString), for PIDs like PIDTopicName/PIDTypeName
// that carry string content.
func ParameterFromString(id ParameterID, s string) (Parameter, error) {
	b := NewWriteBuffer(0, false)
	if err := b.WriteString(s); err != nil {
		return Parameter{}, err
	}
	return Parameter{ID: id, Value: b.Bytes()}, nil
}

// ParameterAsString decodes a Parameter built by ParameterFromString.
func ParameterAsString(p Parameter) (string, error) {
	b := NewReadBuffer(p.Value, false)
	return b.ReadString()
}
