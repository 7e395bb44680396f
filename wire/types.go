package wire

import "github.com/katzenpost/rtps/types"

// WriteGuidPrefix appends a 12-byte GuidPrefix verbatim.
func (b *Buffer) WriteGuidPrefix(p types.GuidPrefix) error {
	return b.WriteOctets(p[:])
}

// ReadGuidPrefix reads a 12-byte GuidPrefix.
func (b *Buffer) ReadGuidPrefix() (types.GuidPrefix, error) {
	var p types.GuidPrefix
	raw, err := b.ReadOctets(types.GuidPrefixLength)
	if err != nil {
		return p, err
	}
	copy(p[:], raw)
	return p, nil
}

// WriteEntityID appends a 4-byte EntityID (3-byte key, 1-byte kind).
func (b *Buffer) WriteEntityID(e types.EntityID) error {
	if err := b.WriteOctets(e.Key[:]); err != nil {
		return err
	}
	return b.WriteUint8(byte(e.Kind))
}

// ReadEntityID reads a 4-byte EntityID.
func (b *Buffer) ReadEntityID() (types.EntityID, error) {
	var e types.EntityID
	raw, err := b.ReadOctets(3)
	if err != nil {
		return e, err
	}
	copy(e.Key[:], raw)
	kind, err := b.ReadUint8()
	if err != nil {
		return e, err
	}
	e.Kind = types.EntityKind(kind)
	return e, nil
}

// WriteLocator appends a Locator as (kind int32, port uint32, 16-byte address).
func (b *Buffer) WriteLocator(l types.Locator) error {
	if err := b.WriteInt32(int32(l.Kind)); err != nil {
		return err
	}
	if err := b.WriteUint32(l.Port); err != nil {
		return err
	}
	return b.WriteOctets(l.Address[:])
}

// ReadLocator reads a Locator written by WriteLocator.
func (b *Buffer) ReadLocator() (types.Locator, error) {
	var l types.Locator
	kind, err := b.ReadInt32()
	if err != nil {
		return l, err
	}
	l.Kind = types.LocatorKind(kind)
	port, err := b.ReadUint32()
	if err != nil {
		return l, err
	}
	l.Port = port
	raw, err := b.ReadOctets(16)
	if err != nil {
		return l, err
	}
	copy(l.Address[:], raw)
	return l, nil
}

// WriteLocatorList appends a CDR sequence of Locators: a 4-byte count
// followed by each Locator in turn.
func (b *Buffer) WriteLocatorList(list []types.Locator) error {
	if err := b.WriteUint32(uint32(len(list))); err != nil {
		return err
	}
	for _, l := range list {
		if err := b.WriteLocator(l); err != nil {
			return err
		}
	}
	return nil
}

// ReadLocatorList reads a LocatorList written by WriteLocatorList.
func (b *Buffer) ReadLocatorList() ([]types.Locator, error) {
	n, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]types.Locator, 0, n)
	for i := uint32(0); i < n; i++ {
		l, err := b.ReadLocator()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// WriteSequenceNumberSet appends an RTPS SequenceNumberSet: a base
// SequenceNumber, a bit-count, and the bitmap words covering it. Bit i
// (0-indexed from base) set means "seq base+i is in the set". Used by
// ACKNACK (missing sequence numbers) and GAP (irrelevant/lost ranges).
func (b *Buffer) WriteSequenceNumberSet(base types.SequenceNumber, bits []bool) error {
	if err := b.WriteSequenceNumber(base); err != nil {
		return err
	}
	if err := b.WriteUint32(uint32(len(bits))); err != nil {
		return err
	}
	nWords := (len(bits) + 31) / 32
	words := make([]uint32, nWords)
	for i, set := range bits {
		if set {
			words[i/32] |= 1 << (31 - uint(i%32))
		}
	}
	for _, w := range words {
		if err := b.WriteUint32(w); err != nil {
			return err
		}
	}
	return nil
}

// ReadSequenceNumberSet reads a SequenceNumberSet written by
// WriteSequenceNumberSet, returning the base and the expanded bit vector.
func (b *Buffer) ReadSequenceNumberSet() (base types.SequenceNumber, bits []bool, err error) {
	base, err = b.ReadSequenceNumber()
	if err != nil {
		return 0, nil, err
	}
	count, err := b.ReadUint32()
	if err != nil {
		return 0, nil, err
	}
	nWords := (int(count) + 31) / 32
	bits = make([]bool, count)
	for w := 0; w < nWords; w++ {
		word, err := b.ReadUint32()
		if err != nil {
			return 0, nil, err
		}
		for bit := 0; bit < 32; bit++ {
			idx := w*32 + bit
			if idx >= int(count) {
				break
			}
			bits[idx] = word&(1<<(31-uint(bit))) != 0
		}
	}
	return base, bits, nil
}
