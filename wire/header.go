package wire

import (
	"errors"

	"github.com/katzenpost/rtps/types"
)

// ProtocolMagic is the 4-byte magic that opens every RTPS message, per
// spec.md §4.1.
var ProtocolMagic = [4]byte{'R', 'T', 'P', 'S'}

// ErrBadMagic is returned when a datagram does not begin with ProtocolMagic.
var ErrBadMagic = errors.New("wire: bad protocol magic")

// ProtocolVersion is the (major, minor) version this implementation speaks.
type ProtocolVersion struct {
	Major, Minor uint8
}

// VendorID identifies the implementation that produced a message. Vendor
// 0x01,0x0f is reserved for this implementation.
type VendorID struct {
	Major, Minor uint8
}

// Version21 is RTPS protocol version 2.1.
var Version21 = ProtocolVersion{Major: 2, Minor: 1}

// VendorIDThis identifies messages produced by this implementation.
var VendorIDThis = VendorID{Major: 0x01, Minor: 0x0f}

// Header is the 20-byte fixed message header of spec.md §4.1: magic,
// protocol version, vendor id, and the sender participant's GUID prefix.
type Header struct {
	Version         ProtocolVersion
	Vendor          VendorID
	GuidPrefix      types.GuidPrefix
}

// HeaderLength is the wire size of Header in bytes.
const HeaderLength = 20

// WriteHeader serializes a Header to the front of b.
func WriteHeader(b *Buffer, h Header) error {
	if err := b.WriteOctets(ProtocolMagic[:]); err != nil {
		return err
	}
	if err := b.WriteUint8(h.Version.Major); err != nil {
		return err
	}
	if err := b.WriteUint8(h.Version.Minor); err != nil {
		return err
	}
	if err := b.WriteUint8(h.Vendor.Major); err != nil {
		return err
	}
	if err := b.WriteUint8(h.Vendor.Minor); err != nil {
		return err
	}
	return b.WriteGuidPrefix(h.GuidPrefix)
}

// ReadHeader parses a Header from the front of b, validating the magic.
func ReadHeader(b *Buffer) (Header, error) {
	var h Header
	magic, err := b.ReadOctets(4)
	if err != nil {
		return h, err
	}
	if magic[0] != ProtocolMagic[0] || magic[1] != ProtocolMagic[1] ||
		magic[2] != ProtocolMagic[2] || magic[3] != ProtocolMagic[3] {
		return h, ErrBadMagic
	}
	if h.Version.Major, err = b.ReadUint8(); err != nil {
		return h, err
	}
	if h.Version.Minor, err = b.ReadUint8(); err != nil {
		return h, err
	}
	if h.Vendor.Major, err = b.ReadUint8(); err != nil {
		return h, err
	}
	if h.Vendor.Minor, err = b.ReadUint8(); err != nil {
		return h, err
	}
	h.GuidPrefix, err = b.ReadGuidPrefix()
	return h, err
}
