// Package types holds the RTPS wire-level value types shared by every
// other package: GUID, EntityID, SequenceNumber, InstanceHandle, Locator,
// and the small enums that tag them. These are pure values with no I/O.
package types

import (
	"encoding/hex"
	"fmt"
)

// GuidPrefixLength is the length in bytes of the participant-identifying
// prefix half of a GUID.
const GuidPrefixLength = 12

// EntityIDLength is the length in bytes of an EntityID.
const EntityIDLength = 4

// GuidPrefix identifies a participant. It is the first 12 bytes of every
// GUID belonging to that participant's endpoints.
type GuidPrefix [GuidPrefixLength]byte

// String renders the prefix as hex, for logging.
func (p GuidPrefix) String() string {
	return hex.EncodeToString(p[:])
}

// IsUnknown reports whether p is the all-zero "unknown" prefix.
func (p GuidPrefix) IsUnknown() bool {
	return p == GuidPrefix{}
}

// EntityKind is the low byte of an EntityID, tagging builtin/user and
// writer/reader/participant/with-key/no-key combinations.
type EntityKind byte

// EntityID is the 4-byte local-to-participant identifier of an endpoint.
// Value equality is ordinary Go struct equality: no mutation, no
// byte-swap-and-restore dance, resolving the race the spec flags against
// the original C++ equality operator.
type EntityID struct {
	Key  [3]byte
	Kind EntityKind
}

// String renders the EntityID as hex, for logging.
func (e EntityID) String() string {
	return hex.EncodeToString(append(append([]byte{}, e.Key[:]...), byte(e.Kind)))
}

// GUID is a participant prefix plus an entity id: the globally unique
// identity of one endpoint.
type GUID struct {
	Prefix GuidPrefix
	Entity EntityID
}

// String renders the GUID as "prefix:entity" hex, for logging.
func (g GUID) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix, g.Entity)
}

// IsUnknown reports whether g is the all-zero GUID_UNKNOWN sentinel.
func (g GUID) IsUnknown() bool {
	return g.Prefix.IsUnknown() && g.Entity == EntityID{}
}

// Bytes returns the 16-byte wire representation (prefix || key || kind).
func (g GUID) Bytes() [16]byte {
	var b [16]byte
	copy(b[0:12], g.Prefix[:])
	copy(b[12:15], g.Entity.Key[:])
	b[15] = byte(g.Entity.Kind)
	return b
}

// GUIDFromBytes parses the 16-byte wire representation produced by Bytes.
func GUIDFromBytes(b [16]byte) GUID {
	var g GUID
	copy(g.Prefix[:], b[0:12])
	copy(g.Entity.Key[:], b[12:15])
	g.Entity.Kind = EntityKind(b[15])
	return g
}
