package types

// ChangeKind tags the nature of one cache change.
type ChangeKind uint8

const (
	ChangeKindAlive ChangeKind = iota
	ChangeKindNotAliveDisposed
	ChangeKindNotAliveUnregistered
	ChangeKindNotAliveDisposedUnregistered
)

// ReliabilityKind is the QoS reliability setting of an endpoint.
type ReliabilityKind uint8

const (
	ReliabilityBestEffort ReliabilityKind = iota
	ReliabilityReliable
)

// DurabilityKind is the QoS durability setting of an endpoint.
type DurabilityKind uint8

const (
	DurabilityVolatile DurabilityKind = iota
	DurabilityTransientLocal
	DurabilityTransient
	DurabilityPersistent
)

// LivelinessKind is the QoS liveliness setting of an endpoint.
type LivelinessKind uint8

const (
	LivelinessAutomatic LivelinessKind = iota
	LivelinessManualByParticipant
	LivelinessManualByTopic
)

// HistoryKind selects KEEP_LAST(depth) or KEEP_ALL retention.
type HistoryKind uint8

const (
	HistoryKeepLast HistoryKind = iota
	HistoryKeepAll
)

// DestinationOrderKind controls delivery ordering to the listener.
type DestinationOrderKind uint8

const (
	DestinationOrderByReception DestinationOrderKind = iota
	DestinationOrderBySourceTimestamp
)

// OwnershipKind is the QoS ownership setting (exclusive-access selection is
// out of the core's scope; carried only as metadata).
type OwnershipKind uint8

const (
	OwnershipShared OwnershipKind = iota
	OwnershipExclusive
)

// PublishMode selects whether add_change blocks to deliver synchronously or
// only enqueues for an async flow-controller task.
type PublishMode uint8

const (
	PublishModeSync PublishMode = iota
	PublishModeAsync
)

// Encapsulation is the 2-byte CDR payload encapsulation scheme.
type Encapsulation uint16

const (
	EncapsulationCDR_BE    Encapsulation = 0x0000
	EncapsulationCDR_LE    Encapsulation = 0x0001
	EncapsulationPLCDR_BE  Encapsulation = 0x0002
	EncapsulationPLCDR_LE  Encapsulation = 0x0003
)

// LittleEndian reports whether this encapsulation scheme encodes integers
// in little-endian order.
func (e Encapsulation) LittleEndian() bool {
	return e == EncapsulationCDR_LE || e == EncapsulationPLCDR_LE
}

// IsParameterList reports whether this encapsulation wraps a PL_CDR
// parameter list rather than a plain CDR value.
func (e Encapsulation) IsParameterList() bool {
	return e == EncapsulationPLCDR_BE || e == EncapsulationPLCDR_LE
}
