// Package participant implements the §4.7 C10 endpoint registry and the
// Design Note's replacement for the original's process-wide RTPSDomain
// singleton (original_source/include/eprosimartps/pubsub/RTPSDomain.h): a
// plain value with explicit Start/Stop instead of a factory-held global.
package participant

// Domain computes the well-known UDP ports of spec.md §6 for one (domain
// id, participant index) pair. The zero value plus DefaultDomain's PB/DG/PG
// constants reproduces the RTPS default mapping.
type Domain struct {
	ID               int
	ParticipantIndex int

	PB, DG, PG     int
	D0, D1, D2, D3 int
}

// Default port-mapping constants, per spec.md §6.
const (
	DefaultPB = 7400
	DefaultDG = 250
	DefaultPG = 2
	DefaultD0 = 0
	DefaultD1 = 10
	DefaultD2 = 1
	DefaultD3 = 11
)

// NewDomain builds a Domain with the default port-mapping constants.
func NewDomain(domainID, participantIndex int) Domain {
	return Domain{
		ID: domainID, ParticipantIndex: participantIndex,
		PB: DefaultPB, DG: DefaultDG, PG: DefaultPG,
		D0: DefaultD0, D1: DefaultD1, D2: DefaultD2, D3: DefaultD3,
	}
}

// MulticastMetatrafficPort is `PB + DG*D + d0`.
func (d Domain) MulticastMetatrafficPort() int { return d.PB + d.DG*d.ID + d.D0 }

// UnicastMetatrafficPort is `PB + DG*D + d1 + PG*P`.
func (d Domain) UnicastMetatrafficPort() int {
	return d.PB + d.DG*d.ID + d.D1 + d.PG*d.ParticipantIndex
}

// MulticastUserTrafficPort is `PB + DG*D + d2`.
func (d Domain) MulticastUserTrafficPort() int { return d.PB + d.DG*d.ID + d.D2 }

// UnicastUserTrafficPort is `PB + DG*D + d3 + PG*P`.
func (d Domain) UnicastUserTrafficPort() int {
	return d.PB + d.DG*d.ID + d.D3 + d.PG*d.ParticipantIndex
}
