package participant

import "github.com/katzenpost/rtps/types"

func entityID(v uint32) types.EntityID {
	return types.EntityID{
		Key:  [3]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8)},
		Kind: types.EntityKind(v),
	}
}

// Reserved entity ids, per spec.md §6's "subset actually used by the core".
var (
	EntityIDParticipant = entityID(0x000001C1)

	EntityIDSPDPBuiltinParticipantWriter = entityID(0x000100C2)
	EntityIDSPDPBuiltinParticipantReader = entityID(0x000100C7)

	EntityIDSEDPBuiltinPublicationsWriter  = entityID(0x000003C2)
	EntityIDSEDPBuiltinPublicationsReader  = entityID(0x000003C7)
	EntityIDSEDPBuiltinSubscriptionsWriter = entityID(0x000004C2)
	EntityIDSEDPBuiltinSubscriptionsReader = entityID(0x000004C7)

	EntityIDParticipantMessageWriter = entityID(0x000200C2)
	EntityIDParticipantMessageReader = entityID(0x000200C7)
)
