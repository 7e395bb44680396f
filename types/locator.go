package types

import (
	"fmt"
	"net"
)

// LocatorKind tags the transport a Locator addresses.
type LocatorKind int32

const (
	LocatorKindInvalid LocatorKind = -1
	LocatorKindUDPv4    LocatorKind = 1
	LocatorKindUDPv6    LocatorKind = 2
	LocatorKindTCPv4     LocatorKind = 4
	LocatorKindTCPv6     LocatorKind = 8
	LocatorKindSHM       LocatorKind = 16
)

// Locator is (kind, port, 16-byte address) as specified in RTPS §6. IPv4
// addresses are stored in the last 4 bytes of the 16-byte field, per the
// RTPS convention of representing v4 addresses as v4-mapped v6.
type Locator struct {
	Kind    LocatorKind
	Port    uint32
	Address [16]byte
}

// String renders the locator as "kind://host:port" for logging.
func (l Locator) String() string {
	switch l.Kind {
	case LocatorKindUDPv4, LocatorKindTCPv4:
		ip := net.IP(l.Address[12:16])
		return fmt.Sprintf("%s/%s:%d", kindName(l.Kind), ip.String(), l.Port)
	case LocatorKindUDPv6, LocatorKindTCPv6:
		ip := net.IP(l.Address[:])
		return fmt.Sprintf("%s/[%s]:%d", kindName(l.Kind), ip.String(), l.Port)
	default:
		return fmt.Sprintf("%s/invalid", kindName(l.Kind))
	}
}

func kindName(k LocatorKind) string {
	switch k {
	case LocatorKindUDPv4:
		return "udpv4"
	case LocatorKindUDPv6:
		return "udpv6"
	case LocatorKindTCPv4:
		return "tcpv4"
	case LocatorKindTCPv6:
		return "tcpv6"
	case LocatorKindSHM:
		return "shm"
	default:
		return "invalid"
	}
}

// LocatorFromUDPAddr builds a UDPv4/UDPv6 Locator from a resolved net.UDPAddr.
func LocatorFromUDPAddr(addr *net.UDPAddr) Locator {
	ip4 := addr.IP.To4()
	var loc Locator
	loc.Port = uint32(addr.Port)
	if ip4 != nil {
		loc.Kind = LocatorKindUDPv4
		copy(loc.Address[12:16], ip4)
	} else {
		loc.Kind = LocatorKindUDPv6
		copy(loc.Address[:], addr.IP.To16())
	}
	return loc
}

// UDPAddr converts a UDPv4/UDPv6 Locator back into a net.UDPAddr.
func (l Locator) UDPAddr() (*net.UDPAddr, error) {
	switch l.Kind {
	case LocatorKindUDPv4:
		return &net.UDPAddr{IP: net.IP(append([]byte{}, l.Address[12:16]...)), Port: int(l.Port)}, nil
	case LocatorKindUDPv6:
		return &net.UDPAddr{IP: net.IP(append([]byte{}, l.Address[:]...)), Port: int(l.Port)}, nil
	default:
		return nil, fmt.Errorf("types: locator kind %d has no UDP address form", l.Kind)
	}
}
