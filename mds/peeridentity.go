package mds

import (
	"strings"

	"github.com/geds-project/geds/internal/xerrors"
)

// ParsePeerIdentity extracts the caller's observed address from a peer
// identity string of the form "ipv4:<addr>" or "ipv6:<addr>" (the shape
// gRPC's peer.Peer.Addr.String() produces), per spec §4.7's
// getConnectionInformation: strip the scheme prefix, preserve IPv6
// brackets, and reject an identity carrying more than one address (a
// multi-homed peer where no single address is authoritative).
func ParsePeerIdentity(identity string) (string, error) {
	if strings.Contains(identity, ",") {
		return "", xerrors.InvalidArgumentf("peer identity %q carries multiple addresses", identity)
	}
	switch {
	case strings.HasPrefix(identity, "ipv4:"):
		return strings.TrimPrefix(identity, "ipv4:"), nil
	case strings.HasPrefix(identity, "ipv6:"):
		return strings.TrimPrefix(identity, "ipv6:"), nil
	default:
		return identity, nil
	}
}
