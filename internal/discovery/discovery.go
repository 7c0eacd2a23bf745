// Package discovery wraps LAN service discovery so the rest of the daemon
// never imports an mDNS library directly: it advertises this instance and
// streams sightings of others as plain Go values.
package discovery

import (
	"net/netip"

	"github.com/google/uuid"
)

// ServiceType is the mDNS service type lansyncd instances advertise under.
const ServiceType = "_lansyncd._tcp"

// Domain is the mDNS domain searched, the standard multicast-DNS zone.
const Domain = "local."

// Sighting is one observation of a peer on the network, either this
// instance's own advertisement or another instance spotted via Browse.
type Sighting struct {
	PeerID   uuid.UUID
	Hostname string
	Addr     netip.AddrPort
	SyncDirs []string
}
