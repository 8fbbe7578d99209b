package swarm

import (
	"fmt"
	"net"

	"github.com/nictuku/dht"

	"github.com/cenkalti/swarm/internal/alert"
	"github.com/cenkalti/swarm/internal/ipfilter"
	"github.com/cenkalti/swarm/internal/portfilter"
)

// ASDatabase maps IP addresses to autonomous system numbers. Used only as a
// coarse topology bucket when ranking connect candidates.
type ASDatabase interface {
	ASForIP(ip net.IP) int
}

// Unchoker is the session-wide upload slot scheduler. The engine never
// unchokes peers itself; it asks the Unchoker when an interest transition
// warrants a slot.
type Unchoker interface {
	NumUploads() int
	MaxUploads() int
	Unchoke(c Conn)
}

// ConnectionCounter reports the session-wide connection load.
type ConnectionCounter interface {
	NumConnections() int
	MaxConnections() int
}

// DHTNode is the part of a DHT node the engine talks to.
type DHTNode interface {
	// AddNode pings the "host:port" endpoint so the node enters the
	// routing table if it answers.
	AddNode(address string)
}

// the stock DHT implementation satisfies DHTNode
var _ DHTNode = (*dht.DHT)(nil)

// Session bundles the session-global collaborators shared by all torrents.
// All fields are optional; a nil field disables the corresponding feature.
type Session struct {
	IPFilter    *ipfilter.Filter
	PortFilter  *portfilter.Filter
	Alerts      *alert.Queue
	DHT         DHTNode
	ASNums      ASDatabase
	Unchoker    Unchoker
	Connections ConnectionCounter

	externalIP net.IP
}

// SetExternalIP records the address our peers see us at, typically learned
// from a tracker response.
func (s *Session) SetExternalIP(ip net.IP) { s.externalIP = ip }

// ExternalIP returns the learned external address, or nil.
func (s *Session) ExternalIP() net.IP {
	if s == nil {
		return nil
	}
	return s.externalIP
}

func (s *Session) blockedIP(ip net.IP) bool {
	return s != nil && s.IPFilter != nil && s.IPFilter.Access(ip)&ipfilter.Blocked != 0
}

func (s *Session) blockedPort(port uint16) bool {
	return s != nil && s.PortFilter != nil && s.PortFilter.Access(port)&portfilter.Blocked != 0
}

func (s *Session) postPeerBlocked(ip net.IP) {
	if s == nil || !s.Alerts.ShouldPost(alert.IPBlock) {
		return
	}
	s.Alerts.Post(alert.PeerBlocked{IP: ip})
}

// addDHTNode pings the endpoint so the DHT learns about the peer. Many
// clients do not advertise DHT support; pinging is the only way to find out.
func (s *Session) addDHTNode(ip net.IP, port uint16) {
	if s == nil || s.DHT == nil {
		return
	}
	s.DHT.AddNode(fmt.Sprintf("%s:%d", ip, port))
}

func (s *Session) hasASNumDB() bool { return s != nil && s.ASNums != nil }

func (s *Session) asForIP(ip net.IP) int {
	if s == nil || s.ASNums == nil {
		return 0
	}
	return s.ASNums.ASForIP(ip)
}

func (s *Session) atConnectionLimit() bool {
	if s == nil || s.Connections == nil {
		return false
	}
	return s.Connections.NumConnections() >= s.Connections.MaxConnections()
}
