package swarm

import (
	"net"

	"github.com/cenkalti/swarm/internal/addrutil"
	"github.com/cenkalti/swarm/internal/peersource"
)

// maxFailcount is the saturation point of a record's Failcount: the largest
// value that fits in 5 bits.
const maxFailcount = 31

// Peer is one entry of the directory: everything known about a remote peer,
// connected or not. Records are owned by the Policy; the Conn field is a
// non-owning back-reference that the connection clears through
// ConnectionClosed before it goes away.
type Peer struct {
	IP   net.IP
	Port uint16

	// Conn is set while a live connection is attached to this record.
	Conn Conn

	// Byte totals from previous connections on this record. Zero while
	// Conn is set; the live totals live on the connection.
	PrevAmountUpload   int64
	PrevAmountDownload int64

	// Session time (seconds) of the last connect or connection attempt.
	// Zero means the peer was never tried.
	LastConnected int

	// Set by the session unchoker.
	LastOptimisticallyUnchoked int
	OptimisticallyUnchoked     bool

	// Consecutive failed connection attempts. Saturates at 31.
	Failcount uint8

	// Hash failures attributed to this peer.
	Hashfails uint8

	// Reserved for future peer scoring. Carried in resume data.
	TrustPoints int8

	// Reconnects soon after a drop. Maintained by the connection layer.
	FastReconnects uint8

	Source peersource.Mask

	// Autonomous system of the address, 0 when unknown.
	InetAS int

	// Connectable is false for incoming peers until they announce a
	// listen port.
	Connectable bool

	Seed     bool
	Banned   bool
	OnParole bool

	// Peer supports protocol encryption.
	PESupport bool

	// A DHT bootstrap ping has been sent to this peer.
	AddedToDHT bool

	IsV6 bool
}

func newPeer(ip net.IP, port uint16, connectable bool, source peersource.Mask) *Peer {
	return &Peer{
		IP:          ip,
		Port:        port,
		Connectable: connectable,
		Source:      source,
		IsV6:        ip.To4() == nil,
	}
}

// Addr returns the peer's TCP endpoint.
func (p *Peer) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: p.IP, Port: int(p.Port)}
}

// TotalDownload returns the payload received from this peer over all
// connections.
func (p *Peer) TotalDownload() int64 {
	if p.Conn != nil {
		return p.Conn.Stats().TotalPayloadDownload()
	}
	return p.PrevAmountDownload
}

// TotalUpload returns the payload sent to this peer over all connections.
func (p *Peer) TotalUpload() int64 {
	if p.Conn != nil {
		return p.Conn.Stats().TotalPayloadUpload()
	}
	return p.PrevAmountUpload
}

func (p *Peer) incFailcount() {
	if p.Failcount < maxFailcount {
		p.Failcount++
	}
}

// comparePeerErase returns true if lhs is the better record to evict.
func comparePeerErase(lhs, rhs *Peer) bool {
	lhsResumeOnly := lhs.Source == peersource.ResumeData
	rhsResumeOnly := rhs.Source == peersource.ResumeData
	if lhsResumeOnly != rhsResumeOnly {
		return lhsResumeOnly
	}
	return lhs.Failcount > rhs.Failcount
}

// comparePeer returns true if lhs is the better peer to dial.
func (p *Policy) comparePeer(lhs, rhs *Peer, externalIP net.IP) bool {
	if lhs.Failcount != rhs.Failcount {
		return lhs.Failcount < rhs.Failcount
	}

	lhsLocal := addrutil.IsLocal(lhs.IP)
	rhsLocal := addrutil.IsLocal(rhs.IP)
	if lhsLocal != rhsLocal {
		return lhsLocal
	}

	if lhs.LastConnected != rhs.LastConnected {
		return lhs.LastConnected < rhs.LastConnected
	}

	lhsRank := lhs.Source.Rank()
	rhsRank := rhs.Source.Rank()
	if lhsRank != rhsRank {
		return lhsRank > rhsRank
	}

	// Don't bias fast networks when seeding.
	if !p.finished && p.torrent.Session().hasASNumDB() {
		if lhs.InetAS != rhs.InetAS {
			return lhs.InetAS > rhs.InetAS
		}
	}

	return addrutil.CIDRDistance(externalIP, lhs.IP) < addrutil.CIDRDistance(externalIP, rhs.IP)
}
