// Package swarm implements the peer policy of one torrent: it keeps the
// directory of known peers, picks which of them to dial, admits incoming
// connections, schedules block requests and balances free upload credit.
//
// The engine runs on the torrent's event loop. It is not safe for
// concurrent use and none of its methods block.
package swarm

import (
	"math/rand"
	"net"
	"sort"

	"github.com/cenkalti/swarm/internal/addrutil"
	"github.com/cenkalti/swarm/internal/logger"
	"github.com/cenkalti/swarm/internal/peersource"
)

// sweepLimit bounds the records one eviction or candidate sweep may
// examine, so a tick stays cheap no matter how big the directory is.
const sweepLimit = 300

// PeerFlags carry optional attributes into AddPeer.
type PeerFlags uint8

const (
	// PeerSupportsEncryption marks the peer as supporting protocol encryption.
	PeerSupportsEncryption PeerFlags = 1 << iota
	// PeerIsSeed marks the peer as having the complete torrent.
	PeerIsSeed
)

// Policy is the peer policy engine of one torrent.
type Policy struct {
	torrent Torrent

	// known peers, sorted by address
	peers []*Peer

	// cursor of the connect-candidate sweep
	roundRobin int

	availableFreeUpload  int64
	numConnectCandidates int
	numSeeds             int

	// snapshot of torrent.IsFinished, updated by RecalculateConnectCandidates
	finished bool

	// the connection currently using the tracker NAT-check override, if any
	natCheck Conn

	rng *rand.Rand
	log logger.Logger
}

// New returns a Policy for the torrent. The seed drives eviction sweep
// offsets, external-IP randomization and busy-block shuffling; fix it to
// make runs deterministic.
func New(t Torrent, seed int64) *Policy {
	return &Policy{
		torrent:  t,
		finished: t.IsFinished(),
		rng:      rand.New(rand.NewSource(seed)),
		log:      logger.New("swarm"),
	}
}

// NumPeers returns the number of records in the directory.
func (p *Policy) NumPeers() int { return len(p.peers) }

// NumSeeds returns the number of records marked as seeds.
func (p *Policy) NumSeeds() int { return p.numSeeds }

// NumConnectCandidates returns the number of records we could dial right now.
func (p *Policy) NumConnectCandidates() int { return p.numConnectCandidates }

// AvailableFreeUpload returns the undistributed free upload credit.
func (p *Policy) AvailableFreeUpload() int64 { return p.availableFreeUpload }

// Peers returns the directory in address order. The slice is shared;
// callers must not mutate it.
func (p *Policy) Peers() []*Peer { return p.peers }

// lowerBound returns the index of the first record with an address >= ip.
func (p *Policy) lowerBound(ip net.IP) int {
	return sort.Search(len(p.peers), func(i int) bool {
		return addrutil.Compare(p.peers[i].IP, ip) >= 0
	})
}

// upperBound returns the index after the last record with the address ip.
func (p *Policy) upperBound(ip net.IP) int {
	return sort.Search(len(p.peers), func(i int) bool {
		return addrutil.Compare(p.peers[i].IP, ip) > 0
	})
}

// FindPeers returns the records with exactly the given address: at most one
// when multiple connections per IP are forbidden, otherwise a contiguous run.
func (p *Policy) FindPeers(ip net.IP) []*Peer {
	begin := p.lowerBound(ip)
	end := begin
	for end < len(p.peers) && p.peers[end].IP.Equal(ip) {
		end++
	}
	return p.peers[begin:end]
}

func (p *Policy) findPeerAddress(ip net.IP) (*Peer, int) {
	i := p.lowerBound(ip)
	if i < len(p.peers) && p.peers[i].IP.Equal(ip) {
		return p.peers[i], i
	}
	return nil, -1
}

func (p *Policy) findPeerEndpoint(ip net.IP, port uint16) (*Peer, int) {
	for i := p.lowerBound(ip); i < len(p.peers) && p.peers[i].IP.Equal(ip); i++ {
		if p.peers[i].Port == port {
			return p.peers[i], i
		}
	}
	return nil, -1
}

func (p *Policy) hasPeer(pe *Peer) bool {
	for i := p.lowerBound(pe.IP); i < len(p.peers) && p.peers[i].IP.Equal(pe.IP); i++ {
		if p.peers[i] == pe {
			return true
		}
	}
	return false
}

// insertPeer places pe at its sorted position. The round-robin cursor is
// advanced when the insertion point is at or before it, so it keeps
// pointing at the same record.
func (p *Policy) insertPeer(pe *Peer) {
	i := p.upperBound(pe.IP)
	p.peers = append(p.peers, nil)
	copy(p.peers[i+1:], p.peers[i:])
	p.peers[i] = pe
	if i <= p.roundRobin {
		p.roundRobin++
	}
}

func (p *Policy) maxPeerlistSize() int {
	st := p.torrent.Settings()
	if p.torrent.IsPaused() {
		return st.MaxPausedPeerlistSize
	}
	return st.MaxPeerlistSize
}

func (p *Policy) nearCapacity(max int) bool {
	return max > 0 && float64(len(p.peers)) >= float64(max)*0.95
}

func (p *Policy) isConnectCandidate(pe *Peer) bool {
	if pe.Conn != nil || pe.Banned || !pe.Connectable {
		return false
	}
	if pe.Seed && p.finished {
		return false
	}
	if int(pe.Failcount) >= p.torrent.Settings().MaxFailcount {
		return false
	}
	if p.torrent.Session().blockedPort(pe.Port) {
		return false
	}
	return true
}

func (p *Policy) isEraseCandidate(pe *Peer) bool {
	return pe.Conn == nil &&
		pe.LastConnected != 0 &&
		!pe.Banned &&
		!p.isConnectCandidate(pe)
}

func (p *Policy) shouldEraseImmediately(pe *Peer) bool {
	return pe.Source == peersource.ResumeData &&
		pe.Failcount > 0 &&
		!pe.Banned
}

// adjustCandidateCount fixes the candidate counter after a record mutation.
func (p *Policy) adjustCandidateCount(wasCandidate bool, pe *Peer) {
	isCandidate := p.isConnectCandidate(pe)
	if wasCandidate == isCandidate {
		return
	}
	if isCandidate {
		p.numConnectCandidates++
	} else {
		p.numConnectCandidates--
		if p.numConnectCandidates < 0 {
			p.numConnectCandidates = 0
		}
	}
}

// AddPeer adds or refreshes a record from an external peer source and
// returns it. Returns nil when the endpoint is invalid or filtered, or the
// directory could not make room.
func (p *Policy) AddPeer(addr *net.TCPAddr, source peersource.Mask, flags PeerFlags) *Peer {
	p.checkInvariant()
	defer p.checkInvariant()

	if addr == nil || addr.IP == nil || addr.IP.IsUnspecified() || addr.Port == 0 {
		return nil
	}
	ip := canonicalIP(addr.IP)
	port := uint16(addr.Port)
	ses := p.torrent.Session()

	if ses.blockedPort(port) {
		ses.postPeerBlocked(ip)
		p.log.Debugf("not adding %s: port %d is filtered", ip, port)
		return nil
	}
	if ses.blockedIP(ip) {
		ses.postPeerBlocked(ip)
		p.log.Debugf("not adding %s: address is filtered", ip)
		return nil
	}

	var pe *Peer
	if p.torrent.Settings().AllowMultipleConnectionsPerIP {
		pe, _ = p.findPeerEndpoint(ip, port)
	} else {
		pe, _ = p.findPeerAddress(ip)
	}

	if pe == nil {
		max := p.maxPeerlistSize()
		if max > 0 && len(p.peers) >= max {
			// resume-data peers are the least trusted source, don't
			// evict anything to make room for them
			if source == peersource.ResumeData {
				return nil
			}
			p.erasePeers()
			if len(p.peers) >= max {
				return nil
			}
		}
		pe = newPeer(ip, port, true, source)
		if flags&PeerSupportsEncryption != 0 {
			pe.PESupport = true
		}
		if flags&PeerIsSeed != 0 {
			pe.Seed = true
			p.numSeeds++
		}
		pe.InetAS = ses.asForIP(ip)
		p.insertPeer(pe)
		if p.isConnectCandidate(pe) {
			p.numConnectCandidates++
		}
		return pe
	}

	wasCandidate := p.isConnectCandidate(pe)

	pe.Connectable = true
	pe.Port = port
	pe.Source |= source

	// somebody else can reach this peer, give it another chance;
	// only the tracker is trusted for this
	if pe.Failcount > 0 && source == peersource.Tracker {
		pe.Failcount--
	}

	// while connected we know better than the source whether the peer
	// is a seed
	if flags&PeerIsSeed != 0 && pe.Conn == nil {
		if !pe.Seed {
			p.numSeeds++
		}
		pe.Seed = true
	}

	p.adjustCandidateCount(wasCandidate, pe)
	return pe
}

// ErasePeer removes the record from the directory.
func (p *Policy) ErasePeer(pe *Peer) {
	p.checkInvariant()
	defer p.checkInvariant()

	for i := p.lowerBound(pe.IP); i < len(p.peers) && p.peers[i].IP.Equal(pe.IP); i++ {
		if p.peers[i] == pe {
			p.erasePeerAt(i)
			return
		}
	}
}

// erasePeerAt destroys the record at index i. All removals funnel through
// here so references from the piece picker and a live connection are
// cleared before the record goes away.
func (p *Policy) erasePeerAt(i int) {
	pe := p.peers[i]
	if p.torrent.HasPicker() {
		p.torrent.Picker().ClearPeer(pe)
	}
	if pe.Seed {
		p.numSeeds--
	}
	if p.isConnectCandidate(pe) {
		p.numConnectCandidates--
	}
	if pe.Conn != nil {
		pe.Conn.SetPeerInfo(nil)
		pe.Conn = nil
	}
	if i <= p.roundRobin && p.roundRobin > 0 {
		p.roundRobin--
	}
	copy(p.peers[i:], p.peers[i+1:])
	p.peers[len(p.peers)-1] = nil
	p.peers = p.peers[:len(p.peers)-1]
}

// erasePeers is the eviction sweep: while the directory is near its
// capacity, walk up to sweepLimit records from a random offset and drop the
// worst eraseable one.
func (p *Policy) erasePeers() {
	max := p.maxPeerlistSize()
	if max == 0 || len(p.peers) == 0 {
		return
	}

	eraseCandidate := -1
	cursor := p.rng.Intn(len(p.peers))
	for iterations := min(len(p.peers), sweepLimit); iterations > 0; iterations-- {
		if float64(len(p.peers)) < float64(max)*0.95 {
			break
		}
		if cursor == len(p.peers) {
			cursor = 0
		}
		pe := p.peers[cursor]
		current := cursor

		if p.isEraseCandidate(pe) &&
			(eraseCandidate == -1 || !comparePeerErase(p.peers[eraseCandidate], pe)) {
			if p.shouldEraseImmediately(pe) {
				if eraseCandidate > current {
					eraseCandidate--
				}
				p.erasePeerAt(current)
			} else {
				eraseCandidate = current
			}
		}

		cursor++
	}

	if eraseCandidate > -1 {
		p.log.Debugf("evicting peer %s", p.peers[eraseCandidate].IP)
		p.erasePeerAt(eraseCandidate)
	}
}

// findConnectCandidate advances the round-robin cursor up to sweepLimit
// steps and returns the best dialable record, or nil. Opportunistically
// pings one never-pinged peer over DHT and evicts stale records while the
// directory is near capacity.
func (p *Policy) findConnectCandidate(sessionTime int) *Peer {
	candidate := -1
	eraseCandidate := -1

	ses := p.torrent.Session()
	minReconnectTime := p.torrent.Settings().MinReconnectTime

	externalIP := ses.ExternalIP()
	// When seeding, or before we learn our external address, rank against
	// a random address instead so connections don't concentrate on one
	// subnet.
	if p.finished || externalIP == nil {
		externalIP = addrutil.RandomV4(p.rng)
	}

	if p.roundRobin >= len(p.peers) {
		p.roundRobin = 0
	}

	pinged := false
	max := p.maxPeerlistSize()

	for iterations := min(len(p.peers), sweepLimit); iterations > 0; iterations-- {
		if len(p.peers) == 0 {
			break
		}
		if p.roundRobin == len(p.peers) {
			p.roundRobin = 0
		}
		pe := p.peers[p.roundRobin]
		current := p.roundRobin

		// ping one peer per call so the DHT learns about it; many
		// clients don't advertise DHT support
		if ses != nil && ses.DHT != nil && !pinged && !pe.AddedToDHT {
			ses.addDHTNode(pe.IP, pe.Port)
			pe.AddedToDHT = true
			pinged = true
		}

		if p.nearCapacity(max) {
			if p.isEraseCandidate(pe) &&
				(eraseCandidate == -1 || !comparePeerErase(p.peers[eraseCandidate], pe)) {
				if p.shouldEraseImmediately(pe) {
					if eraseCandidate > current {
						eraseCandidate--
					}
					if candidate > current {
						candidate--
					}
					p.erasePeerAt(current)
				} else {
					eraseCandidate = current
				}
			}
		}

		p.roundRobin++

		if !p.isConnectCandidate(pe) {
			continue
		}
		if candidate != -1 && p.comparePeer(p.peers[candidate], pe, externalIP) {
			continue
		}
		if pe.LastConnected != 0 &&
			sessionTime-pe.LastConnected < (int(pe.Failcount)+1)*minReconnectTime {
			continue
		}
		candidate = current
	}

	if eraseCandidate > -1 {
		if candidate > eraseCandidate {
			candidate--
		}
		p.erasePeerAt(eraseCandidate)
	}

	if candidate == -1 {
		return nil
	}
	pe := p.peers[candidate]
	p.log.Debugf("found connect candidate %s:%d failcount: %d last connected: %d ago",
		pe.IP, pe.Port, pe.Failcount, sessionTime-pe.LastConnected)
	return pe
}

// ConnectOnePeer dials the best connect candidate. Returns true if a dial
// was started.
func (p *Policy) ConnectOnePeer(sessionTime int) bool {
	p.checkInvariant()
	defer p.checkInvariant()

	if !p.torrent.WantMorePeers() {
		return false
	}
	pe := p.findConnectCandidate(sessionTime)
	if pe == nil {
		return false
	}

	if !p.torrent.ConnectToPeer(pe) {
		pe.incFailcount()
		return false
	}

	// the record now has a connection attached and stopped being a candidate
	pe.LastConnected = sessionTime
	if c := pe.Conn; c != nil {
		c.Stats().AddPrev(pe.PrevAmountDownload, pe.PrevAmountUpload)
		pe.PrevAmountDownload = 0
		pe.PrevAmountUpload = 0
	}
	p.numConnectCandidates--
	if p.numConnectCandidates < 0 {
		p.numConnectCandidates = 0
	}
	return true
}

// NewConnection admits or rejects an incoming connection. On rejection the
// connection is disconnected with a reason and false is returned.
func (p *Policy) NewConnection(c Conn, sessionTime int) bool {
	p.checkInvariant()
	defer p.checkInvariant()

	t := p.torrent
	ses := t.Session()
	remote := c.Remote()

	if len(t.Conns()) >= t.MaxConnections() && ses.atConnectionLimit() {
		// a connection from the tracker is probably a NAT check, let a
		// single one through regardless of the limits
		tracker := t.TrackerAddr()
		if p.natCheck != nil || tracker == nil || !tracker.Equal(remote.IP) {
			c.Disconnect("too many connections, refusing incoming connection")
			return false
		}
		p.log.Debugf("overriding connection limit for tracker NAT check from %s", remote.IP)
		defer func() {
			if c.PeerInfo() != nil {
				p.natCheck = c
			}
		}()
	}

	var pe *Peer
	if t.Settings().AllowMultipleConnectionsPerIP {
		pe, _ = p.findPeerEndpoint(remote.IP, uint16(remote.Port))
	} else {
		pe, _ = p.findPeerAddress(remote.IP)
	}

	if pe != nil {
		if pe.Banned {
			c.Disconnect("ip address banned, closing")
			return false
		}

		if other := pe.Conn; other != nil {
			// two connections to the same address: this is either a
			// simultaneous connect race, or we connected to ourselves
			if endpointsEqual(other.Remote(), c.LocalAddr()) ||
				endpointsEqual(other.LocalAddr(), c.Remote()) {
				c.Disconnect("connected to ourselves, closing")
				other.Disconnect("connected to ourselves, closing")
				p.ConnectionClosed(other, sessionTime)
				return false
			}
			if !other.IsConnecting() || c.IsOutgoing() {
				c.Disconnect("duplicate connection, closing")
				return false
			}
			// the existing connection is still connecting and the new one
			// is incoming: the incoming one wins
			other.Disconnect("incoming duplicate connection with higher priority, closing")
			p.ConnectionClosed(other, sessionTime)
			// closing the old connection may have evicted the record itself
			if !p.hasPeer(pe) {
				pe = nil
			}
		}
	}
	if pe == nil {
		if len(p.peers) >= t.Settings().MaxPeerlistSize {
			c.Disconnect("peer list size exceeded, refusing incoming connection")
			return false
		}
		// nothing known about this peer yet; it's not connectable until it
		// announces a listen port
		pe = newPeer(canonicalIP(remote.IP), uint16(remote.Port), false, peersource.Incoming)
		pe.InetAS = ses.asForIP(pe.IP)
		p.insertPeer(pe)
	}

	wasCandidate := p.isConnectCandidate(pe)

	c.SetPeerInfo(pe)
	// traffic from previous connections counts toward this one
	c.Stats().AddPrev(pe.PrevAmountDownload, pe.PrevAmountUpload)
	pe.PrevAmountDownload = 0
	pe.PrevAmountUpload = 0
	pe.Conn = c

	if wasCandidate {
		p.numConnectCandidates--
		if p.numConnectCandidates < 0 {
			p.numConnectCandidates = 0
		}
	}
	if !c.FastReconnect() {
		pe.LastConnected = sessionTime
	}
	return true
}

// UpdatePeerPort relocates the record after the peer announces its real
// listen port. Returns false if another connected record already claims the
// new endpoint.
func (p *Policy) UpdatePeerPort(port uint16, pe *Peer, source peersource.Mask) bool {
	p.checkInvariant()
	defer p.checkInvariant()

	if pe.Port == port {
		return true
	}

	if p.torrent.Settings().AllowMultipleConnectionsPerIP {
		if other, i := p.findPeerEndpoint(pe.IP, port); other != nil && other != pe {
			if other.Conn != nil {
				if pe.Conn != nil {
					pe.Conn.Disconnect("duplicate connection")
				}
				return false
			}
			p.erasePeerAt(i)
		}
	}

	wasCandidate := p.isConnectCandidate(pe)
	pe.Port = port
	pe.Source |= source
	p.adjustCandidateCount(wasCandidate, pe)
	return true
}

// ConnectionClosed detaches a closing connection from its record and folds
// its totals into the record. Safe to call more than once per connection.
func (p *Policy) ConnectionClosed(c Conn, sessionTime int) {
	p.checkInvariant()
	defer p.checkInvariant()

	pe := c.PeerInfo()
	if pe == nil || pe.Conn != c {
		return
	}

	pe.Conn = nil
	c.SetPeerInfo(nil)
	if c == p.natCheck {
		p.natCheck = nil
	}
	pe.OptimisticallyUnchoked = false

	// a fast reconnect keeps the timestamp of the original attempt so it
	// cannot be used to defeat the reconnect backoff
	if !c.FastReconnect() {
		pe.LastConnected = sessionTime
	}
	if c.Failed() {
		pe.incFailcount()
	}

	if p.isConnectCandidate(pe) {
		p.numConnectCandidates++
	}

	if p.torrent.Ratio() != 0 {
		p.availableFreeUpload += c.Stats().ShareDiff()
	}

	download, upload := c.Stats().Fold()
	pe.PrevAmountDownload += download
	pe.PrevAmountUpload += upload

	// when seeding, or when the directory is filling up, peers we only
	// know from resume data are not worth keeping around
	if p.torrent.IsSeed() ||
		float64(len(p.peers)) >= float64(p.torrent.Settings().MaxPeerlistSize)*0.9 {
		if pe.Source == peersource.ResumeData {
			p.ErasePeer(pe)
		}
	}
}

// IPFilterUpdated disconnects and erases every record whose address became
// blocked after a filter reload.
func (p *Policy) IPFilterUpdated() {
	p.checkInvariant()
	defer p.checkInvariant()

	ses := p.torrent.Session()
	if ses == nil || ses.IPFilter == nil {
		return
	}
	for i := 0; i < len(p.peers); {
		pe := p.peers[i]
		if !ses.blockedIP(pe.IP) {
			i++
			continue
		}
		if pe.Conn != nil {
			pe.Conn.Disconnect("peer banned by IP filter")
		}
		ses.postPeerBlocked(pe.IP)
		p.erasePeerAt(i)
	}
}

// Unchoked must be called when a peer unchokes us.
func (p *Policy) Unchoked(c Conn) {
	if c.IsInteresting() {
		p.RequestBlocks(c)
		c.SendBlockRequests()
	}
}

// Interested must be called when a peer becomes interested in us. If an
// upload slot is free and the peer has not leeched too much, the session
// unchoker is asked to unchoke it.
func (p *Policy) Interested(c Conn) {
	p.checkInvariant()
	defer p.checkInvariant()

	ses := p.torrent.Session()
	if ses == nil || ses.Unchoker == nil {
		return
	}
	if c.IsChoked() &&
		ses.Unchoker.NumUploads() < ses.Unchoker.MaxUploads() &&
		!c.IgnoreUnchokeSlots() &&
		(p.torrent.Ratio() == 0 ||
			c.Stats().ShareDiff() >= -int64(freeUploadAmount) ||
			p.torrent.IsFinished()) {
		ses.Unchoker.Unchoke(c)
	}
}

// NotInterested must be called when a peer loses interest in us. Surplus
// sent to us by a seed counts as a gift into the free upload pool.
func (p *Policy) NotInterested(c Conn) {
	p.checkInvariant()
	defer p.checkInvariant()

	if p.torrent.Ratio() == 0 {
		return
	}
	diff := c.Stats().ShareDiff()
	if diff > 0 && c.IsSeed() {
		p.availableFreeUpload += diff
		c.Stats().AddFreeUpload(-diff)
	}
}

// PeerIsInteresting must be called when the peer acquires a piece we want.
func (p *Policy) PeerIsInteresting(c Conn) {
	if p.torrent.IsFinished() {
		return
	}
	if c.InHandshake() {
		return
	}
	c.SendInterested()
	if c.PeerChoked() && len(c.AllowedFast()) == 0 {
		return
	}
	p.RequestBlocks(c)
	c.SendBlockRequests()
}

// RecalculateConnectCandidates must be called when torrent.IsFinished
// changes; the finished state is part of the connect-candidate predicate.
func (p *Policy) RecalculateConnectCandidates() {
	p.finished = p.torrent.IsFinished()
	n := 0
	for _, pe := range p.peers {
		if p.isConnectCandidate(pe) {
			n++
		}
	}
	p.numConnectCandidates = n
}

// Pulse runs once per session tick: it rebalances free upload credit and
// evicts stale records.
func (p *Policy) Pulse() {
	p.checkInvariant()
	defer p.checkInvariant()

	if p.torrent.Ratio() != 0 {
		conns := p.torrent.Conns()
		p.availableFreeUpload += collectFreeDownload(conns)
		p.availableFreeUpload = distributeFreeUpload(conns, p.availableFreeUpload)
	}
	p.erasePeers()
}

func canonicalIP(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		return append(net.IP(nil), ip4...)
	}
	return append(net.IP(nil), ip.To16()...)
}

func endpointsEqual(a, b *net.TCPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
