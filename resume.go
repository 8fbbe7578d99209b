package swarm

import (
	"net"

	"github.com/cenkalti/swarm/internal/peersource"
	"github.com/cenkalti/swarm/internal/resumer"
)

// SavePeers writes the connectable records of the directory through the
// Resumer so a later session starts with a warm peer list.
func (p *Policy) SavePeers(res resumer.Resumer, torrentID string) error {
	entries := make([]resumer.PeerEntry, 0, len(p.peers))
	for _, pe := range p.peers {
		if !pe.Connectable || pe.Banned {
			continue
		}
		entries = append(entries, resumer.PeerEntry{
			IP:          pe.IP,
			Port:        pe.Port,
			Source:      uint8(pe.Source),
			Failcount:   pe.Failcount,
			Seed:        pe.Seed,
			PESupport:   pe.PESupport,
			TrustPoints: pe.TrustPoints,
		})
	}
	data, err := resumer.EncodePeers(entries)
	if err != nil {
		return err
	}
	return res.WritePeers(torrentID, data)
}

// LoadPeers seeds the directory from peers saved by a previous session.
// Loaded records enter with the resume-data source, which makes them the
// first to go when the directory needs room. Returns the number of records
// added.
func (p *Policy) LoadPeers(res resumer.Resumer, torrentID string) (int, error) {
	data, err := res.ReadPeers(torrentID)
	if err != nil || data == nil {
		return 0, err
	}
	entries, err := resumer.DecodePeers(data)
	if err != nil {
		return 0, err
	}
	var n int
	for _, e := range entries {
		var flags PeerFlags
		if e.Seed {
			flags |= PeerIsSeed
		}
		if e.PESupport {
			flags |= PeerSupportsEncryption
		}
		addr := &net.TCPAddr{IP: e.IP, Port: int(e.Port)}
		pe := p.AddPeer(addr, peersource.ResumeData, flags)
		if pe == nil {
			continue
		}
		// the sources the peer was known from last session still apply
		pe.Source |= peersource.Mask(e.Source)
		pe.TrustPoints = e.TrustPoints
		// carry the failure history only for records we know from nowhere
		// else; it keeps them first in line for eviction
		if pe.Source == peersource.ResumeData {
			wasCandidate := p.isConnectCandidate(pe)
			pe.Failcount = e.Failcount
			p.adjustCandidateCount(wasCandidate, pe)
		}
		n++
	}
	return n, nil
}
