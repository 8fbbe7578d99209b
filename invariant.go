package swarm

import (
	"fmt"

	"github.com/cenkalti/swarm/internal/addrutil"
)

// InvariantChecks enables the internal consistency checker that runs at the
// entry and exit of every mutating operation. Meant for tests and debug
// builds; it walks the whole directory, so leave it off in production.
var InvariantChecks = false

func (p *Policy) checkInvariant() {
	if !InvariantChecks {
		return
	}

	if p.roundRobin < 0 || p.roundRobin > len(p.peers) {
		panic(fmt.Sprintf("swarm: round robin cursor out of range: %d (%d peers)",
			p.roundRobin, len(p.peers)))
	}
	if p.numConnectCandidates < 0 || p.numConnectCandidates > len(p.peers) {
		panic(fmt.Sprintf("swarm: connect candidate count out of range: %d", p.numConnectCandidates))
	}

	multiple := p.torrent.Settings().AllowMultipleConnectionsPerIP
	endpoints := make(map[string]struct{}, len(p.peers))
	seeds := 0
	candidates := 0
	for i, pe := range p.peers {
		if i > 0 {
			cmp := addrutil.Compare(p.peers[i-1].IP, pe.IP)
			if cmp > 0 {
				panic("swarm: directory not sorted by address")
			}
			if cmp == 0 && !multiple {
				panic("swarm: duplicate address in directory")
			}
		}
		key := pe.Addr().String()
		if _, ok := endpoints[key]; ok && multiple {
			panic("swarm: duplicate endpoint in directory")
		}
		endpoints[key] = struct{}{}
		if pe.Seed {
			seeds++
		}
		if p.isConnectCandidate(pe) {
			candidates++
		}
		if pe.Conn != nil && (pe.PrevAmountUpload != 0 || pe.PrevAmountDownload != 0) {
			panic("swarm: connected record has unfolded previous byte counters")
		}
		if pe.Failcount > maxFailcount {
			panic("swarm: failcount overflow")
		}
	}
	if seeds != p.numSeeds {
		panic(fmt.Sprintf("swarm: seed count %d, expected %d", p.numSeeds, seeds))
	}
	if candidates != p.numConnectCandidates {
		panic(fmt.Sprintf("swarm: connect candidate count %d, expected %d",
			p.numConnectCandidates, candidates))
	}
}
