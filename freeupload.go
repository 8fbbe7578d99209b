package swarm

// freeUploadAmount is the upload credit a peer may consume beyond its
// share balance before the engine stops asking for unchoke slots on its
// behalf.
const freeUploadAmount = 4 * 16 * 1024

// collectFreeDownload reclaims surplus from peers that are not interested
// in us. A peer with a positive share balance and no interest is not going
// to trade it back, so the surplus goes into the shared pool. Returns the
// reclaimed amount.
func collectFreeDownload(conns []Conn) int64 {
	var accumulator int64
	for _, c := range conns {
		diff := c.Stats().ShareDiff()
		if c.PeerInterested() || diff <= 0 {
			continue
		}
		c.Stats().AddFreeUpload(-diff)
		accumulator += diff
	}
	return accumulator
}

// distributeFreeUpload spreads freeUpload over the peers that are
// interested in us and behind on their share balance, so the torrent's
// share ratio is maintained. Returns the credit left after distribution.
func distributeFreeUpload(conns []Conn, freeUpload int64) int64 {
	if freeUpload <= 0 {
		return freeUpload
	}
	var numPeers int64
	var totalDiff int64
	for _, c := range conns {
		diff := c.Stats().ShareDiff()
		totalDiff += diff
		if !c.PeerInterested() || diff >= 0 {
			continue
		}
		numPeers++
	}
	if numPeers == 0 {
		return freeUpload
	}

	var uploadShare int64
	if totalDiff >= 0 {
		uploadShare = min(freeUpload, totalDiff) / numPeers
	} else {
		uploadShare = (freeUpload + totalDiff) / numPeers
	}
	if uploadShare < 0 {
		return freeUpload
	}

	for _, c := range conns {
		if !c.PeerInterested() || c.Stats().ShareDiff() >= 0 {
			continue
		}
		c.Stats().AddFreeUpload(uploadShare)
		freeUpload -= uploadShare
	}
	return freeUpload
}
