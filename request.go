package swarm

import (
	"github.com/cenkalti/swarm/internal/bitfield"
)

// RequestBlocks fills the peer's request window with blocks from the piece
// picker. Called when a peer is unchoked and interesting, or gains room in
// its queue.
//
// Blocks that are already being downloaded from other peers are collected
// separately; when the window still has room, one of them is requested
// again from this peer so the last pieces of a torrent don't hang on a
// single slow connection.
func (p *Policy) RequestBlocks(c Conn) {
	t := p.torrent
	if t.IsSeed() {
		return
	}
	if c.NoDownload() {
		return
	}
	if !t.HasPicker() {
		return
	}

	numRequests := c.DesiredQueueSize() - len(c.DownloadQueue()) - len(c.RequestQueue())
	if numRequests <= 0 {
		return
	}

	picker := t.Picker()

	preferWholePieces := c.PreferWholePieces()
	if preferWholePieces == 0 {
		// a peer that downloads a piece faster than the threshold gets
		// whole pieces; it will finish them before they go stale
		if c.DownloadPayloadRate()*t.Settings().WholePiecesThreshold > t.PieceLength() {
			preferWholePieces = 1
		}
	}

	// while the peer chokes us we may only request from its allowed-fast set
	bits := c.Bitfield()
	mask := bits
	if c.PeerChoked() {
		mask = bitfield.New(bits.Len())
		for _, i := range c.AllowedFast() {
			if bits.Test(i) {
				mask.Set(i)
			}
		}
	}

	interesting := picker.PickPieces(mask, numRequests, preferWholePieces,
		c.PeerInfo(), c.Speed(), c.PickerOptions(), c.SuggestedPieces())

	// blocks some other peer is already downloading
	var busyBlocks []Block

	for _, b := range interesting {
		// in whole-piece mode the picker overshoots on purpose, take it all
		if preferWholePieces == 0 && numRequests <= 0 {
			break
		}
		if picker.IsRequested(b) {
			if numRequests <= 0 {
				break
			}
			if inQueue(c.DownloadQueue(), b) || inQueue(c.RequestQueue(), b) {
				continue
			}
			busyBlocks = append(busyBlocks, b)
			continue
		}
		if inQueue(c.DownloadQueue(), b) || inQueue(c.RequestQueue(), b) {
			continue
		}
		c.AddRequest(b)
		numRequests--
	}

	if len(busyBlocks) == 0 || numRequests <= 0 {
		return
	}

	// Race one busy block: shuffle first so ties break randomly, then take
	// the one with the fewest downloaders.
	p.rng.Shuffle(len(busyBlocks), func(i, j int) {
		busyBlocks[i], busyBlocks[j] = busyBlocks[j], busyBlocks[i]
	})
	best := busyBlocks[0]
	for _, b := range busyBlocks[1:] {
		if picker.NumPeers(b) < picker.NumPeers(best) {
			best = b
		}
	}
	c.AddRequest(best)
}

func inQueue(queue []Block, b Block) bool {
	for _, q := range queue {
		if q == b {
			return true
		}
	}
	return false
}
