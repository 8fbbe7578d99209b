package swarm

import (
	"net"

	"github.com/cenkalti/swarm/internal/bitfield"
	"github.com/cenkalti/swarm/internal/stats"
)

// Block identifies one block inside a piece, the unit of request on the wire.
type Block struct {
	Piece uint32
	Index uint32
}

// Speed is the observed transfer speed class of a peer.
type Speed int

const (
	Slow Speed = iota
	Medium
	Fast
)

// Torrent is the swarm-owning side of the engine. One Policy serves one
// Torrent; calls arrive on the torrent's event loop.
type Torrent interface {
	Session() *Session
	Settings() *Settings
	IsPaused() bool
	IsFinished() bool
	IsSeed() bool
	HasPicker() bool
	Picker() PiecePicker
	// Ratio is the target share ratio. Zero means unlimited and disables
	// the free-upload accountant.
	Ratio() float64
	// Conns lists the live peer connections of the torrent.
	Conns() []Conn
	MaxConnections() int
	// ConnectToPeer dials pe. On success the implementation must attach
	// the new connection to the record: set pe.Conn and call
	// Conn.SetPeerInfo(pe). The engine folds the record's previous byte
	// counters into the connection afterwards. Returns false if the dial
	// could not be started.
	ConnectToPeer(pe *Peer) bool
	WantMorePeers() bool
	PieceLength() int
	// TrackerAddr is the address of the torrent's current tracker, or nil.
	// One incoming connection at a time from this address bypasses the
	// connection limits (tracker NAT check).
	TrackerAddr() net.IP
}

// PiecePicker chooses which blocks to download next. The picker tracks
// block-to-peer assignments; the engine must call ClearPeer before a record
// is destroyed.
type PiecePicker interface {
	// PickPieces returns up to numBlocks candidate blocks the peer has,
	// selected from the pieces set in the mask. With preferWholePieces > 0
	// the picker may return more blocks to complete whole pieces.
	PickPieces(mask *bitfield.Bitfield, numBlocks int, preferWholePieces int, from *Peer, speed Speed, options int, suggested []uint32) []Block
	// IsRequested reports whether the block is being downloaded from some peer.
	IsRequested(b Block) bool
	// NumPeers returns the number of peers the block is requested from.
	NumPeers(b Block) int
	// ClearPeer removes all block assignments of the record.
	ClearPeer(pe *Peer)
}

// Conn is one live peer connection. The engine never owns connections; it
// holds them through the record's Conn field and drops the reference when
// ConnectionClosed is called.
type Conn interface {
	Remote() *net.TCPAddr
	LocalAddr() *net.TCPAddr
	// Disconnect starts closing the connection. The engine will still
	// receive a ConnectionClosed call for it later.
	Disconnect(reason string)

	SendInterested()
	SendBlockRequests()
	AddRequest(b Block)

	IsChoked() bool         // we choke the peer
	PeerChoked() bool       // the peer chokes us
	PeerInterested() bool   // the peer wants our pieces
	IsInteresting() bool    // we want the peer's pieces
	IsOutgoing() bool       // we dialed the connection
	IsSeed() bool
	IsConnecting() bool
	InHandshake() bool
	Failed() bool
	FastReconnect() bool
	IgnoreUnchokeSlots() bool
	NoDownload() bool

	Speed() Speed
	DownloadPayloadRate() int // bytes/second
	PreferWholePieces() int   // explicit override, 0 = decide from rate
	PickerOptions() int
	DesiredQueueSize() int
	DownloadQueue() []Block
	RequestQueue() []Block
	AllowedFast() []uint32
	SuggestedPieces() []uint32
	Bitfield() *bitfield.Bitfield
	Stats() *stats.Transfer

	SetPeerInfo(pe *Peer)
	PeerInfo() *Peer
}
