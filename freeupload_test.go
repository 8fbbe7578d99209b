package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The pulse collects surplus from peers that won't trade it back and
// spreads it over the peers that are behind.
func TestPulseRedistributesFreeUpload(t *testing.T) {
	ft := newFakeTorrent()
	ft.ratio = 2.0
	p := New(ft, 42)

	p1 := newFakeConn("1.1.1.1:1000")
	p1.peerInterested = true
	p1.transfer.AddPayloadDownloaded(100) // share diff -100

	p2 := newFakeConn("2.2.2.2:2000")
	p2.transfer.AddPayloadUploaded(80) // share diff +80, not interested

	p3 := newFakeConn("3.3.3.3:3000")
	p3.peerInterested = true
	p3.transfer.AddPayloadDownloaded(40) // share diff -40

	ft.conns = []Conn{p1, p2, p3}
	p.Pulse()

	// 80 collected from p2; total diff is -60, so (80-60)/2 = 10 each
	assert.Equal(t, int64(-80), p2.transfer.FreeUpload())
	assert.Equal(t, int64(10), p1.transfer.FreeUpload())
	assert.Equal(t, int64(10), p3.transfer.FreeUpload())
	assert.Equal(t, int64(60), p.AvailableFreeUpload())
}

func TestPulseInfiniteRatioSkipsAccounting(t *testing.T) {
	ft := newFakeTorrent()
	ft.ratio = 0
	p := New(ft, 42)

	c := newFakeConn("2.2.2.2:2000")
	c.transfer.AddPayloadUploaded(80)
	ft.conns = []Conn{c}

	p.Pulse()
	assert.Equal(t, int64(0), c.transfer.FreeUpload())
	assert.Equal(t, int64(0), p.AvailableFreeUpload())
}

func TestCollectFreeDownload(t *testing.T) {
	interested := newFakeConn("1.1.1.1:1000")
	interested.peerInterested = true
	interested.transfer.AddPayloadUploaded(50)

	behind := newFakeConn("2.2.2.2:2000")
	behind.transfer.AddPayloadDownloaded(10)

	surplus := newFakeConn("3.3.3.3:3000")
	surplus.transfer.AddPayloadUploaded(30)

	got := collectFreeDownload([]Conn{interested, behind, surplus})
	assert.Equal(t, int64(30), got)
	assert.Equal(t, int64(0), interested.transfer.FreeUpload())
	assert.Equal(t, int64(0), behind.transfer.FreeUpload())
	assert.Equal(t, int64(-30), surplus.transfer.FreeUpload())
}

func TestDistributeFreeUploadPositiveTotal(t *testing.T) {
	ahead := newFakeConn("1.1.1.1:1000")
	ahead.transfer.AddPayloadUploaded(300)

	behind := newFakeConn("2.2.2.2:2000")
	behind.peerInterested = true
	behind.transfer.AddPayloadDownloaded(100)

	// total diff is +200: the pool is capped by it, one receiver
	left := distributeFreeUpload([]Conn{ahead, behind}, 500)
	assert.Equal(t, int64(300), left)
	assert.Equal(t, int64(200), behind.transfer.FreeUpload())
}

func TestDistributeFreeUploadNoReceivers(t *testing.T) {
	c := newFakeConn("1.1.1.1:1000")
	c.transfer.AddPayloadUploaded(100)
	assert.Equal(t, int64(500), distributeFreeUpload([]Conn{c}, 500))
	assert.Equal(t, int64(7), distributeFreeUpload(nil, 7))
	assert.Equal(t, int64(-3), distributeFreeUpload(nil, -3))
}

// A seed that loses interest gifts us its surplus.
func TestNotInterestedSeedGift(t *testing.T) {
	ft := newFakeTorrent()
	ft.ratio = 1.5
	p := New(ft, 42)

	c := newFakeConn("1.1.1.1:1000")
	c.seed = true
	c.transfer.AddPayloadUploaded(100)

	p.NotInterested(c)
	assert.Equal(t, int64(100), p.AvailableFreeUpload())
	assert.Equal(t, int64(-100), c.transfer.FreeUpload())

	// non-seeds keep their balance
	d := newFakeConn("2.2.2.2:2000")
	d.transfer.AddPayloadUploaded(100)
	p.NotInterested(d)
	assert.Equal(t, int64(100), p.AvailableFreeUpload())
	assert.Equal(t, int64(0), d.transfer.FreeUpload())
}

func TestConnectionClosedFoldsShareDiff(t *testing.T) {
	ft := newFakeTorrent()
	ft.ratio = 2.0
	p := New(ft, 42)

	c := newFakeConn("1.2.3.4:50000")
	assert.True(t, p.NewConnection(c, 100))
	c.transfer.AddPayloadUploaded(500)
	c.transfer.AddPayloadDownloaded(200)

	p.ConnectionClosed(c, 150)
	assert.Equal(t, int64(300), p.AvailableFreeUpload())
}

func TestInterestedAsksForUnchoke(t *testing.T) {
	ft := newFakeTorrent()
	unchoker := &fakeUnchoker{maxUploads: 4}
	ft.session.Unchoker = unchoker
	p := New(ft, 42)

	c := newFakeConn("1.1.1.1:1000")
	c.peerInterested = true
	p.Interested(c)
	assert.Len(t, unchoker.unchoked, 1)
}

func TestInterestedNoFreeSlots(t *testing.T) {
	ft := newFakeTorrent()
	unchoker := &fakeUnchoker{numUploads: 4, maxUploads: 4}
	ft.session.Unchoker = unchoker
	p := New(ft, 42)

	c := newFakeConn("1.1.1.1:1000")
	p.Interested(c)
	assert.Empty(t, unchoker.unchoked)
}

// With a share ratio set, a peer whose balance is deep below the free
// upload allowance doesn't get a slot until the torrent finishes.
func TestInterestedShareDiffGate(t *testing.T) {
	ft := newFakeTorrent()
	ft.ratio = 2.0
	unchoker := &fakeUnchoker{maxUploads: 4}
	ft.session.Unchoker = unchoker
	p := New(ft, 42)

	c := newFakeConn("1.1.1.1:1000")
	c.transfer.AddPayloadDownloaded(int64(freeUploadAmount) + 100000)
	p.Interested(c)
	assert.Empty(t, unchoker.unchoked)

	ft.finished = true
	p.Interested(c)
	assert.Len(t, unchoker.unchoked, 1)
}

func TestInterestedIgnoreUnchokeSlots(t *testing.T) {
	ft := newFakeTorrent()
	unchoker := &fakeUnchoker{maxUploads: 4}
	ft.session.Unchoker = unchoker
	p := New(ft, 42)

	c := newFakeConn("1.1.1.1:1000")
	c.ignoreUnchokeSlots = true
	p.Interested(c)
	assert.Empty(t, unchoker.unchoked)
}
