package swarm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/cenkalti/swarm/internal/peersource"
	"github.com/cenkalti/swarm/internal/resumer/boltdbresumer"
)

func TestSaveLoadPeers(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	res, err := boltdbresumer.New(db, []byte("torrents"))
	require.NoError(t, err)

	ft := newFakeTorrent()
	p := New(ft, 42)
	pe := p.AddPeer(tcpAddr("1.2.3.4:6881"), peersource.Tracker, PeerIsSeed|PeerSupportsEncryption)
	require.NotNil(t, pe)
	require.NotNil(t, p.AddPeer(tcpAddr("[2001:db8::1]:6882"), peersource.DHT, 0))

	// incoming peers without a known listen port are not worth saving
	c := newFakeConn("9.9.9.9:50000")
	require.True(t, p.NewConnection(c, 10))

	require.NoError(t, p.SavePeers(res, "torrent1"))

	p2 := New(newFakeTorrent(), 43)
	n, err := p2.LoadPeers(res, "torrent1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, p2.NumPeers())
	assert.Equal(t, 1, p2.NumSeeds())

	loaded := p2.FindPeers(tcpAddr("1.2.3.4:1").IP)
	require.Len(t, loaded, 1)
	assert.Equal(t, uint16(6881), loaded[0].Port)
	assert.True(t, loaded[0].Seed)
	assert.True(t, loaded[0].PESupport)
	assert.True(t, loaded[0].Connectable)
	assert.Equal(t, peersource.Tracker|peersource.ResumeData, loaded[0].Source)
}

func TestLoadPeersNothingSaved(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	res, err := boltdbresumer.New(db, []byte("torrents"))
	require.NoError(t, err)

	p := New(newFakeTorrent(), 42)
	n, err := p.LoadPeers(res, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
