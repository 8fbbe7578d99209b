package resumer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePeers(t *testing.T) {
	entries := []PeerEntry{
		{IP: net.ParseIP("1.2.3.4"), Port: 6881, Source: 1, Failcount: 2, Seed: true, PESupport: true, TrustPoints: -1},
		{IP: net.ParseIP("2001:db8::1"), Port: 6882, Source: 16},
	}
	data, err := EncodePeers(entries)
	require.NoError(t, err)

	got, err := DecodePeers(data)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].IP.Equal(entries[0].IP))
	assert.Equal(t, uint16(6881), got[0].Port)
	assert.Equal(t, uint8(1), got[0].Source)
	assert.Equal(t, uint8(2), got[0].Failcount)
	assert.True(t, got[0].Seed)
	assert.True(t, got[0].PESupport)
	assert.Equal(t, int8(-1), got[0].TrustPoints)

	assert.True(t, got[1].IP.Equal(entries[1].IP))
	assert.Equal(t, uint16(6882), got[1].Port)
}

func TestDecodePeersBadAddr(t *testing.T) {
	data, err := EncodePeers([]PeerEntry{{IP: net.ParseIP("1.2.3.4"), Port: 1}})
	require.NoError(t, err)
	// corrupting the address length must fail decoding, not crash
	_, err = DecodePeers([]byte("ld4:addr3:abcee"))
	assert.Error(t, err)
	_, err = DecodePeers(data[:len(data)-1])
	assert.Error(t, err)
}

func TestEncodePeersEmpty(t *testing.T) {
	data, err := EncodePeers(nil)
	require.NoError(t, err)
	got, err := DecodePeers(data)
	require.NoError(t, err)
	assert.Len(t, got, 0)
}
