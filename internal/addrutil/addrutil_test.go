package addrutil

import (
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, Compare(net.ParseIP("1.2.3.4"), net.ParseIP("1.2.3.4")))
	assert.Equal(t, -1, Compare(net.ParseIP("1.2.3.4"), net.ParseIP("1.2.3.5")))
	assert.Equal(t, 1, Compare(net.ParseIP("2.0.0.0"), net.ParseIP("1.255.255.255")))

	// v4 sorts before v6
	assert.Equal(t, -1, Compare(net.ParseIP("255.255.255.255"), net.ParseIP("::1")))
	assert.Equal(t, 1, Compare(net.ParseIP("2001:db8::1"), net.ParseIP("1.2.3.4")))

	// a v4-mapped v6 address equals its v4 form
	assert.Equal(t, 0, Compare(net.ParseIP("::ffff:1.2.3.4"), net.ParseIP("1.2.3.4")))
}

func TestCIDRDistance(t *testing.T) {
	assert.Equal(t, 0, CIDRDistance(net.ParseIP("1.2.3.4"), net.ParseIP("1.2.3.4")))
	assert.Equal(t, 8, CIDRDistance(net.ParseIP("1.2.3.0"), net.ParseIP("1.2.3.255")))
	assert.Equal(t, 32, CIDRDistance(net.ParseIP("0.0.0.0"), net.ParseIP("255.0.0.0")))
	assert.Equal(t, 1, CIDRDistance(net.ParseIP("1.2.3.4"), net.ParseIP("1.2.3.5")))

	near := CIDRDistance(net.ParseIP("99.99.99.1"), net.ParseIP("99.99.99.99"))
	far := CIDRDistance(net.ParseIP("99.99.99.1"), net.ParseIP("1.2.3.4"))
	assert.Less(t, near, far)

	// mixed families compare in 16-byte form
	assert.Equal(t, 0, CIDRDistance(net.ParseIP("::ffff:1.2.3.4"), net.ParseIP("1.2.3.4")))
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal(net.ParseIP("10.0.0.1")))
	assert.True(t, IsLocal(net.ParseIP("172.16.5.5")))
	assert.True(t, IsLocal(net.ParseIP("192.168.1.1")))
	assert.True(t, IsLocal(net.ParseIP("169.254.0.1")))
	assert.False(t, IsLocal(net.ParseIP("172.32.0.1")))
	assert.False(t, IsLocal(net.ParseIP("8.8.8.8")))
	assert.True(t, IsLocal(net.ParseIP("fe80::1")))
	assert.False(t, IsLocal(net.ParseIP("2001:db8::1")))
}

func TestRandomV4(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := RandomV4(rng)
	b := RandomV4(rng)
	assert.Len(t, a, 4)
	assert.NotEqual(t, a.String(), b.String())

	// same seed, same sequence
	rng2 := rand.New(rand.NewSource(1))
	assert.Equal(t, a.String(), RandomV4(rng2).String())
}
