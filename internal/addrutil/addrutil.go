// Package addrutil has address ordering and distance helpers used when
// ranking peers.
package addrutil

import (
	"bytes"
	"math/bits"
	"math/rand"
	"net"
)

// Compare orders two IP addresses. IPv4 addresses sort before IPv6.
// Returns -1, 0 or 1.
func Compare(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()
	if (a4 == nil) != (b4 == nil) {
		if a4 != nil {
			return -1
		}
		return 1
	}
	if a4 != nil {
		return bytes.Compare(a4, b4)
	}
	return bytes.Compare(a.To16(), b.To16())
}

// CIDRDistance returns the number of address bits outside the longest
// common prefix of a and b. Zero means equal addresses, smaller means
// topologically nearer. Mixed-family pairs are compared in 16-byte form.
func CIDRDistance(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()
	if a4 != nil && b4 != nil {
		return 32 - commonPrefix(a4, b4)
	}
	return 128 - commonPrefix(a.To16(), b.To16())
}

func commonPrefix(a, b []byte) int {
	if len(a) != len(b) {
		return 0
	}
	var n int
	for i := range a {
		x := a[i] ^ b[i]
		if x != 0 {
			return n + bits.LeadingZeros8(x)
		}
		n += 8
	}
	return n
}

var localNets = []net.IPNet{
	{IP: net.IPv4(10, 0, 0, 0).To4(), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(172, 16, 0, 0).To4(), Mask: net.CIDRMask(12, 32)},
	{IP: net.IPv4(192, 168, 0, 0).To4(), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(169, 254, 0, 0).To4(), Mask: net.CIDRMask(16, 32)},
}

// IsLocal reports whether ip belongs to a private or link-local network.
func IsLocal(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		for i := range localNets {
			if localNets[i].Contains(ip4) {
				return true
			}
		}
		return false
	}
	return ip.IsLinkLocalUnicast() || ip.IsLoopback()
}

// RandomV4 returns a random IPv4 address drawn from rng.
func RandomV4(rng *rand.Rand) net.IP {
	b := make(net.IP, 4)
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return b
}
