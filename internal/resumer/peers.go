package resumer

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/zeebo/bencode"
)

// PeerEntry is one saved peer. Addresses are stored in the compact form
// trackers use: 4 or 16 address bytes followed by a big-endian port.
type PeerEntry struct {
	IP          net.IP
	Port        uint16
	Source      uint8
	Failcount   uint8
	Seed        bool
	PESupport   bool
	TrustPoints int8
}

type peerDict struct {
	Addr        []byte `bencode:"addr"`
	Source      int64  `bencode:"source"`
	Failcount   int64  `bencode:"failcount"`
	Seed        bool   `bencode:"seed"`
	PESupport   bool   `bencode:"pe"`
	TrustPoints int64  `bencode:"trust"`
}

var errBadCompactAddr = errors.New("resumer: bad compact address")

// EncodePeers serializes entries with bencode.
func EncodePeers(entries []PeerEntry) ([]byte, error) {
	dicts := make([]peerDict, 0, len(entries))
	for _, e := range entries {
		ip := e.IP.To4()
		if ip == nil {
			ip = e.IP.To16()
		}
		if ip == nil {
			return nil, errBadCompactAddr
		}
		addr := make([]byte, len(ip)+2)
		copy(addr, ip)
		binary.BigEndian.PutUint16(addr[len(ip):], e.Port)
		dicts = append(dicts, peerDict{
			Addr:        addr,
			Source:      int64(e.Source),
			Failcount:   int64(e.Failcount),
			Seed:        e.Seed,
			PESupport:   e.PESupport,
			TrustPoints: int64(e.TrustPoints),
		})
	}
	return bencode.EncodeBytes(dicts)
}

// DecodePeers parses data written by EncodePeers.
func DecodePeers(data []byte) ([]PeerEntry, error) {
	var dicts []peerDict
	if err := bencode.DecodeBytes(data, &dicts); err != nil {
		return nil, err
	}
	entries := make([]PeerEntry, 0, len(dicts))
	for _, d := range dicts {
		iplen := len(d.Addr) - 2
		if iplen != net.IPv4len && iplen != net.IPv6len {
			return nil, errBadCompactAddr
		}
		entries = append(entries, PeerEntry{
			IP:          net.IP(d.Addr[:iplen]),
			Port:        binary.BigEndian.Uint16(d.Addr[iplen:]),
			Source:      uint8(d.Source),
			Failcount:   uint8(d.Failcount),
			Seed:        d.Seed,
			PESupport:   d.PESupport,
			TrustPoints: int8(d.TrustPoints),
		})
	}
	return entries, nil
}
