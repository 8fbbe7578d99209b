package ipfilter

import (
	"encoding/binary"
	"net"
	"sort"
)

// key is a 128-bit address value. IPv4 addresses use hi == 0.
type key struct {
	hi, lo uint64
}

func toKey(ip net.IP) (k key, v6 bool, err error) {
	if ip4 := ip.To4(); ip4 != nil {
		return key{lo: uint64(binary.BigEndian.Uint32(ip4))}, false, nil
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return key{}, false, errInvalidRule
	}
	return key{
		hi: binary.BigEndian.Uint64(ip16[:8]),
		lo: binary.BigEndian.Uint64(ip16[8:]),
	}, true, nil
}

func (k key) less(o key) bool {
	if k.hi != o.hi {
		return k.hi < o.hi
	}
	return k.lo < o.lo
}

func (k key) pred() key {
	if k.lo == 0 {
		return key{hi: k.hi - 1, lo: ^uint64(0)}
	}
	return key{hi: k.hi, lo: k.lo - 1}
}

func (k key) succ() key {
	if k.lo == ^uint64(0) {
		return key{hi: k.hi + 1}
	}
	return key{hi: k.hi, lo: k.lo + 1}
}

type ipRange struct {
	first, last key
	access     Access
}

// rangeList is sorted by first and holds disjoint ranges.
type rangeList []ipRange

func (l rangeList) lookup(k key) Access {
	// first range with last >= k
	i := sort.Search(len(l), func(i int) bool { return !l[i].last.less(k) })
	if i < len(l) && !k.less(l[i].first) {
		return l[i].access
	}
	return 0
}

// insert overwrites the span [r.first, r.last] with r, truncating or
// splitting existing ranges that overlap it.
func (l rangeList) insert(r ipRange) rangeList {
	out := make(rangeList, 0, len(l)+2)
	for _, e := range l {
		if e.last.less(r.first) || r.last.less(e.first) {
			out = append(out, e)
			continue
		}
		// e overlaps r; keep the parts outside r
		if e.first.less(r.first) {
			out = append(out, ipRange{e.first, r.first.pred(), e.access})
		}
		if r.last.less(e.last) {
			out = append(out, ipRange{r.last.succ(), e.last, e.access})
		}
	}
	if r.access != 0 {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].first.less(out[j].first) })
	return out
}
