// Package ipfilter implements an IP access filter over address ranges.
// Rules are kept as sorted, disjoint ranges so lookups stay logarithmic
// even with blocklists of hundreds of thousands of entries.
package ipfilter

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// Access is the set of flags assigned to an address range.
type Access uint32

// Blocked marks addresses that must not be dialed or accepted.
const Blocked Access = 1

var errInvalidRule = errors.New("ipfilter: invalid rule")

// Filter maps IP addresses to Access flags. The zero value permits
// everything. Safe for concurrent use.
type Filter struct {
	m  sync.RWMutex
	v4 rangeList
	v6 rangeList
}

// New returns an empty Filter.
func New() *Filter { return &Filter{} }

// AddRule assigns access flags to the inclusive address range [first, last].
// Later rules override earlier ones where they overlap.
// first and last must belong to the same address family.
func (f *Filter) AddRule(first, last net.IP, access Access) error {
	lo, v6a, err := toKey(first)
	if err != nil {
		return err
	}
	hi, v6b, err := toKey(last)
	if err != nil {
		return err
	}
	if v6a != v6b || hi.less(lo) {
		return errInvalidRule
	}
	f.m.Lock()
	defer f.m.Unlock()
	if v6a {
		f.v6 = f.v6.insert(ipRange{lo, hi, access})
	} else {
		f.v4 = f.v4.insert(ipRange{lo, hi, access})
	}
	return nil
}

// Access returns the flags assigned to ip. Unlisted addresses map to 0.
func (f *Filter) Access(ip net.IP) Access {
	k, v6, err := toKey(ip)
	if err != nil {
		return 0
	}
	f.m.RLock()
	defer f.m.RUnlock()
	if v6 {
		return f.v6.lookup(k)
	}
	return f.v4.lookup(k)
}

// Len returns the number of stored ranges.
func (f *Filter) Len() int {
	f.m.RLock()
	defer f.m.RUnlock()
	return len(f.v4) + len(f.v6)
}

// Load reads blocked ranges from r in p2p text format,
// one "description:first-last" per line. Malformed lines are skipped.
// Returns the number of rules added.
func (f *Filter) Load(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	var n int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.LastIndex(line, ":")
		if colon == -1 {
			continue
		}
		dash := strings.Index(line[colon+1:], "-")
		if dash == -1 {
			continue
		}
		first := net.ParseIP(strings.TrimSpace(line[colon+1 : colon+1+dash]))
		last := net.ParseIP(strings.TrimSpace(line[colon+1+dash+1:]))
		if first == nil || last == nil {
			continue
		}
		if f.AddRule(first, last, Blocked) == nil {
			n++
		}
	}
	return n, scanner.Err()
}
