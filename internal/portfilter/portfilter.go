// Package portfilter implements a TCP port access filter.
// Rules are disjoint port ranges indexed in a B-tree.
package portfilter

import (
	"errors"
	"sync"

	"github.com/google/btree"
)

// Access is the set of flags assigned to a port range.
type Access uint32

// Blocked marks ports that peers may not be dialed on.
const Blocked Access = 1

var errInvalidRule = errors.New("portfilter: invalid rule")

type portRange struct {
	first, last uint16
	access     Access
}

// Filter maps ports to Access flags. Ports without a rule map to 0.
// Safe for concurrent use.
type Filter struct {
	m     sync.RWMutex
	rules *btree.BTreeG[portRange]
}

// New returns an empty Filter.
func New() *Filter {
	return &Filter{
		rules: btree.NewG(8, func(a, b portRange) bool { return a.first < b.first }),
	}
}

// AddRule assigns access flags to the inclusive port range [first, last].
// Later rules override earlier ones where they overlap.
func (f *Filter) AddRule(first, last uint16, access Access) error {
	if last < first {
		return errInvalidRule
	}
	f.m.Lock()
	defer f.m.Unlock()

	// collect the rules overlapping [first, last]
	var overlapping []portRange
	f.rules.DescendLessOrEqual(portRange{first: last}, func(r portRange) bool {
		if r.last < first {
			return false // ranges are disjoint, nothing further down overlaps
		}
		overlapping = append(overlapping, r)
		return true
	})
	for _, r := range overlapping {
		f.rules.Delete(r)
		if r.first < first {
			f.rules.ReplaceOrInsert(portRange{r.first, first - 1, r.access})
		}
		if r.last > last {
			f.rules.ReplaceOrInsert(portRange{last + 1, r.last, r.access})
		}
	}
	if access != 0 {
		f.rules.ReplaceOrInsert(portRange{first, last, access})
	}
	return nil
}

// Access returns the flags assigned to port.
func (f *Filter) Access(port uint16) Access {
	f.m.RLock()
	defer f.m.RUnlock()
	var found portRange
	var ok bool
	f.rules.DescendLessOrEqual(portRange{first: port}, func(r portRange) bool {
		found, ok = r, true
		return false
	})
	if ok && found.last >= port {
		return found.access
	}
	return 0
}

// Len returns the number of stored ranges.
func (f *Filter) Len() int {
	f.m.RLock()
	defer f.m.RUnlock()
	return f.rules.Len()
}
