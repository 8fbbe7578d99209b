// Package alert delivers policy observations to the client application.
package alert

import (
	"fmt"
	"net"

	"github.com/rcrowley/go-metrics"
)

// Category selects which alert types a Queue keeps.
type Category uint32

const (
	// IPBlock covers peers rejected by the IP or port filter.
	IPBlock Category = 1 << iota
	// PeerEvent covers connect/disconnect observations.
	PeerEvent
)

// AllCategories enables every alert type.
const AllCategories = ^Category(0)

// Alert is a single observation.
type Alert interface {
	Category() Category
	String() string
}

// PeerBlocked is posted when a peer is dropped because its address or
// port is filtered.
type PeerBlocked struct {
	IP net.IP
}

func (a PeerBlocked) Category() Category { return IPBlock }

func (a PeerBlocked) String() string { return fmt.Sprintf("peer blocked: %s", a.IP) }

// Queue is a bounded, non-blocking alert queue. Posting to a full queue
// drops the alert and counts it.
type Queue struct {
	mask    Category
	ch      chan Alert
	dropped metrics.Counter
}

// NewQueue returns a Queue keeping up to size alerts of the masked categories.
func NewQueue(size int, mask Category) *Queue {
	return &Queue{
		mask:    mask,
		ch:      make(chan Alert, size),
		dropped: metrics.NewCounter(),
	}
}

// ShouldPost reports whether alerts of category c are kept. Callers use it
// to skip building alerts nobody listens to.
func (q *Queue) ShouldPost(c Category) bool {
	return q != nil && q.mask&c != 0
}

// Post enqueues a without blocking. Alerts of unmasked categories and
// alerts that do not fit are discarded.
func (q *Queue) Post(a Alert) {
	if q == nil || q.mask&a.Category() == 0 {
		return
	}
	select {
	case q.ch <- a:
	default:
		q.dropped.Inc(1)
	}
}

// Chan returns the channel alerts are delivered on.
func (q *Queue) Chan() <-chan Alert { return q.ch }

// Dropped returns the number of alerts discarded because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Count() }
