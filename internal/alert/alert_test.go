package alert

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuePost(t *testing.T) {
	q := NewQueue(2, AllCategories)
	assert.True(t, q.ShouldPost(IPBlock))

	q.Post(PeerBlocked{IP: net.ParseIP("1.2.3.4")})
	a := <-q.Chan()
	assert.Equal(t, "peer blocked: 1.2.3.4", a.String())
}

func TestQueueMask(t *testing.T) {
	q := NewQueue(2, PeerEvent)
	assert.False(t, q.ShouldPost(IPBlock))

	q.Post(PeerBlocked{IP: net.ParseIP("1.2.3.4")})
	select {
	case <-q.Chan():
		t.Fatal("masked alert must not be delivered")
	default:
	}
}

func TestQueueFullDrops(t *testing.T) {
	q := NewQueue(1, AllCategories)
	q.Post(PeerBlocked{IP: net.ParseIP("1.1.1.1")})
	q.Post(PeerBlocked{IP: net.ParseIP("2.2.2.2")})

	assert.Equal(t, int64(1), q.Dropped())
	a := <-q.Chan()
	assert.Equal(t, "peer blocked: 1.1.1.1", a.String())
}

func TestNilQueue(t *testing.T) {
	var q *Queue
	assert.False(t, q.ShouldPost(IPBlock))
	q.Post(PeerBlocked{IP: net.ParseIP("1.2.3.4")}) // must not panic
}
