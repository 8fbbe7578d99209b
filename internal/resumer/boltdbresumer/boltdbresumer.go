// Package boltdbresumer persists peer lists in a Bolt database file.
package boltdbresumer

import (
	bolt "go.etcd.io/bbolt"
)

var peersKey = []byte("peers")

// Resumer saves and loads serialized peer directories, one sub-bucket per
// torrent.
type Resumer struct {
	db     *bolt.DB
	bucket []byte
}

// New returns a Resumer storing under the named top-level bucket.
func New(db *bolt.DB, bucket []byte) (*Resumer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucket)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{db: db, bucket: bucket}, nil
}

// WritePeers stores the serialized peer list of the torrent.
func (r *Resumer) WritePeers(torrentID string, peers []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists([]byte(torrentID))
		if err != nil {
			return err
		}
		return b.Put(peersKey, peers)
	})
}

// ReadPeers returns the serialized peer list of the torrent.
// A torrent that was never written yields nil, nil.
func (r *Resumer) ReadPeers(torrentID string) ([]byte, error) {
	var value []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return nil
		}
		if v := b.Get(peersKey); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, err
}
