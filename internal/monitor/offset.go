package monitor

import (
	"encoding/binary"
	"time"

	"github.com/yanun0323/errors"
	bolt "go.etcd.io/bbolt"
)

var offsetBucket = []byte("monitor_offsets")

// OffsetStore persists the tail position per transaction log path.
type OffsetStore struct {
	db *bolt.DB
}

// OpenOffsetStore opens (or creates) the bolt file at path.
func OpenOffsetStore(path string) (*OffsetStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open offset store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(offsetBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create offset bucket")
	}
	return &OffsetStore{db: db}, nil
}

// Load returns the stored offset for key, or 0 when none was saved.
func (s *OffsetStore) Load(key string) (int64, error) {
	var offset int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(offsetBucket).Get([]byte(key))
		if len(v) == 8 {
			offset = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "load offset %s", key)
	}
	return offset, nil
}

func (s *OffsetStore) Save(key string, offset int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(offsetBucket).Put([]byte(key), buf[:])
	})
	if err != nil {
		return errors.Wrapf(err, "save offset %s", key)
	}
	return nil
}

func (s *OffsetStore) Close() error {
	return s.db.Close()
}
