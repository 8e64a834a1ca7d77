package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luoyjx/minikv/storage"
	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
)

var (
	bucketMeta   = []byte("meta")
	bucketValues = []byte("values")
	bucketExpiry = []byte("expiry")

	keyTakenAt = []byte("taken_at")
)

// BoltFile keeps the snapshot in a bolt database: one bucket of values, one
// bucket of 8-byte big-endian unix-millisecond deadlines and a meta bucket.
// Keys are stored behind a one-byte prefix because bolt rejects empty keys.
// The database is opened for each call so the file is not held locked
// between saves.
type BoltFile struct {
	path    string
	timeout time.Duration
}

// NewBoltFile returns a bolt backend writing to path.
func NewBoltFile(path string) *BoltFile {
	return &BoltFile{path: path, timeout: time.Second}
}

// Path returns the database file location.
func (f *BoltFile) Path() string {
	return f.path
}

// open opens the database. A read-only open never initialises the file, so an
// empty or foreign file is reported as an error instead of an empty snapshot.
func (f *BoltFile) open(readOnly bool) (*bolt.DB, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	db, err := bolt.Open(f.path, 0600, &bolt.Options{Timeout: f.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return db, nil
}

// Save implements Backend. The previous snapshot is replaced in a single
// transaction.
func (f *BoltFile) Save(snap storage.Snapshot) error {
	db, err := f.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketValues, bucketExpiry} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolterrors.ErrBucketNotFound) {
				return fmt.Errorf("dropping bucket %s: %w", name, err)
			}
		}

		values, err := tx.CreateBucket(bucketValues)
		if err != nil {
			return fmt.Errorf("creating values bucket: %w", err)
		}
		for key, value := range snap.Values {
			if err := values.Put(encodeKey(key), []byte(value)); err != nil {
				return fmt.Errorf("putting value %s: %w", key, err)
			}
		}

		expiry, err := tx.CreateBucket(bucketExpiry)
		if err != nil {
			return fmt.Errorf("creating expiry bucket: %w", err)
		}
		for key, deadline := range snap.Expiry {
			if err := expiry.Put(encodeKey(key), encodeMillis(deadline)); err != nil {
				return fmt.Errorf("putting deadline %s: %w", key, err)
			}
		}

		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return fmt.Errorf("creating meta bucket: %w", err)
		}
		return meta.Put(keyTakenAt, encodeMillis(snap.TakenAt))
	})
}

// Load implements Backend.
func (f *BoltFile) Load() (storage.Snapshot, error) {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return storage.Snapshot{}, ErrNoSnapshot
	}

	db, err := f.open(true)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer db.Close()

	snap := storage.Snapshot{
		Values: map[string]string{},
		Expiry: map[string]time.Time{},
	}
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return ErrNoSnapshot
		}
		takenAt, err := decodeMillis(meta.Get(keyTakenAt))
		if err != nil {
			return fmt.Errorf("%w: taken_at: %w", ErrCorrupt, err)
		}
		snap.TakenAt = takenAt

		if values := tx.Bucket(bucketValues); values != nil {
			// bolt slices are only valid inside the transaction
			if err := values.ForEach(func(k, v []byte) error {
				key, err := decodeKey(k)
				if err != nil {
					return fmt.Errorf("%w: value key: %w", ErrCorrupt, err)
				}
				snap.Values[key] = string(v)
				return nil
			}); err != nil {
				return err
			}
		}

		if expiry := tx.Bucket(bucketExpiry); expiry != nil {
			if err := expiry.ForEach(func(k, v []byte) error {
				key, err := decodeKey(k)
				if err != nil {
					return fmt.Errorf("%w: expiry key: %w", ErrCorrupt, err)
				}
				deadline, err := decodeMillis(v)
				if err != nil {
					return fmt.Errorf("%w: deadline %s: %w", ErrCorrupt, key, err)
				}
				snap.Expiry[key] = deadline
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storage.Snapshot{}, err
	}
	return snap, nil
}

const keyPrefix byte = 'k'

func encodeKey(key string) []byte {
	return append([]byte{keyPrefix}, key...)
}

func decodeKey(b []byte) (string, error) {
	if len(b) == 0 || b[0] != keyPrefix {
		return "", fmt.Errorf("bad key prefix")
	}
	return string(b[1:]), nil
}

func encodeMillis(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return buf
}

func decodeMillis(b []byte) (time.Time, error) {
	if len(b) != 8 {
		return time.Time{}, fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(b))), nil
}
