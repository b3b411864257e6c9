package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const HistoryFile = "history.db"

// DefaultHistoryKeep bounds the number of build records retained.
const DefaultHistoryKeep = 200

// History stores one BuildRecord per build in a bbolt database next to the
// manifest. It is informational only; builds never read it.
type History struct {
	db     *bolt.DB
	builds TypedStore[BuildRecord]
}

// OpenHistory opens or creates history.db in cacheDir.
func OpenHistory(cacheDir string, timeout time.Duration) (*History, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout:      timeout,
		FreelistType: bolt.FreelistArrayType,
	}

	db, err := bolt.Open(filepath.Join(cacheDir, HistoryFile), 0644, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open build history: %w", err)
	}

	h := &History{db: db, builds: NewTypedStore[BuildRecord](db)}
	if err := h.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

// initSchema creates all buckets if they don't exist
func (h *History) initSchema() error {
	return h.db.Update(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets() {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(BucketMeta))
		stored := meta.Get([]byte(KeySchemaVersion))
		if stored != nil && binary.BigEndian.Uint32(stored) != SchemaVersion {
			// records from another schema are not decodable; start over
			if err := tx.DeleteBucket([]byte(BucketBuilds)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(BucketBuilds)); err != nil {
				return err
			}
		}
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, SchemaVersion)
		return meta.Put([]byte(KeySchemaVersion), v)
	})
}

func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

func recordKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	return k
}

// Record appends r and trims history to keep records.
func (h *History) Record(r *BuildRecord, keep int) error {
	if err := h.builds.Put(BucketBuilds, recordKey(r.StartedAt), r); err != nil {
		return fmt.Errorf("failed to record build %s: %w", r.ID, err)
	}
	if err := h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketMeta)).Put([]byte(KeyLastBuildID), []byte(r.ID))
	}); err != nil {
		return fmt.Errorf("failed to record build %s: %w", r.ID, err)
	}
	if keep > 0 {
		return h.prune(keep)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (h *History) Recent(n int) ([]BuildRecord, error) {
	return h.builds.Last(BucketBuilds, n)
}

// Get returns the record of the build that started at t, or nil.
func (h *History) Get(startedAt time.Time) (*BuildRecord, error) {
	return h.builds.Get(BucketBuilds, recordKey(startedAt))
}

// LastBuildID returns the ID of the most recently recorded build.
func (h *History) LastBuildID() (string, error) {
	var id string
	err := h.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket([]byte(BucketMeta)).Get([]byte(KeyLastBuildID)))
		return nil
	})
	return id, err
}

func (h *History) prune(keep int) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuilds))
		excess := bucket.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
