package pv

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bCounts = []byte("pv") // slug -> big-endian uint64

// Store keeps local page-view counters in bbolt. It backs the /api/pv
// endpoints when no external analytics source is configured; an absent
// store just means the handlers fall back to dummy numbers.
type Store struct {
	db *bolt.DB
}

type OpenOptions struct {
	Path string // e.g. ".dashfolio/pv.db"
}

func Open(opt OpenOptions) (*Store, error) {
	if opt.Path == "" {
		return nil, errors.New("pv: missing path")
	}
	if err := os.MkdirAll(filepath.Dir(opt.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(opt.Path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Incr bumps the counter for slug and returns the new value.
func (s *Store) Incr(slug string) (uint64, error) {
	var n uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bCounts)
		if err != nil {
			return err
		}
		n = decodeCount(b.Get([]byte(slug))) + 1
		return b.Put([]byte(slug), encodeCount(n))
	})
	return n, err
}

// Get returns the stored counter. ok 为 false 表示从未计过数。
func (s *Store) Get(slug string) (uint64, bool, error) {
	var n uint64
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bCounts)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(slug))
		if v == nil {
			return nil
		}
		n = decodeCount(v)
		ok = true
		return nil
	})
	return n, ok, err
}

type Entry struct {
	Slug  string `json:"slug"`
	Count uint64 `json:"count"`
}

// Top returns up to n slugs by view count, descending, ties by slug.
func (s *Store) Top(n int) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bCounts)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, Entry{Slug: string(k), Count: decodeCount(v)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Slug < out[j].Slug
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
