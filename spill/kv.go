package spill

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Entry struct {
	Key []byte
	Val []byte
}

// KV is an ordered key value store used to hold spilled rows. Rows are only ever appended
// in batches, read back in key order by prefix, and dropped by prefix.
type KV interface {
	// Write adds the batch of entries as a unit; an entry with the key of an existing entry
	// replaces it.
	Write(batch []Entry) error

	// Scan calls fn, in key order, for up to limit entries which have prefix and whose keys
	// are at least start; it returns how many entries fn was called for. The key and value
	// are only valid during the call. A nil start scans from the beginning of the prefix.
	Scan(prefix, start []byte, limit int, fn func(key, val []byte) error) (int, error)

	DeletePrefix(prefix []byte) error
	Close() error
}

// Open returns a KV of the named kind: memory, bbolt, badger, or pebble. Other than memory,
// the data is kept in dir.
func Open(kind, dir string, logger *log.Logger) (KV, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	switch strings.ToLower(kind) {
	case "memory":
		return MakeBTreeKV()
	case "bbolt":
		return MakeBBoltKV(dir)
	case "badger":
		return MakeBadgerKV(filepath.Join(dir, "badger"), logger)
	case "pebble":
		return MakePebbleKV(filepath.Join(dir, "pebble"), logger)
	}
	return nil, fmt.Errorf("spill: unknown store: %s", kind)
}

func scanFrom(prefix, start []byte) []byte {
	if bytes.Compare(start, prefix) < 0 {
		return prefix
	}
	return start
}

// prefixEnd returns the first key after every key with prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] += 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
