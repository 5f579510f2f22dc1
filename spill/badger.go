package spill

import (
	"os"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

const badgerDeleteKeys = 1024

type badgerKV struct {
	db *badger.DB
}

func MakeBadgerKV(dataDir string, logger *log.Logger) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	opts := badger.DefaultOptions(dataDir).
		WithLogger(logger).
		WithSyncWrites(false)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return badgerKV{
		db: db,
	}, nil
}

func (bkv badgerKV) Write(batch []Entry) error {
	return bkv.db.Update(
		func(tx *badger.Txn) error {
			for _, e := range batch {
				err := tx.Set(append([]byte(nil), e.Key...), append([]byte(nil), e.Val...))
				if err != nil {
					return err
				}
			}
			return nil
		})
}

func (bkv badgerKV) iterate(tx *badger.Txn, prefix, start []byte, keysOnly bool,
	fn func(item *badger.Item) (bool, error)) error {

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = !keysOnly
	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Seek(scanFrom(prefix, start)); it.ValidForPrefix(prefix); it.Next() {
		more, err := fn(it.Item())
		if err != nil {
			return err
		} else if !more {
			break
		}
	}
	return nil
}

func (bkv badgerKV) Scan(prefix, start []byte, limit int,
	fn func(key, val []byte) error) (int, error) {

	var cnt int
	err := bkv.db.View(
		func(tx *badger.Txn) error {
			return bkv.iterate(tx, prefix, start, false,
				func(item *badger.Item) (bool, error) {
					if cnt == limit {
						return false, nil
					}
					err := item.Value(
						func(val []byte) error {
							return fn(item.Key(), val)
						})
					if err != nil {
						return false, err
					}
					cnt += 1
					return true, nil
				})
		})
	return cnt, err
}

// DeletePrefix deletes the keys in batches to stay below the size limit of a transaction.
func (bkv badgerKV) DeletePrefix(prefix []byte) error {
	for {
		var keys [][]byte
		err := bkv.db.View(
			func(tx *badger.Txn) error {
				return bkv.iterate(tx, prefix, nil, true,
					func(item *badger.Item) (bool, error) {
						keys = append(keys, item.KeyCopy(nil))
						return len(keys) < badgerDeleteKeys, nil
					})
			})
		if err != nil {
			return err
		} else if len(keys) == 0 {
			return nil
		}

		err = bkv.db.Update(
			func(tx *badger.Txn) error {
				for _, key := range keys {
					err := tx.Delete(key)
					if err != nil {
						return err
					}
				}
				return nil
			})
		if err != nil {
			return err
		}
	}
}

func (bkv badgerKV) Close() error {
	return bkv.db.Close()
}
