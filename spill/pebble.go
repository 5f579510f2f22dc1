package spill

import (
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleKV struct {
	db *pebble.DB
}

func MakePebbleKV(dataDir string, logger *log.Logger) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return pebbleKV{
		db: db,
	}, nil
}

func (pkv pebbleKV) Write(batch []Entry) error {
	b := pkv.db.NewBatch()
	for _, e := range batch {
		err := b.Set(e.Key, e.Val, nil)
		if err != nil {
			b.Close()
			return err
		}
	}
	return b.Commit(pebble.NoSync)
}

func (pkv pebbleKV) Scan(prefix, start []byte, limit int,
	fn func(key, val []byte) error) (int, error) {

	it := pkv.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	defer it.Close()

	var cnt int
	for it.SeekGE(scanFrom(prefix, start)); it.Valid() && cnt < limit; it.Next() {
		err := fn(it.Key(), it.Value())
		if err != nil {
			return cnt, err
		}
		cnt += 1
	}
	return cnt, it.Error()
}

func (pkv pebbleKV) DeletePrefix(prefix []byte) error {
	if end := prefixEnd(prefix); end != nil {
		return pkv.db.DeleteRange(prefix, end, pebble.NoSync)
	}

	b := pkv.db.NewBatch()
	it := pkv.db.NewIter(nil)
	for it.First(); it.Valid(); it.Next() {
		err := b.Delete(it.Key(), nil)
		if err != nil {
			it.Close()
			b.Close()
			return err
		}
	}
	it.Close()
	return b.Commit(pebble.NoSync)
}

func (pkv pebbleKV) Close() error {
	return pkv.db.Close()
}
