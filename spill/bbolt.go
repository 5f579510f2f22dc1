package spill

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	spillBucket = []byte("spill")

	errMissingBucket = errors.New("bbolt: missing spill bucket")
)

type bboltKV struct {
	db *bbolt.DB
}

func MakeBBoltKV(dataDir string) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	db, err := bbolt.Open(filepath.Join(dataDir, "pax-spill.bbolt"), 0644, nil)
	if err != nil {
		return nil, err
	}
	// Spilled rows do not need to survive a crash.
	db.NoFreelistSync = true
	db.NoSync = true

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(spillBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, err
	}
	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) Write(batch []Entry) error {
	return bkv.db.Update(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(spillBucket)
			if bkt == nil {
				return errMissingBucket
			}
			for _, e := range batch {
				err := bkt.Put(e.Key, e.Val)
				if err != nil {
					return err
				}
			}
			return nil
		})
}

func (bkv bboltKV) Scan(prefix, start []byte, limit int,
	fn func(key, val []byte) error) (int, error) {

	var cnt int
	err := bkv.db.View(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(spillBucket)
			if bkt == nil {
				return errMissingBucket
			}

			cr := bkt.Cursor()
			for key, val := cr.Seek(scanFrom(prefix, start)); key != nil && cnt < limit &&
				bytes.HasPrefix(key, prefix); key, val = cr.Next() {

				err := fn(key, val)
				if err != nil {
					return err
				}
				cnt += 1
			}
			return nil
		})
	return cnt, err
}

func (bkv bboltKV) DeletePrefix(prefix []byte) error {
	return bkv.db.Update(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(spillBucket)
			if bkt == nil {
				return errMissingBucket
			}

			// Deleting at the cursor skips the following key, so seek again each time.
			cr := bkt.Cursor()
			for {
				key, _ := cr.Seek(prefix)
				if key == nil || !bytes.HasPrefix(key, prefix) {
					return nil
				}
				err := cr.Delete()
				if err != nil {
					return err
				}
			}
		})
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}
