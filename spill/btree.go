package spill

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

type btreeKV struct {
	mutex sync.RWMutex
	tree  *btree.BTree
}

type btreeEntry Entry

func (be btreeEntry) Less(item btree.Item) bool {
	return bytes.Compare(be.Key, item.(btreeEntry).Key) < 0
}

func MakeBTreeKV() (KV, error) {
	return &btreeKV{
		tree: btree.New(16),
	}, nil
}

func (bkv *btreeKV) Write(batch []Entry) error {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	for _, e := range batch {
		bkv.tree.ReplaceOrInsert(btreeEntry{
			Key: append([]byte(nil), e.Key...),
			Val: append([]byte(nil), e.Val...),
		})
	}
	return nil
}

func (bkv *btreeKV) Scan(prefix, start []byte, limit int,
	fn func(key, val []byte) error) (int, error) {

	bkv.mutex.RLock()
	defer bkv.mutex.RUnlock()

	var cnt int
	var err error
	bkv.tree.AscendGreaterOrEqual(btreeEntry{Key: scanFrom(prefix, start)},
		func(item btree.Item) bool {
			be := item.(btreeEntry)
			if cnt == limit || !bytes.HasPrefix(be.Key, prefix) {
				return false
			}
			err = fn(be.Key, be.Val)
			if err != nil {
				return false
			}
			cnt += 1
			return true
		})
	return cnt, err
}

func (bkv *btreeKV) DeletePrefix(prefix []byte) error {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	var keys []btree.Item
	bkv.tree.AscendGreaterOrEqual(btreeEntry{Key: prefix},
		func(item btree.Item) bool {
			if !bytes.HasPrefix(item.(btreeEntry).Key, prefix) {
				return false
			}
			keys = append(keys, item)
			return true
		})
	for _, key := range keys {
		bkv.tree.Delete(key)
	}
	return nil
}

func (bkv *btreeKV) Close() error {
	bkv.mutex.Lock()
	bkv.tree = btree.New(16)
	bkv.mutex.Unlock()
	return nil
}
