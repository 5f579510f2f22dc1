package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/config"
	"github.com/leftmike/pax/execute"
	"github.com/leftmike/pax/index"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/spill"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/table"
	"github.com/leftmike/pax/tile"
)

var (
	ErrTableExists   = errors.New("engine: table already exists")
	ErrTableNotFound = errors.New("engine: table not found")
	ErrIndexExists   = errors.New("engine: index already exists")
	ErrIndexNotFound = errors.New("engine: index not found")
)

type tableEntry struct {
	tbl *table.Table

	// mutex is held for reading while rows are written to the table, and for writing while
	// an index is built, so that every row is either seen by the build or added to the index.
	mutex   sync.RWMutex
	indexes map[string]*index.Index
}

func (te *tableEntry) sortedIndexes() []*index.Index {
	idxs := make([]*index.Index, 0, len(te.indexes))
	for _, idx := range te.indexes {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs,
		func(i, j int) bool {
			return idxs[i].Name() < idxs[j].Name()
		})
	return idxs
}

// Engine is a catalog of named tables and their indexes, sharing one transaction manager.
type Engine struct {
	cfg  *config.Config
	m    *mvcc.Manager
	kv   spill.KV
	comp spill.Compression

	mutex  sync.RWMutex
	tables map[string]*tableEntry
}

func NewEngine(cfg *config.Config) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	comp, err := cfg.Compression()
	if err != nil {
		return nil, err
	}
	kv, err := spill.Open(cfg.SpillStore, cfg.SpillDir, log.StandardLogger())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		m:      mvcc.NewManager(tile.NewRegistry(), cfg.Flags),
		kv:     kv,
		comp:   comp,
		tables: map[string]*tableEntry{},
	}

	log.WithFields(log.Fields{
		"spill_store": cfg.SpillStore,
		"layout":      cfg.Layout,
	}).Info("engine: started")
	return e, nil
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) Manager() *mvcc.Manager {
	return e.m
}

func (e *Engine) Begin() *mvcc.Transaction {
	return e.m.Begin()
}

func (e *Engine) Commit(ctx context.Context, tx *mvcc.Transaction) error {
	return e.m.Commit(ctx, tx)
}

func (e *Engine) Abort(tx *mvcc.Transaction) error {
	return e.m.Abort(tx)
}

// CreateTable creates a table; if layout is nil, the configured layout is used.
func (e *Engine) CreateTable(name string, schema *sql.Schema, layout *tile.Layout) (*table.Table,
	error) {

	var l tile.Layout
	if layout != nil {
		l = *layout
	} else {
		var err error
		l, err = e.cfg.TableLayout(schema.ColumnCount())
		if err != nil {
			return nil, err
		}
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, ok := e.tables[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	tbl, err := table.New(name, schema, l, e.cfg.TileGroupCapacity, e.m)
	if err != nil {
		return nil, err
	}
	e.tables[name] = &tableEntry{
		tbl:     tbl,
		indexes: map[string]*index.Index{},
	}

	log.WithFields(log.Fields{
		"table":  name,
		"layout": l,
	}).Info("engine: created table")
	return tbl, nil
}

// DropTable removes a table from the catalog. Its tile groups stay registered: transactions
// which wrote to the table still commit or abort through item pointers into them.
func (e *Engine) DropTable(name string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, ok := e.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(e.tables, name)

	log.WithField("table", name).Info("engine: dropped table")
	return nil
}

func (e *Engine) lookup(name string) (*tableEntry, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	te, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return te, nil
}

func (e *Engine) LookupTable(name string) (*table.Table, error) {
	te, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	return te.tbl, nil
}

// ListTables returns the names of the tables in order.
func (e *Engine) ListTables() []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateIndex creates an index on the named columns of a table, and adds an entry to it for
// every version in the table. Versions which are not visible are harmless: scans check
// visibility and keys of index candidates. Writes to the table wait for the build.
func (e *Engine) CreateIndex(tblName, idxName string, cols []string) (*index.Index, error) {
	te, err := e.lookup(tblName)
	if err != nil {
		return nil, err
	}

	te.mutex.Lock()
	defer te.mutex.Unlock()

	if _, ok := te.indexes[idxName]; ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexExists, idxName, tblName)
	}

	schema := te.tbl.Schema()
	colNums := make([]int, 0, len(cols))
	for _, col := range cols {
		num := schema.ColumnIndex(col)
		if num < 0 {
			return nil, fmt.Errorf("engine: %s: column not found: %s", tblName, col)
		}
		colNums = append(colNums, num)
	}
	idx, err := index.New(idxName, colNums)
	if err != nil {
		return nil, err
	}

	row := make([]sql.Value, schema.ColumnCount())
	for _, g := range te.tbl.TileGroups() {
		for slot := g.NextOccupied(0); slot >= 0; slot = g.NextOccupied(slot + 1) {
			if _, ok := g.VersionMeta(slot); !ok {
				continue
			}
			g.Read(slot, nil, row)
			idx.Insert(idx.Key(row), g.Pointer(slot))
		}
	}
	te.indexes[idxName] = idx

	log.WithFields(log.Fields{
		"table":   tblName,
		"index":   idxName,
		"entries": idx.Len(),
	}).Info("engine: created index")
	return idx, nil
}

func (e *Engine) LookupIndex(tblName, idxName string) (*index.Index, error) {
	te, err := e.lookup(tblName)
	if err != nil {
		return nil, err
	}

	te.mutex.RLock()
	defer te.mutex.RUnlock()

	idx, ok := te.indexes[idxName]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, idxName, tblName)
	}
	return idx, nil
}

// Indexes returns the indexes of a table in name order. Use WithIndexes to write to the table.
func (e *Engine) Indexes(tblName string) ([]*index.Index, error) {
	te, err := e.lookup(tblName)
	if err != nil {
		return nil, err
	}

	te.mutex.RLock()
	defer te.mutex.RUnlock()

	return te.sortedIndexes(), nil
}

// WithIndexes calls fn with a table and its indexes in name order; no index is created on the
// table until fn returns. Every row fn writes must be added to idxs. fn must not call back into
// the engine for the indexes of the table.
func (e *Engine) WithIndexes(tblName string,
	fn func(tbl *table.Table, idxs []*index.Index) error) error {

	te, err := e.lookup(tblName)
	if err != nil {
		return err
	}

	te.mutex.RLock()
	defer te.mutex.RUnlock()

	return fn(te.tbl, te.sortedIndexes())
}

// Insert inserts rows into the named table, maintaining all of its indexes.
func (e *Engine) Insert(ctx context.Context, tx *mvcc.Transaction, tblName string,
	rows [][]sql.Value) (int64, error) {

	var cnt int64
	err := e.WithIndexes(tblName,
		func(tbl *table.Table, idxs []*index.Index) error {
			var err error
			cnt, err = execute.Insert(ctx, tbl, tx,
				&execute.Values{Cols: tbl.Schema().ColumnNames(), Rows: rows}, idxs...)
			return err
		})
	return cnt, err
}

// GraceOptions returns the configured options for grace hash joins, spilling to the engine's
// spill store.
func (e *Engine) GraceOptions() execute.GraceOptions {
	return execute.GraceOptions{
		MemoryRows:  e.cfg.JoinMemoryRows,
		Partitions:  e.cfg.JoinPartitions,
		MaxDepth:    e.cfg.JoinMaxDepth,
		KV:          e.kv,
		Compression: e.comp,
	}
}

func (e *Engine) Close() error {
	log.Info("engine: closing")
	return e.kv.Close()
}
