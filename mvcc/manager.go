package mvcc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/tile"
)

var (
	ErrWriteConflict           = errors.New("mvcc: write conflict")
	ErrReadConflict            = errors.New("mvcc: read conflict")
	ErrInvalidTransactionState = errors.New("mvcc: invalid transaction state")
	ErrNotVisible              = errors.New("mvcc: version not visible")
)

type CommitEvent struct {
	TxnID      tile.TxnID
	CommitTS   tile.Timestamp
	Created    []tile.ItemPointer
	Superseded []tile.ItemPointer
}

type Stats struct {
	Begun          uint64
	Committed      uint64
	Aborted        uint64
	WriteConflicts uint64
	ReadConflicts  uint64
	LastCommitTS   tile.Timestamp
}

// Manager begins, commits, and aborts transactions, and is the only publisher of version meta.
// Commits are serialized; begins and reads never wait on them.
type Manager struct {
	reg            *tile.Registry
	readValidation bool

	lastTxnID    atomic.Uint64
	lastCommitTS atomic.Uint64
	commitMutex  sync.Mutex

	hooksMutex sync.RWMutex
	hooks      []func(CommitEvent)

	begun          atomic.Uint64
	committed      atomic.Uint64
	aborted        atomic.Uint64
	writeConflicts atomic.Uint64
	readConflicts  atomic.Uint64
}

func NewManager(reg *tile.Registry, flgs flags.Flags) *Manager {
	return &Manager{
		reg:            reg,
		readValidation: flgs.GetFlag(flags.ReadValidation),
	}
}

func (m *Manager) Registry() *tile.Registry {
	return m.reg
}

// Begin starts a transaction whose snapshot includes every transaction which has finished
// committing.
func (m *Manager) Begin() *Transaction {
	m.begun.Add(1)
	return &Transaction{
		m:          m,
		id:         tile.TxnID(m.lastTxnID.Add(1)),
		beginTS:    tile.Timestamp(m.lastCommitTS.Load()),
		state:      Active,
		superseded: map[tile.ItemPointer]uint32{},
		replaced:   map[tile.ItemPointer]tile.ItemPointer{},
	}
}

// OnCommit registers fn to be called after each transaction commits.
func (m *Manager) OnCommit(fn func(CommitEvent)) {
	m.hooksMutex.Lock()
	defer m.hooksMutex.Unlock()

	m.hooks = append(m.hooks, fn)
}

func (m *Manager) Stats() Stats {
	return Stats{
		Begun:          m.begun.Load(),
		Committed:      m.committed.Load(),
		Aborted:        m.aborted.Load(),
		WriteConflicts: m.writeConflicts.Load(),
		ReadConflicts:  m.readConflicts.Load(),
		LastCommitTS:   tile.Timestamp(m.lastCommitTS.Load()),
	}
}

func (m *Manager) resolve(ip tile.ItemPointer) (*tile.Group, int) {
	g, slot, ok := m.reg.Resolve(ip)
	if !ok {
		panic(fmt.Sprintf("mvcc: unknown item pointer: %s", ip))
	}
	return g, slot
}

// InsertVersion publishes the version meta of a new row written by tx into slot of g.
func (m *Manager) InsertVersion(tx *Transaction, g *tile.Group, slot int) error {
	if err := tx.checkActive(); err != nil {
		return err
	}

	m.publish(tx, g, slot, tile.InvalidItemPointer)
	return nil
}

func (m *Manager) publish(tx *Transaction, g *tile.Group, slot int, prev tile.ItemPointer) {
	g.WriteVersionMeta(slot, tile.VersionMeta{
		TxnID:   tx.id,
		BeginTS: tx.beginTS,
		EndTS:   tile.InfTS,
		Command: tx.command,
		Prev:    prev,
	})
	tx.created = append(tx.created, version{g: g, slot: slot})
}

// supersede marks the version at old as superseded by tx, and returns the committed version
// which the new version of the row (if any) replaces.
func (m *Manager) supersede(tx *Transaction, old tile.ItemPointer) (tile.ItemPointer, error) {
	if err := tx.checkActive(); err != nil {
		return tile.InvalidItemPointer, err
	}

	g, slot := m.resolve(old)
	vm, ok := g.VersionMeta(slot)
	if !ok {
		return tile.InvalidItemPointer, fmt.Errorf("mvcc: %s: %w", old, ErrNotVisible)
	}
	if vm.Committed() && vm.EndTS != tile.InfTS && vm.BeginTS <= tx.beginTS &&
		vm.EndTS > tx.beginTS {

		// Visible to tx, but already superseded by a later committed transaction.
		m.writeConflicts.Add(1)
		log.WithFields(log.Fields{"txn": tx.id, "version": old}).Info("mvcc: write conflict")
		m.abort(tx)
		return tile.InvalidItemPointer, fmt.Errorf("mvcc: %s: updating %s: %w", tx, old,
			ErrWriteConflict)
	}
	if !IsVisible(tx.current(), old, vm) {
		return tile.InvalidItemPointer, fmt.Errorf("mvcc: %s: %w", old, ErrNotVisible)
	}

	tx.superseded[old] = tx.command
	if vm.Committed() {
		return old, nil
	}
	// The row was last written by tx; its replacement takes the place of the tx's version.
	return vm.Prev, nil
}

// UpdateVersion publishes the version meta of a new version, written by tx into slot of g,
// which replaces the version at old.
func (m *Manager) UpdateVersion(tx *Transaction, old tile.ItemPointer, g *tile.Group,
	slot int) error {

	base, err := m.supersede(tx, old)
	if err != nil {
		return err
	}

	m.publish(tx, g, slot, base)
	if base.IsValid() {
		tx.replaced[base] = g.Pointer(slot)
	}
	return nil
}

// DeleteVersion marks the version at old as deleted by tx.
func (m *Manager) DeleteVersion(tx *Transaction, old tile.ItemPointer) error {
	base, err := m.supersede(tx, old)
	if err != nil {
		return err
	}

	if base.IsValid() {
		tx.replaced[base] = tile.InvalidItemPointer
	}
	return nil
}

func (m *Manager) validate(tx *Transaction) error {
	for old := range tx.replaced {
		g, slot := m.resolve(old)
		vm, _ := g.VersionMeta(slot)
		if vm.EndTS != tile.InfTS {
			m.writeConflicts.Add(1)
			return fmt.Errorf("mvcc: %s: committing %s: %w", tx, old, ErrWriteConflict)
		}
	}

	for _, ip := range tx.reads {
		if _, ok := tx.superseded[ip]; ok {
			continue
		}
		g, slot := m.resolve(ip)
		vm, ok := g.VersionMeta(slot)
		if !ok || !vm.Committed() {
			if ok && vm.TxnID == tx.id {
				continue
			}
			m.readConflicts.Add(1)
			return fmt.Errorf("mvcc: %s: committing %s: %w", tx, ip, ErrReadConflict)
		}
		if vm.EndTS != tile.InfTS {
			m.readConflicts.Add(1)
			return fmt.Errorf("mvcc: %s: committing %s: %w", tx, ip, ErrReadConflict)
		}
	}

	return nil
}

// Commit validates that no version superseded by tx (or read by tx, with read validation) was
// superseded by a transaction which committed first; if one was, tx is aborted.
func (m *Manager) Commit(ctx context.Context, tx *Transaction) error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		m.abort(tx)
		return err
	}

	m.commitMutex.Lock()

	err := m.validate(tx)
	if err != nil {
		m.commitMutex.Unlock()

		log.WithFields(log.Fields{"txn": tx.id, "error": err}).Info("mvcc: aborting")
		m.abort(tx)
		return err
	}

	commitTS := tile.Timestamp(m.lastCommitTS.Load() + 1)
	evt := CommitEvent{
		TxnID:    tx.id,
		CommitTS: commitTS,
	}

	var discard []version
	for _, v := range tx.created {
		ip := v.pointer()
		if _, ok := tx.superseded[ip]; ok {
			discard = append(discard, v)
			continue
		}
		v.g.UpdateVersionMeta(v.slot, func(vm tile.VersionMeta) tile.VersionMeta {
			vm.TxnID = tile.InvalidTxnID
			vm.BeginTS = commitTS
			vm.Command = 0
			return vm
		})
		evt.Created = append(evt.Created, ip)
	}

	for old, next := range tx.replaced {
		g, slot := m.resolve(old)
		g.UpdateVersionMeta(slot, func(vm tile.VersionMeta) tile.VersionMeta {
			vm.EndTS = commitTS
			vm.Next = next
			return vm
		})
		evt.Superseded = append(evt.Superseded, old)
	}

	for _, v := range discard {
		v.g.Release(v.slot)
	}

	tx.commitTS = commitTS
	tx.state = Committed
	m.lastCommitTS.Store(uint64(commitTS))
	m.commitMutex.Unlock()

	m.committed.Add(1)
	tx.finish()

	log.WithFields(log.Fields{
		"txn":       tx.id,
		"commit_ts": commitTS,
		"created":   len(evt.Created),
		"ended":     len(evt.Superseded),
	}).Debug("mvcc: commit")

	m.hooksMutex.RLock()
	hooks := m.hooks
	m.hooksMutex.RUnlock()
	for _, fn := range hooks {
		fn(evt)
	}
	return nil
}

// Abort discards every version written by tx and runs its undo functions.
func (m *Manager) Abort(tx *Transaction) error {
	if err := tx.checkActive(); err != nil {
		return err
	}

	m.abort(tx)
	return nil
}

func (m *Manager) abort(tx *Transaction) {
	for idx := len(tx.undo) - 1; idx >= 0; idx -= 1 {
		tx.undo[idx]()
	}
	for _, v := range tx.created {
		v.g.Release(v.slot)
	}

	tx.state = Aborted
	m.aborted.Add(1)
	tx.finish()

	log.WithFields(log.Fields{"txn": tx.id}).Debug("mvcc: abort")
}

func (tx *Transaction) finish() {
	tx.created = nil
	tx.replaced = nil
	tx.reads = nil
	tx.undo = nil
}
