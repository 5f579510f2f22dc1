package mvcc

import (
	"fmt"

	"github.com/leftmike/pax/tile"
)

type State int

const (
	Active State = iota
	Committed
	Aborted
)

func (st State) String() string {
	switch st {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state-%d", int(st))
}

type version struct {
	g    *tile.Group
	slot int
}

func (v version) pointer() tile.ItemPointer {
	return v.g.Pointer(v.slot)
}

// Transaction is owned by a single goroutine at a time.
type Transaction struct {
	m        *Manager
	id       tile.TxnID
	beginTS  tile.Timestamp
	commitTS tile.Timestamp
	state    State
	command  uint32

	// Versions written by the transaction.
	created []version

	superseded map[tile.ItemPointer]uint32

	// Committed versions superseded by the transaction, mapped to their replacements; a
	// deleted version is mapped to tile.InvalidItemPointer.
	replaced map[tile.ItemPointer]tile.ItemPointer

	reads []tile.ItemPointer
	undo  []func()
}

func (tx *Transaction) ID() tile.TxnID {
	return tx.id
}

func (tx *Transaction) BeginTS() tile.Timestamp {
	return tx.beginTS
}

// CommitTS is valid once the transaction has committed.
func (tx *Transaction) CommitTS() tile.Timestamp {
	return tx.commitTS
}

func (tx *Transaction) State() State {
	return tx.state
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("transaction-%d", tx.id)
}

func (tx *Transaction) checkActive() error {
	if tx.state != Active {
		return fmt.Errorf("mvcc: %s is %s: %w", tx, tx.state, ErrInvalidTransactionState)
	}
	return nil
}

// Snapshot returns the view for a new read of the transaction: it includes all of the
// transaction's previous writes, but none of its later writes.
func (tx *Transaction) Snapshot() Snapshot {
	tx.command += 1
	return tx.view()
}

func (tx *Transaction) view() Snapshot {
	return Snapshot{
		TxnID:      tx.id,
		BeginTS:    tx.beginTS,
		Command:    tx.command,
		Superseded: tx.superseded,
	}
}

// current includes every write of the transaction so far.
func (tx *Transaction) current() Snapshot {
	snap := tx.view()
	snap.Command += 1
	return snap
}

// RecordRead adds ip to the read set of the transaction, if reads are being validated.
func (tx *Transaction) RecordRead(ip tile.ItemPointer) {
	if tx.m.readValidation {
		tx.reads = append(tx.reads, ip)
	}
}

// OnAbort registers fn to undo a change outside of the table, such as an index entry, if the
// transaction aborts. Undo functions run in reverse order of registration.
func (tx *Transaction) OnAbort(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// WriteCount returns the number of versions created and superseded by the transaction.
func (tx *Transaction) WriteCount() int {
	return len(tx.created) + len(tx.superseded)
}
