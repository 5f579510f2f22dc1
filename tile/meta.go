package tile

import (
	"fmt"
	"math"
)

type GroupID uint32

type TxnID uint64

type Timestamp uint64

const (
	InvalidTxnID TxnID = 0

	// InfTS is the end timestamp of the newest version of a row.
	InfTS Timestamp = math.MaxUint64
)

// ItemPointer identifies a slot, and so a single version of a row, within a tile group.
// Group ids start at 1; the zero ItemPointer is invalid.
type ItemPointer struct {
	Group GroupID
	Slot  uint32
}

var InvalidItemPointer = ItemPointer{}

func (ip ItemPointer) IsValid() bool {
	return ip.Group != 0
}

// Uint64 orders item pointers physically: by group and then by slot.
func (ip ItemPointer) Uint64() uint64 {
	return uint64(ip.Group)<<32 | uint64(ip.Slot)
}

func ItemPointerFromUint64(u uint64) ItemPointer {
	return ItemPointer{Group: GroupID(u >> 32), Slot: uint32(u)}
}

func (ip ItemPointer) String() string {
	if !ip.IsValid() {
		return "(-)"
	}
	return fmt.Sprintf("(%d,%d)", ip.Group, ip.Slot)
}

// VersionMeta is the version header of a slot. A published VersionMeta is never modified;
// changes are made by publishing a new one.
type VersionMeta struct {
	// TxnID is the writer of an uncommitted version; it is InvalidTxnID once the writer has
	// committed.
	TxnID TxnID

	// BeginTS is the commit timestamp of the writer once committed; while uncommitted, it is the
	// begin timestamp of the writer.
	BeginTS Timestamp

	// EndTS is the commit timestamp of the transaction which superseded this version, or InfTS.
	EndTS Timestamp

	// Command orders the writes of an uncommitted version's writer; it is zero once committed.
	Command uint32

	Prev ItemPointer // older version of the row
	Next ItemPointer // newer version of the row, once committed
}

func (vm VersionMeta) Committed() bool {
	return vm.TxnID == InvalidTxnID
}

func (vm VersionMeta) String() string {
	end := "inf"
	if vm.EndTS != InfTS {
		end = fmt.Sprintf("%d", vm.EndTS)
	}
	return fmt.Sprintf("txn: %d begin: %d end: %s cmd: %d prev: %s next: %s", vm.TxnID,
		vm.BeginTS, end, vm.Command, vm.Prev, vm.Next)
}
