package mvcc

import (
	"fmt"

	"github.com/leftmike/pax/tile"
)

// Snapshot is the view of the database a transaction reads through.
type Snapshot struct {
	TxnID   tile.TxnID
	BeginTS tile.Timestamp

	// Command orders the writes of the transaction: a version written by the transaction is
	// visible to snapshots taken after the write, and not to snapshots taken before it.
	Command uint32

	// Superseded holds the versions the transaction has updated or deleted, and the command at
	// which each was superseded.
	Superseded map[tile.ItemPointer]uint32
}

// IsVisible decides if the version at ip with meta vm is visible to snap.
//
// A version written by snap's transaction is visible if it was written before snap was taken.
// A committed version is visible if it was committed no later than the begin timestamp of snap,
// was not superseded by a transaction committed no later than that begin timestamp, and has
// not been superseded by snap's own transaction.
func IsVisible(snap Snapshot, ip tile.ItemPointer, vm tile.VersionMeta) bool {
	if !vm.Committed() {
		if vm.TxnID != snap.TxnID || vm.Command >= snap.Command {
			return false
		}
	} else {
		if vm.EndTS <= vm.BeginTS {
			panic(fmt.Sprintf("mvcc: corrupt version meta at %s: %s", ip, vm))
		}
		if vm.BeginTS > snap.BeginTS || vm.EndTS <= snap.BeginTS {
			return false
		}
	}

	if cmd, ok := snap.Superseded[ip]; ok && cmd < snap.Command {
		return false
	}
	return true
}
