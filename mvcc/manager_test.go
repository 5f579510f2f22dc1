package mvcc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/tile"
)

type harness struct {
	t   *testing.T
	reg *tile.Registry
	m   *mvcc.Manager
	g   *tile.Group
}

func newHarness(t *testing.T, flgs flags.Flags) *harness {
	t.Helper()

	reg := tile.NewRegistry()
	g, err := reg.NewGroup([]sql.ColumnType{sql.Int64ColType}, tile.RowLayout(1), 256)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{
		t:   t,
		reg: reg,
		m:   mvcc.NewManager(reg, flgs),
		g:   g,
	}
}

func (h *harness) insert(tx *mvcc.Transaction, i int64) tile.ItemPointer {
	h.t.Helper()

	slot, err := h.g.Insert(0)
	if err != nil {
		h.t.Fatal(err)
	}
	h.g.WriteValues(slot, []sql.Value{sql.Int64Value(i)})
	err = h.m.InsertVersion(tx, h.g, slot)
	if err != nil {
		h.t.Fatalf("InsertVersion(%s) failed with %s", tx, err)
	}
	return h.g.Pointer(slot)
}

func (h *harness) update(tx *mvcc.Transaction, old tile.ItemPointer, i int64) (tile.ItemPointer,
	error) {

	h.t.Helper()

	slot, err := h.g.Insert(0)
	if err != nil {
		h.t.Fatal(err)
	}
	h.g.WriteValues(slot, []sql.Value{sql.Int64Value(i)})
	err = h.m.UpdateVersion(tx, old, h.g, slot)
	if err != nil {
		h.g.Release(slot)
		return tile.InvalidItemPointer, err
	}
	return h.g.Pointer(slot), nil
}

func (h *harness) visible(tx *mvcc.Transaction, ip tile.ItemPointer) bool {
	vm, ok := h.g.VersionMeta(int(ip.Slot))
	return ok && mvcc.IsVisible(tx.Snapshot(), ip, vm)
}

// visibleRows returns the values of every row visible to tx.
func (h *harness) visibleRows(tx *mvcc.Transaction) []int64 {
	var rows []int64
	snap := tx.Snapshot()
	for slot := h.g.NextOccupied(0); slot >= 0; slot = h.g.NextOccupied(slot + 1) {
		vm, ok := h.g.VersionMeta(slot)
		if !ok || !mvcc.IsVisible(snap, h.g.Pointer(slot), vm) {
			continue
		}
		dest := make([]sql.Value, 1)
		h.g.Read(slot, nil, dest)
		rows = append(rows, int64(dest[0].(sql.Int64Value)))
	}
	return rows
}

func (h *harness) commit(tx *mvcc.Transaction) {
	h.t.Helper()

	err := h.m.Commit(context.Background(), tx)
	if err != nil {
		h.t.Fatalf("Commit(%s) failed with %s", tx, err)
	}
}

func TestInsertRoundTrip(t *testing.T) {
	h := newHarness(t, flags.Default())

	before := h.m.Begin()
	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	if !h.visible(tx, ip) {
		t.Errorf("insert not visible to writer")
	}
	if h.visible(before, ip) {
		t.Errorf("uncommitted insert visible to another transaction")
	}
	h.commit(tx)

	if tx.State() != mvcc.Committed {
		t.Errorf("State() got %s want %s", tx.State(), mvcc.Committed)
	}
	if tx.CommitTS() <= tx.BeginTS() {
		t.Errorf("CommitTS() got %d; must be after BeginTS() %d", tx.CommitTS(), tx.BeginTS())
	}
	if h.visible(before, ip) {
		t.Errorf("insert visible to transaction with an earlier begin timestamp")
	}

	after := h.m.Begin()
	if after.BeginTS() < tx.CommitTS() {
		t.Errorf("BeginTS() got %d want at least %d", after.BeginTS(), tx.CommitTS())
	}
	if !h.visible(after, ip) {
		t.Errorf("committed insert not visible to later transaction")
	}

	vm, _ := h.g.VersionMeta(int(ip.Slot))
	if !vm.Committed() || vm.BeginTS != tx.CommitTS() || vm.EndTS != tile.InfTS {
		t.Errorf("VersionMeta(%s) got %s", ip, vm)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	h.commit(tx)

	reader := h.m.Begin()
	want := h.visibleRows(reader)
	if len(want) != 1 {
		t.Fatalf("visibleRows() got %v want [1]", want)
	}

	for i := int64(2); i < 6; i += 1 {
		tx := h.m.Begin()
		h.insert(tx, i)
		if i == 3 {
			_, err := h.update(tx, ip, 100)
			if err != nil {
				t.Fatalf("UpdateVersion() failed with %s", err)
			}
		}
		h.commit(tx)

		got := h.visibleRows(reader)
		if len(got) != 1 || got[0] != want[0] {
			t.Errorf("visibleRows() after commit %d got %v want %v", i, got, want)
		}
	}

	got := h.visibleRows(h.m.Begin())
	if len(got) != 5 {
		t.Errorf("visibleRows() of new transaction got %v; want 5 rows", got)
	}
}

func TestNoDirtyReads(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx1 := h.m.Begin()
	ip := h.insert(tx1, 1)
	h.commit(tx1)

	tx2 := h.m.Begin()
	_, err := h.update(tx2, ip, 2)
	if err != nil {
		t.Fatal(err)
	}
	h.insert(tx2, 3)

	tx3 := h.m.Begin()
	got := h.visibleRows(tx3)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("visibleRows() with an uncommitted writer got %v want [1]", got)
	}

	got = h.visibleRows(tx2)
	if len(got) != 2 {
		t.Errorf("visibleRows() of writer got %v want [2 3]", got)
	}
}

func TestFirstCommitterWins(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	h.commit(tx)

	tx1 := h.m.Begin()
	tx2 := h.m.Begin()
	_, err := h.update(tx1, ip, 10)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.update(tx2, ip, 20)
	if err != nil {
		t.Fatal(err)
	}

	h.commit(tx1)
	err = h.m.Commit(context.Background(), tx2)
	if !errors.Is(err, mvcc.ErrWriteConflict) {
		t.Errorf("Commit(tx2) got %v want %s", err, mvcc.ErrWriteConflict)
	}
	if tx2.State() != mvcc.Aborted {
		t.Errorf("State() got %s want %s", tx2.State(), mvcc.Aborted)
	}

	got := h.visibleRows(h.m.Begin())
	if len(got) != 1 || got[0] != 10 {
		t.Errorf("visibleRows() got %v want [10]", got)
	}

	// A transaction that began before tx1 committed can not update the row.
	tx3 := h.m.Begin()
	tx4 := h.m.Begin()
	ip10 := h.visiblePointer(tx3)
	_, err = h.update(tx3, ip10, 30)
	if err != nil {
		t.Fatal(err)
	}
	h.commit(tx3)
	_, err = h.update(tx4, ip10, 40)
	if !errors.Is(err, mvcc.ErrWriteConflict) {
		t.Errorf("UpdateVersion() of a superseded version got %v want %s", err,
			mvcc.ErrWriteConflict)
	}
	if tx4.State() != mvcc.Aborted {
		t.Errorf("State() got %s want %s", tx4.State(), mvcc.Aborted)
	}

	st := h.m.Stats()
	if st.WriteConflicts != 2 || st.Aborted != 2 {
		t.Errorf("Stats() got %+v; want 2 write conflicts and 2 aborted", st)
	}
}

func (h *harness) visiblePointer(tx *mvcc.Transaction) tile.ItemPointer {
	h.t.Helper()

	snap := tx.Snapshot()
	for slot := h.g.NextOccupied(0); slot >= 0; slot = h.g.NextOccupied(slot + 1) {
		vm, ok := h.g.VersionMeta(slot)
		if ok && mvcc.IsVisible(snap, h.g.Pointer(slot), vm) {
			return h.g.Pointer(slot)
		}
	}
	h.t.Fatal("no visible version")
	return tile.InvalidItemPointer
}

func TestAbortInvisibility(t *testing.T) {
	h := newHarness(t, flags.Default())

	var undone bool
	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	tx.OnAbort(func() { undone = true })
	err := h.m.Abort(tx)
	if err != nil {
		t.Fatalf("Abort() failed with %s", err)
	}

	if !undone {
		t.Error("Abort() did not run undo function")
	}
	if h.g.Occupied(int(ip.Slot)) {
		t.Errorf("Occupied(%d) after Abort got true", ip.Slot)
	}
	if h.visible(tx, ip) {
		t.Error("aborted insert visible to aborting transaction")
	}
	if h.visible(h.m.Begin(), ip) {
		t.Error("aborted insert visible to new transaction")
	}
	if h.g.ActiveSlots() != 0 {
		t.Errorf("ActiveSlots() after Abort got %d want 0", h.g.ActiveSlots())
	}
}

func TestInvalidTransactionState(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	h.commit(tx)

	err := h.m.Commit(context.Background(), tx)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("Commit(committed) got %v want %s", err, mvcc.ErrInvalidTransactionState)
	}
	err = h.m.Abort(tx)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("Abort(committed) got %v want %s", err, mvcc.ErrInvalidTransactionState)
	}

	tx = h.m.Begin()
	err = h.m.Abort(tx)
	if err != nil {
		t.Fatal(err)
	}
	slot, err := h.g.Insert(0)
	if err != nil {
		t.Fatal(err)
	}
	err = h.m.InsertVersion(tx, h.g, slot)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("InsertVersion(aborted) got %v want %s", err, mvcc.ErrInvalidTransactionState)
	}
	err = h.m.Commit(context.Background(), tx)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("Commit(aborted) got %v want %s", err, mvcc.ErrInvalidTransactionState)
	}
}

func TestVersionChain(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	v1 := h.insert(tx, 1)
	h.commit(tx)

	tx = h.m.Begin()
	v2, err := h.update(tx, v1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if h.visible(tx, v1) {
		t.Error("updated version visible to updater")
	}
	// Updating the transaction's own version replaces it.
	v3, err := h.update(tx, v2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if h.visible(tx, v2) || !h.visible(tx, v3) {
		t.Error("own update not visible or replaced version visible")
	}
	_, err = h.update(tx, v2, 4)
	if !errors.Is(err, mvcc.ErrNotVisible) {
		t.Errorf("UpdateVersion() of replaced version got %v want %s", err, mvcc.ErrNotVisible)
	}
	h.commit(tx)

	if h.g.Occupied(int(v2.Slot)) {
		t.Errorf("replaced version %s still occupied after commit", v2)
	}

	vm1, _ := h.g.VersionMeta(int(v1.Slot))
	vm3, _ := h.g.VersionMeta(int(v3.Slot))
	if vm1.Next != v3 || vm1.EndTS != tx.CommitTS() {
		t.Errorf("VersionMeta(%s) got %s want next %s end %d", v1, vm1, v3, tx.CommitTS())
	}
	if vm3.Prev != v1 || vm3.BeginTS != tx.CommitTS() {
		t.Errorf("VersionMeta(%s) got %s want prev %s begin %d", v3, vm3, v1, tx.CommitTS())
	}

	tx = h.m.Begin()
	err = h.m.DeleteVersion(tx, v3)
	if err != nil {
		t.Fatal(err)
	}
	h.commit(tx)

	got := h.visibleRows(h.m.Begin())
	if len(got) != 0 {
		t.Errorf("visibleRows() after delete got %v want []", got)
	}
	vm3, _ = h.g.VersionMeta(int(v3.Slot))
	if vm3.EndTS != tx.CommitTS() || vm3.Next.IsValid() {
		t.Errorf("VersionMeta(%s) after delete got %s", v3, vm3)
	}
}

func TestSnapshotCommands(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	snap := tx.Snapshot()
	ip := h.insert(tx, 1)

	vm, _ := h.g.VersionMeta(int(ip.Slot))
	if mvcc.IsVisible(snap, ip, vm) {
		t.Error("version visible to snapshot taken before it was written")
	}
	if !mvcc.IsVisible(tx.Snapshot(), ip, vm) {
		t.Error("version not visible to snapshot taken after it was written")
	}
}

func TestReadValidation(t *testing.T) {
	flgs := flags.Default()
	flgs.SetFlag(flags.ReadValidation, true)
	h := newHarness(t, flgs)

	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	h.commit(tx)

	reader := h.m.Begin()
	reader.RecordRead(ip)
	h.insert(reader, 2)

	writer := h.m.Begin()
	_, err := h.update(writer, ip, 10)
	if err != nil {
		t.Fatal(err)
	}
	h.commit(writer)

	err = h.m.Commit(context.Background(), reader)
	if !errors.Is(err, mvcc.ErrReadConflict) {
		t.Errorf("Commit() with stale read got %v want %s", err, mvcc.ErrReadConflict)
	}

	// Without read validation, the same history commits.
	h = newHarness(t, flags.Default())
	tx = h.m.Begin()
	ip = h.insert(tx, 1)
	h.commit(tx)

	reader = h.m.Begin()
	reader.RecordRead(ip)
	h.insert(reader, 2)
	writer = h.m.Begin()
	_, err = h.update(writer, ip, 10)
	if err != nil {
		t.Fatal(err)
	}
	h.commit(writer)
	h.commit(reader)
}

func TestOnCommit(t *testing.T) {
	h := newHarness(t, flags.Default())

	var events []mvcc.CommitEvent
	h.m.OnCommit(func(evt mvcc.CommitEvent) {
		events = append(events, evt)
	})

	tx := h.m.Begin()
	ip := h.insert(tx, 1)
	h.commit(tx)

	tx2 := h.m.Begin()
	ip2, err := h.update(tx2, ip, 2)
	if err != nil {
		t.Fatal(err)
	}
	h.commit(tx2)

	tx3 := h.m.Begin()
	h.insert(tx3, 3)
	h.m.Abort(tx3)

	if len(events) != 2 {
		t.Fatalf("OnCommit() got %d events want 2", len(events))
	}
	if events[0].TxnID != tx.ID() || events[0].CommitTS != tx.CommitTS() ||
		len(events[0].Created) != 1 || events[0].Created[0] != ip {

		t.Errorf("OnCommit() got %+v", events[0])
	}
	if len(events[1].Created) != 1 || events[1].Created[0] != ip2 ||
		len(events[1].Superseded) != 1 || events[1].Superseded[0] != ip {

		t.Errorf("OnCommit() got %+v", events[1])
	}

	st := h.m.Stats()
	if st.Begun != 3 || st.Committed != 2 || st.Aborted != 1 || st.LastCommitTS != tx2.CommitTS() {
		t.Errorf("Stats() got %+v", st)
	}
}

func TestCommitCanceled(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	ip := h.insert(tx, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.m.Commit(ctx, tx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Commit(canceled) got %v want %s", err, context.Canceled)
	}
	if tx.State() != mvcc.Aborted || h.g.Occupied(int(ip.Slot)) {
		t.Errorf("Commit(canceled) did not abort")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	h := newHarness(t, flags.Default())

	tx := h.m.Begin()
	h.insert(tx, 0)
	h.commit(tx)

	var wg sync.WaitGroup
	var mutex sync.Mutex
	var committed int
	for n := 0; n < 8; n += 1 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			for cnt := 0; cnt < 20; cnt += 1 {
				tx := h.m.Begin()
				snap := tx.Snapshot()
				var ip tile.ItemPointer
				for slot := h.g.NextOccupied(0); slot >= 0; slot = h.g.NextOccupied(slot + 1) {
					vm, ok := h.g.VersionMeta(slot)
					if ok && mvcc.IsVisible(snap, h.g.Pointer(slot), vm) {
						ip = h.g.Pointer(slot)
						break
					}
				}
				if !ip.IsValid() {
					t.Errorf("no visible version")
					h.m.Abort(tx)
					return
				}

				slot, err := h.g.Insert(0)
				if err != nil {
					h.m.Abort(tx)
					continue
				}
				h.g.WriteValues(slot, []sql.Value{sql.Int64Value(n)})
				err = h.m.UpdateVersion(tx, ip, h.g, slot)
				if err != nil {
					h.g.Release(slot)
					if tx.State() == mvcc.Active {
						h.m.Abort(tx)
					}
					continue
				}
				err = h.m.Commit(context.Background(), tx)
				if err == nil {
					mutex.Lock()
					committed += 1
					mutex.Unlock()
				} else if !errors.Is(err, mvcc.ErrWriteConflict) {
					t.Errorf("Commit() failed with %s", err)
				}
			}
		}(n)
	}
	wg.Wait()

	got := h.visibleRows(h.m.Begin())
	if len(got) != 1 {
		t.Errorf("visibleRows() after concurrent updates got %v; want one row", got)
	}
	st := h.m.Stats()
	if st.Committed != uint64(committed)+1 {
		t.Errorf("Stats().Committed got %d want %d", st.Committed, committed+1)
	}
}
