package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/engine"
	"github.com/leftmike/pax/execute"
	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/index"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/parser"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/table"
	"github.com/leftmike/pax/tile"
)

var (
	errNoTransaction     = errors.New("repl: no transaction started")
	errActiveTransaction = errors.New("repl: transaction already started")
)

type session struct {
	e  *engine.Engine
	w  io.Writer
	tx *mvcc.Transaction
}

// Run executes each command from p against e, writing results and errors to w. Commands
// outside of an explicit transaction each run in their own transaction. A transaction still
// open at the end of the input is aborted.
func Run(ctx context.Context, e *engine.Engine, p parser.Parser, w io.Writer) {
	ses := &session{
		e: e,
		w: w,
	}

	for {
		cmd, err := p.Parse()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}

		log.WithField("command", cmd.String()).Debug("repl: execute")
		err = ses.execute(ctx, cmd)
		if err != nil {
			fmt.Fprintln(w, err)
		}
	}

	if ses.tx != nil {
		log.WithField("txn", ses.tx.ID()).Info("repl: aborting open transaction")
		e.Abort(ses.tx)
		ses.tx = nil
	}
}

func (ses *session) execute(ctx context.Context, cmd parser.Command) error {
	switch cmd := cmd.(type) {
	case *parser.Begin:
		if ses.tx != nil {
			return errActiveTransaction
		}
		ses.tx = ses.e.Begin()
		return nil
	case *parser.Commit:
		if ses.tx == nil {
			return errNoTransaction
		}
		tx := ses.tx
		ses.tx = nil
		return ses.e.Commit(ctx, tx)
	case *parser.Abort:
		if ses.tx == nil {
			return errNoTransaction
		}
		tx := ses.tx
		ses.tx = nil
		return ses.e.Abort(tx)
	case *parser.CreateTable:
		return ses.createTable(cmd)
	case *parser.CreateIndex:
		_, err := ses.e.CreateIndex(cmd.Table, cmd.Index, cmd.Columns)
		return err
	case *parser.DropTable:
		return ses.e.DropTable(cmd.Table)
	case *parser.Describe:
		return ses.describe(cmd)
	case *parser.Show:
		return ses.show(cmd)
	case *parser.Set:
		return ses.e.Config().Set(cmd.Variable, cmd.Value)
	case *parser.Insert:
		return ses.run(ctx, func(tx *mvcc.Transaction) error {
			return ses.insert(ctx, tx, cmd)
		})
	case *parser.Update:
		return ses.run(ctx, func(tx *mvcc.Transaction) error {
			return ses.update(ctx, tx, cmd)
		})
	case *parser.Delete:
		return ses.run(ctx, func(tx *mvcc.Transaction) error {
			return ses.delete(ctx, tx, cmd)
		})
	case *parser.Scan, *parser.Lookup, *parser.Bitmap, *parser.Join:
		return ses.run(ctx, func(tx *mvcc.Transaction) error {
			rows, err := ses.query(ctx, tx, cmd)
			if err != nil {
				return err
			}
			return ses.output(ctx, rows)
		})
	}

	panic(fmt.Sprintf("unexpected command: %T: %s", cmd, cmd))
}

// run calls fn in the current transaction, or in a new transaction which is committed if fn
// succeeds and aborted otherwise.
func (ses *session) run(ctx context.Context, fn func(tx *mvcc.Transaction) error) error {
	if ses.tx != nil {
		return fn(ses.tx)
	}

	tx := ses.e.Begin()
	err := fn(tx)
	if err != nil {
		ses.e.Abort(tx)
		return err
	}
	return ses.e.Commit(ctx, tx)
}

func (ses *session) createTable(cmd *parser.CreateTable) error {
	schema, err := sql.NewSchema(cmd.Columns...)
	if err != nil {
		return err
	}

	var layout *tile.Layout
	if cmd.Layout != "" {
		l, err := tile.ParseLayout(cmd.Layout, schema.ColumnCount())
		if err != nil {
			return err
		}
		layout = &l
	}
	_, err = ses.e.CreateTable(cmd.Table, schema, layout)
	return err
}

// coerce converts integer values stored in float columns to floats.
func coerce(ct sql.ColumnType, v sql.Value) sql.Value {
	if i, ok := v.(sql.Int64Value); ok && ct.Type == sql.FloatType {
		return sql.Float64Value(i)
	}
	return v
}

func (ses *session) insert(ctx context.Context, tx *mvcc.Transaction, cmd *parser.Insert) error {
	tbl, err := ses.e.LookupTable(cmd.Table)
	if err != nil {
		return err
	}

	schema := tbl.Schema()
	rows := make([][]sql.Value, 0, len(cmd.Rows))
	for _, row := range cmd.Rows {
		if len(row) != schema.ColumnCount() {
			return fmt.Errorf("%w: %s: expected %d values got %d", sql.ErrSchemaMismatch,
				cmd.Table, schema.ColumnCount(), len(row))
		}
		r := make([]sql.Value, len(row))
		for cdx, v := range row {
			r[cdx] = coerce(schema.Column(cdx).Type, v)
		}
		rows = append(rows, r)
	}

	cnt, err := ses.e.Insert(ctx, tx, cmd.Table, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(ses.w, "%d rows updated\n", cnt)
	return nil
}

func columnNumber(tbl *table.Table, col string) (int, error) {
	num := tbl.Schema().ColumnIndex(col)
	if num < 0 {
		return 0, fmt.Errorf("repl: %s: column not found: %s", tbl.Name(), col)
	}
	return num, nil
}

// predicate returns a predicate for the conditions of where, or nil if there are none. A
// comparison with NULL is never true.
func predicate(tbl *table.Table, where parser.Where) (execute.Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}

	type cond struct {
		col int
		op  string
		val sql.Value
	}
	conds := make([]cond, 0, len(where))
	for _, c := range where {
		num, err := columnNumber(tbl, c.Column)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond{col: num, op: c.Op, val: c.Value})
	}

	return func(row []sql.Value) (bool, error) {
		for _, c := range conds {
			v := row[c.col]
			if v == nil || c.val == nil {
				return false, nil
			}
			cmp, err := v.Compare(c.val)
			if err != nil {
				return false, fmt.Errorf("repl: %s: %s", tbl.Schema().Column(c.col).Name, err)
			}

			var ok bool
			switch c.op {
			case "=":
				ok = cmp == 0
			case "!=":
				ok = cmp != 0
			case "<":
				ok = cmp < 0
			case "<=":
				ok = cmp <= 0
			case ">":
				ok = cmp > 0
			case ">=":
				ok = cmp >= 0
			default:
				panic(fmt.Sprintf("unexpected comparison: %s", c.op))
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

// modify calls fn with a sequential scan of the rows of a table matching where, maintaining
// all of the indexes of the table, and prints how many rows fn changed.
func (ses *session) modify(ctx context.Context, tx *mvcc.Transaction, tblName string,
	where parser.Where, fn func(tbl *table.Table, s *execute.Scan) (int64, error)) error {

	var cnt int64
	err := ses.e.WithIndexes(tblName,
		func(tbl *table.Table, idxs []*index.Index) error {
			pred, err := predicate(tbl, where)
			if err != nil {
				return err
			}
			s, err := execute.SeqScan(ctx, tbl, tx, pred)
			if err != nil {
				return err
			}
			defer s.Close()

			cnt, err = fn(tbl, s.Maintain(idxs...))
			return err
		})
	if err != nil {
		return err
	}

	fmt.Fprintf(ses.w, "%d rows updated\n", cnt)
	return nil
}

func (ses *session) update(ctx context.Context, tx *mvcc.Transaction, cmd *parser.Update) error {
	return ses.modify(ctx, tx, cmd.Table, cmd.Where,
		func(tbl *table.Table, s *execute.Scan) (int64, error) {
			updates := make([]sql.ColumnUpdate, 0, len(cmd.Set))
			for _, cv := range cmd.Set {
				num, err := columnNumber(tbl, cv.Column)
				if err != nil {
					return 0, err
				}
				updates = append(updates,
					sql.ColumnUpdate{
						Index: num,
						Value: coerce(tbl.Schema().Column(num).Type, cv.Value),
					})
			}

			var cnt int64
			dest := make([]sql.Value, tbl.Schema().ColumnCount())
			for {
				err := s.Next(ctx, dest)
				if err == io.EOF {
					return cnt, nil
				} else if err != nil {
					return cnt, err
				}
				err = s.Update(ctx, updates)
				if err != nil {
					return cnt, err
				}
				cnt += 1
			}
		})
}

func (ses *session) delete(ctx context.Context, tx *mvcc.Transaction, cmd *parser.Delete) error {
	return ses.modify(ctx, tx, cmd.Table, cmd.Where,
		func(tbl *table.Table, s *execute.Scan) (int64, error) {
			var cnt int64
			dest := make([]sql.Value, tbl.Schema().ColumnCount())
			for {
				err := s.Next(ctx, dest)
				if err == io.EOF {
					return cnt, nil
				} else if err != nil {
					return cnt, err
				}
				err = s.Delete(ctx)
				if err != nil {
					return cnt, err
				}
				cnt += 1
			}
		})
}

func (ses *session) query(ctx context.Context, tx *mvcc.Transaction,
	cmd parser.Command) (sql.Rows, error) {

	switch cmd := cmd.(type) {
	case *parser.Scan:
		tbl, err := ses.e.LookupTable(cmd.Table)
		if err != nil {
			return nil, err
		}
		pred, err := predicate(tbl, cmd.Where)
		if err != nil {
			return nil, err
		}
		return execute.SeqScan(ctx, tbl, tx, pred)
	case *parser.Lookup:
		tbl, err := ses.e.LookupTable(cmd.Table)
		if err != nil {
			return nil, err
		}
		idx, err := ses.e.LookupIndex(cmd.Table, cmd.Index)
		if err != nil {
			return nil, err
		}
		pred, err := predicate(tbl, cmd.Where)
		if err != nil {
			return nil, err
		}
		return execute.IndexScan(ctx, tbl, tx, idx, cmd.Lo, cmd.Hi, pred)
	case *parser.Bitmap:
		tbl, err := ses.e.LookupTable(cmd.Table)
		if err != nil {
			return nil, err
		}
		idx, err := ses.e.LookupIndex(cmd.Table, cmd.Index)
		if err != nil {
			return nil, err
		}
		pred, err := predicate(tbl, cmd.Where)
		if err != nil {
			return nil, err
		}
		probes := make([]index.Probe, 0, len(cmd.Keys))
		for _, key := range cmd.Keys {
			probes = append(probes, index.Equal(idx, key...))
		}
		return execute.BitmapHeapScan(ctx, tbl, tx, probes,
			ses.e.Config().Flags.GetFlag(flags.BitmapRecheck), pred)
	case *parser.Join:
		return ses.join(ctx, tx, cmd)
	}

	panic(fmt.Sprintf("unexpected query: %T: %s", cmd, cmd))
}

func (ses *session) joinSide(ctx context.Context, tx *mvcc.Transaction, tblName string,
	cols []string) (sql.Rows, []int, error) {

	tbl, err := ses.e.LookupTable(tblName)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]int, 0, len(cols))
	for _, col := range cols {
		num, err := columnNumber(tbl, col)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, num)
	}
	rows, err := execute.SeqScan(ctx, tbl, tx, nil)
	if err != nil {
		return nil, nil, err
	}
	return rows, keys, nil
}

func (ses *session) join(ctx context.Context, tx *mvcc.Transaction,
	cmd *parser.Join) (sql.Rows, error) {

	left, lkeys, err := ses.joinSide(ctx, tx, cmd.Left, cmd.LeftCols)
	if err != nil {
		return nil, err
	}
	right, rkeys, err := ses.joinSide(ctx, tx, cmd.Right, cmd.RightCols)
	if err != nil {
		left.Close()
		return nil, err
	}

	switch cmd.Strategy {
	case "merge":
		ls, err := execute.Sort(ctx, left, sql.MakeColumnKeys(lkeys...))
		if err != nil {
			right.Close()
			return nil, err
		}
		rs, err := execute.Sort(ctx, right, sql.MakeColumnKeys(rkeys...))
		if err != nil {
			return nil, err
		}
		return execute.MergeJoin(ls, rs, lkeys, rkeys)
	case "grace":
		return execute.GraceHashJoin(left, right, lkeys, rkeys, ses.e.GraceOptions())
	default:
		return execute.HashJoin(left, right, lkeys, rkeys, execute.BuildRight)
	}
}

func newTableWriter(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader(header)
	return tw
}

func (ses *session) output(ctx context.Context, rows sql.Rows) error {
	defer rows.Close()

	cols := rows.Columns()
	tw := newTableWriter(ses.w, cols)

	row := make([]string, len(cols))
	dest := make([]sql.Value, len(cols))
	var err error
	for {
		err = rows.Next(ctx, dest)
		if err != nil {
			break
		}

		for cdx, v := range dest {
			if s, ok := v.(sql.StringValue); ok {
				row[cdx] = string(s)
				continue
			}
			row[cdx] = sql.Format(v)
		}
		tw.Append(row)
	}
	if err != io.EOF {
		return err
	}

	tw.Render()
	fmt.Fprintf(ses.w, "(%d rows)\n", tw.NumLines())

	if gj, ok := rows.(*execute.GraceHashJoinRows); ok {
		st := gj.Stats()
		log.WithFields(log.Fields{
			"spilled":    st.Spilled,
			"partitions": st.Partitions,
			"depth":      st.Depth,
		}).Info("repl: grace hash join")
	}
	return nil
}

func (ses *session) describe(cmd *parser.Describe) error {
	tbl, err := ses.e.LookupTable(cmd.Table)
	if err != nil {
		return err
	}
	idxs, err := ses.e.Indexes(cmd.Table)
	if err != nil {
		return err
	}

	layout := tbl.Layout()
	tw := newTableWriter(ses.w, []string{"column", "type", "tile"})
	for cdx, col := range tbl.Schema().Columns() {
		tdx, _ := layout.Locate(cdx)
		tw.Append([]string{col.Name, col.Type.String(), fmt.Sprintf("%d", tdx)})
	}
	tw.Render()

	fmt.Fprintf(ses.w, "layout: %s\n", layout)
	for _, idx := range idxs {
		var cols []string
		for _, cdx := range idx.Columns() {
			cols = append(cols, tbl.Schema().Column(cdx).Name)
		}
		fmt.Fprintf(ses.w, "index %s (%s)\n", idx.Name(), strings.Join(cols, ", "))
	}
	return nil
}

func (ses *session) show(cmd *parser.Show) error {
	switch cmd.What {
	case "tables":
		tw := newTableWriter(ses.w, []string{"table", "layout", "tile_groups", "indexes"})
		for _, name := range ses.e.ListTables() {
			tbl, err := ses.e.LookupTable(name)
			if err != nil {
				// Dropped since listing.
				continue
			}
			idxs, err := ses.e.Indexes(name)
			if err != nil {
				continue
			}
			var names []string
			for _, idx := range idxs {
				names = append(names, idx.Name())
			}
			tw.Append([]string{name, tbl.Layout().String(),
				fmt.Sprintf("%d", tbl.TileGroupCount()), strings.Join(names, ", ")})
		}
		tw.Render()
		fmt.Fprintf(ses.w, "(%d rows)\n", tw.NumLines())
	case "stats":
		st := ses.e.Manager().Stats()
		tw := newTableWriter(ses.w, []string{"stat", "value"})
		tw.Append([]string{"begun", fmt.Sprintf("%d", st.Begun)})
		tw.Append([]string{"committed", fmt.Sprintf("%d", st.Committed)})
		tw.Append([]string{"aborted", fmt.Sprintf("%d", st.Aborted)})
		tw.Append([]string{"write_conflicts", fmt.Sprintf("%d", st.WriteConflicts)})
		tw.Append([]string{"read_conflicts", fmt.Sprintf("%d", st.ReadConflicts)})
		tw.Append([]string{"last_commit_ts", fmt.Sprintf("%d", st.LastCommitTS)})
		tw.Render()
	case "config":
		tw := newTableWriter(ses.w, []string{"name", "by", "value"})
		for _, v := range ses.e.Config().Variables() {
			tw.Append([]string{v.Name, v.By, v.Value})
		}
		tw.Render()
	default:
		panic(fmt.Sprintf("unexpected show: %s", cmd.What))
	}
	return nil
}
