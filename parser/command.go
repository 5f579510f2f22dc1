package parser

import (
	"fmt"
	"strings"

	"github.com/leftmike/pax/sql"
)

// Command is a parsed console command.
type Command interface {
	fmt.Stringer
}

// Condition compares a column with a value; conditions in a where clause are and'ed.
type Condition struct {
	Column string
	Op     string
	Value  sql.Value
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Column, c.Op, sql.Format(c.Value))
}

type Where []Condition

func (w Where) String() string {
	if len(w) == 0 {
		return ""
	}
	conds := make([]string, 0, len(w))
	for _, c := range w {
		conds = append(conds, c.String())
	}
	return " where " + strings.Join(conds, " and ")
}

type CreateTable struct {
	Table   string
	Columns []sql.Column
	Layout  string
}

func (stmt *CreateTable) String() string {
	cols := make([]string, 0, len(stmt.Columns))
	for _, col := range stmt.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", col.Name, col.Type))
	}
	s := fmt.Sprintf("create table %s (%s)", stmt.Table, strings.Join(cols, ", "))
	if stmt.Layout != "" {
		s += " layout " + stmt.Layout
	}
	return s
}

type CreateIndex struct {
	Index   string
	Table   string
	Columns []string
}

func (stmt *CreateIndex) String() string {
	return fmt.Sprintf("create index %s on %s (%s)", stmt.Index, stmt.Table,
		strings.Join(stmt.Columns, ", "))
}

type DropTable struct {
	Table string
}

func (stmt *DropTable) String() string {
	return fmt.Sprintf("drop table %s", stmt.Table)
}

type Begin struct{}

func (_ *Begin) String() string {
	return "begin"
}

type Commit struct{}

func (_ *Commit) String() string {
	return "commit"
}

type Abort struct{}

func (_ *Abort) String() string {
	return "abort"
}

func formatRows(rows [][]sql.Value) string {
	s := make([]string, 0, len(rows))
	for _, row := range rows {
		s = append(s, sql.FormatRow(row))
	}
	return strings.Join(s, ", ")
}

type Insert struct {
	Table string
	Rows  [][]sql.Value
}

func (stmt *Insert) String() string {
	return fmt.Sprintf("insert into %s values %s", stmt.Table, formatRows(stmt.Rows))
}

type ColumnValue struct {
	Column string
	Value  sql.Value
}

type Update struct {
	Table string
	Set   []ColumnValue
	Where Where
}

func (stmt *Update) String() string {
	set := make([]string, 0, len(stmt.Set))
	for _, cv := range stmt.Set {
		set = append(set, fmt.Sprintf("%s = %s", cv.Column, sql.Format(cv.Value)))
	}
	return fmt.Sprintf("update %s set %s%s", stmt.Table, strings.Join(set, ", "), stmt.Where)
}

type Delete struct {
	Table string
	Where Where
}

func (stmt *Delete) String() string {
	return fmt.Sprintf("delete from %s%s", stmt.Table, stmt.Where)
}

// Scan is a sequential scan of a table.
type Scan struct {
	Table string
	Where Where
}

func (stmt *Scan) String() string {
	return fmt.Sprintf("scan %s%s", stmt.Table, stmt.Where)
}

// Lookup is an index scan of the keys in [Lo, Hi].
type Lookup struct {
	Table  string
	Index  string
	Lo, Hi []sql.Value
	Where  Where
}

func (stmt *Lookup) String() string {
	if sql.FormatRow(stmt.Lo) == sql.FormatRow(stmt.Hi) {
		return fmt.Sprintf("lookup %s using %s = %s%s", stmt.Table, stmt.Index,
			sql.FormatRow(stmt.Lo), stmt.Where)
	}
	return fmt.Sprintf("lookup %s using %s between %s and %s%s", stmt.Table, stmt.Index,
		sql.FormatRow(stmt.Lo), sql.FormatRow(stmt.Hi), stmt.Where)
}

// Bitmap is a bitmap heap scan of the rows with any of Keys.
type Bitmap struct {
	Table string
	Index string
	Keys  [][]sql.Value
	Where Where
}

func (stmt *Bitmap) String() string {
	return fmt.Sprintf("bitmap %s using %s in %s%s", stmt.Table, stmt.Index,
		formatRows(stmt.Keys), stmt.Where)
}

type Join struct {
	Left, Right         string
	LeftCols, RightCols []string
	Strategy            string
}

func (stmt *Join) String() string {
	on := make([]string, 0, len(stmt.LeftCols))
	for cdx := range stmt.LeftCols {
		on = append(on, fmt.Sprintf("%s = %s", stmt.LeftCols[cdx], stmt.RightCols[cdx]))
	}
	s := fmt.Sprintf("join %s, %s on %s", stmt.Left, stmt.Right, strings.Join(on, " and "))
	if stmt.Strategy != "" {
		s += " using " + stmt.Strategy
	}
	return s
}

// Show lists tables, transaction stats, or config variables.
type Show struct {
	What string
}

func (stmt *Show) String() string {
	return fmt.Sprintf("show %s", stmt.What)
}

type Describe struct {
	Table string
}

func (stmt *Describe) String() string {
	return fmt.Sprintf("describe %s", stmt.Table)
}

type Set struct {
	Variable string
	Value    string
}

func (stmt *Set) String() string {
	return fmt.Sprintf("set %s = %s", stmt.Variable, stmt.Value)
}
