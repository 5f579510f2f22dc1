package parser

import (
	"fmt"
	"io"
	"runtime"

	"github.com/leftmike/pax/parser/scanner"
	"github.com/leftmike/pax/parser/token"
	"github.com/leftmike/pax/sql"
)

type Parser interface {
	Parse() (Command, error)
}

type parser struct {
	scanner   scanner.Scanner
	sctx      scanner.ScanCtx
	unscanned bool
}

func NewParser(rr io.RuneReader, fn string) Parser {
	var p parser
	p.scanner.Init(rr, fn)
	return &p
}

// Parse returns the next command, or io.EOF when the input is done. After an error, parsing
// resumes with the next statement.
func (p *parser) Parse() (cmd Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			err = r.(error)
			cmd = nil
			p.skipStatement()
		}
	}()

	for {
		t := p.scan()
		if t == token.EOF {
			return nil, io.EOF
		} else if t != token.EndOfStatement {
			p.unscan()
			break
		}
	}

	cmd = p.parseCommand()
	if t := p.scan(); t != token.EndOfStatement && t != token.EOF {
		p.error(fmt.Sprintf("expected the end of the statement got %s", p.got()))
	}
	return
}

func (p *parser) skipStatement() {
	for p.sctx.Token != token.EndOfStatement && p.sctx.Token != token.EOF &&
		p.sctx.Token != token.Error {

		p.unscanned = false
		p.scanner.Scan(&p.sctx)
	}
}

func (p *parser) error(msg string) {
	panic(fmt.Errorf("parser: %s: %s", p.sctx.Position, msg))
}

func (p *parser) scan() rune {
	if p.unscanned {
		p.unscanned = false
		return p.sctx.Token
	}

	p.scanner.Scan(&p.sctx)
	if p.sctx.Token == token.Error {
		p.error(p.sctx.Error.Error())
	}
	return p.sctx.Token
}

func (p *parser) unscan() {
	p.unscanned = true
}

func (p *parser) got() string {
	switch p.sctx.Token {
	case token.EOF:
		return "end of input"
	case token.EndOfStatement:
		return "end of statement"
	case token.Identifier:
		return fmt.Sprintf("identifier %s", p.sctx.Identifier)
	case token.Reserved:
		return fmt.Sprintf("keyword %s", p.sctx.Identifier)
	case token.String:
		return fmt.Sprintf("string %q", p.sctx.String)
	case token.Integer:
		return fmt.Sprintf("integer %d", p.sctx.Integer)
	case token.Float:
		return fmt.Sprintf("float %f", p.sctx.Float)
	}
	return token.Format(p.sctx.Token)
}

func (p *parser) expectReserved(kws ...string) string {
	t := p.scan()
	if t == token.Reserved {
		for _, kw := range kws {
			if kw == p.sctx.Identifier {
				return kw
			}
		}
	}

	var msg string
	for i, kw := range kws {
		if i > 0 && i == len(kws)-1 {
			msg += ", or "
		} else if i > 0 {
			msg += ", "
		}
		msg += kw
	}
	p.error(fmt.Sprintf("expected keyword %s got %s", msg, p.got()))
	return ""
}

func (p *parser) optionalReserved(kws ...string) bool {
	t := p.scan()
	if t == token.Reserved {
		for _, kw := range kws {
			if kw == p.sctx.Identifier {
				return true
			}
		}
	}

	p.unscan()
	return false
}

func (p *parser) expectIdentifier(msg string) string {
	t := p.scan()
	if t != token.Identifier {
		p.error(fmt.Sprintf("%s got %s", msg, p.got()))
	}
	return p.sctx.Identifier
}

func (p *parser) expectTokens(tokens ...rune) rune {
	t := p.scan()
	for _, r := range tokens {
		if t == r {
			return r
		}
	}

	var msg string
	for i, r := range tokens {
		if i > 0 && i == len(tokens)-1 {
			msg += ", or "
		} else if i > 0 {
			msg += ", "
		}
		msg += token.Format(r)
	}
	p.error(fmt.Sprintf("expected %s got %s", msg, p.got()))
	return 0
}

func (p *parser) maybeToken(mr rune) bool {
	if p.scan() == mr {
		return true
	}
	p.unscan()
	return false
}

func (p *parser) parseCommand() Command {
	switch p.expectReserved("abort", "begin", "bitmap", "commit", "create", "delete",
		"describe", "drop", "insert", "join", "lookup", "rollback", "scan", "set", "show",
		"update") {
	case "abort", "rollback":
		return &Abort{}
	case "begin":
		return &Begin{}
	case "bitmap":
		// bitmap table using index in (value, ...) [, ...] [where ...]
		var cmd Bitmap
		cmd.Table = p.expectIdentifier("expected a table")
		p.expectReserved("using")
		cmd.Index = p.expectIdentifier("expected an index")
		p.expectReserved("in")
		cmd.Keys = p.parseRows()
		cmd.Where = p.parseWhere()
		return &cmd
	case "commit":
		return &Commit{}
	case "create":
		if p.expectReserved("index", "table") == "index" {
			return p.parseCreateIndex()
		}
		return p.parseCreateTable()
	case "delete":
		// delete from table [where ...]
		p.expectReserved("from")
		var cmd Delete
		cmd.Table = p.expectIdentifier("expected a table")
		cmd.Where = p.parseWhere()
		return &cmd
	case "describe":
		return &Describe{Table: p.expectIdentifier("expected a table")}
	case "drop":
		p.expectReserved("table")
		return &DropTable{Table: p.expectIdentifier("expected a table")}
	case "insert":
		// insert into table values (value, ...) [, ...]
		p.expectReserved("into")
		var cmd Insert
		cmd.Table = p.expectIdentifier("expected a table")
		p.expectReserved("values")
		cmd.Rows = p.parseRows()
		return &cmd
	case "join":
		return p.parseJoin()
	case "lookup":
		return p.parseLookup()
	case "scan":
		// scan table [where ...]
		var cmd Scan
		cmd.Table = p.expectIdentifier("expected a table")
		cmd.Where = p.parseWhere()
		return &cmd
	case "set":
		// set variable = value
		var cmd Set
		cmd.Variable = p.expectIdentifier("expected a config variable")
		p.expectTokens(token.Equal)
		cmd.Value = p.parseSetting()
		return &cmd
	case "show":
		// show tables | stats | config
		what := p.expectIdentifier("expected tables, stats, or config")
		if what != "tables" && what != "stats" && what != "config" {
			p.error(fmt.Sprintf("expected tables, stats, or config got %s", what))
		}
		return &Show{What: what}
	case "update":
		return p.parseUpdate()
	}

	return nil
}

func (p *parser) parseCreateTable() Command {
	// create table name (column type [[not] null], ...) [layout row | column | hybrid]
	var cmd CreateTable
	cmd.Table = p.expectIdentifier("expected a table")
	p.expectTokens(token.LParen)
	for {
		nam := p.expectIdentifier("expected a column name")
		for _, col := range cmd.Columns {
			if col.Name == nam {
				p.error(fmt.Sprintf("duplicate column name: %s", nam))
			}
		}

		typ := p.expectIdentifier("expected a data type")
		if p.maybeToken(token.LParen) {
			p.expectTokens(token.Integer)
			typ = fmt.Sprintf("%s(%d)", typ, p.sctx.Integer)
			p.expectTokens(token.RParen)
		}
		if p.optionalReserved("null") {
			typ += " null"
		} else if p.optionalReserved("not") {
			p.expectReserved("null")
		}
		ct, err := sql.ParseColumnType(typ)
		if err != nil {
			p.error(err.Error())
		}
		cmd.Columns = append(cmd.Columns, sql.Column{Name: nam, Type: ct})

		if p.expectTokens(token.Comma, token.RParen) == token.RParen {
			break
		}
	}

	if p.optionalReserved("layout") {
		cmd.Layout = p.expectIdentifier("expected row, column, or hybrid")
	}
	return &cmd
}

func (p *parser) parseCreateIndex() Command {
	// create index name on table (column, ...)
	var cmd CreateIndex
	cmd.Index = p.expectIdentifier("expected an index")
	p.expectReserved("on")
	cmd.Table = p.expectIdentifier("expected a table")
	cmd.Columns = p.parseColumnList()
	return &cmd
}

func (p *parser) parseColumnList() []string {
	p.expectTokens(token.LParen)
	var cols []string
	for {
		cols = append(cols, p.expectIdentifier("expected a column"))
		if p.expectTokens(token.Comma, token.RParen) == token.RParen {
			break
		}
	}
	return cols
}

func (p *parser) parseValue() sql.Value {
	switch p.scan() {
	case token.Integer:
		return sql.Int64Value(p.sctx.Integer)
	case token.Float:
		return sql.Float64Value(p.sctx.Float)
	case token.String:
		return sql.StringValue(p.sctx.String)
	case token.Reserved:
		switch p.sctx.Identifier {
		case "null":
			return nil
		case "true":
			return sql.BoolValue(true)
		case "false":
			return sql.BoolValue(false)
		}
	}

	p.error(fmt.Sprintf("expected a value got %s", p.got()))
	return nil
}

func (p *parser) parseRow() []sql.Value {
	p.expectTokens(token.LParen)
	var row []sql.Value
	for {
		row = append(row, p.parseValue())
		if p.expectTokens(token.Comma, token.RParen) == token.RParen {
			break
		}
	}
	return row
}

func (p *parser) parseRows() [][]sql.Value {
	var rows [][]sql.Value
	for {
		rows = append(rows, p.parseRow())
		if !p.maybeToken(token.Comma) {
			break
		}
	}
	return rows
}

var compareOps = map[rune]string{
	token.Equal:        "=",
	token.EqualEqual:   "=",
	token.BangEqual:    "!=",
	token.LessGreater:  "!=",
	token.Less:         "<",
	token.LessEqual:    "<=",
	token.Greater:      ">",
	token.GreaterEqual: ">=",
}

func (p *parser) parseWhere() Where {
	if !p.optionalReserved("where") {
		return nil
	}

	var w Where
	for {
		var c Condition
		c.Column = p.expectIdentifier("expected a column")
		op, ok := compareOps[p.scan()]
		if !ok {
			p.error(fmt.Sprintf("expected a comparison got %s", p.got()))
		}
		c.Op = op
		c.Value = p.parseValue()
		w = append(w, c)

		if !p.optionalReserved("and") {
			break
		}
	}
	return w
}

func (p *parser) parseUpdate() Command {
	// update table set column = value [, ...] [where ...]
	var cmd Update
	cmd.Table = p.expectIdentifier("expected a table")
	p.expectReserved("set")
	for {
		var cv ColumnValue
		cv.Column = p.expectIdentifier("expected a column")
		p.expectTokens(token.Equal)
		cv.Value = p.parseValue()
		cmd.Set = append(cmd.Set, cv)

		if !p.maybeToken(token.Comma) {
			break
		}
	}
	cmd.Where = p.parseWhere()
	return &cmd
}

func (p *parser) parseLookup() Command {
	// lookup table using index = (value, ...) [where ...]
	// lookup table using index between (value, ...) and (value, ...) [where ...]
	var cmd Lookup
	cmd.Table = p.expectIdentifier("expected a table")
	p.expectReserved("using")
	cmd.Index = p.expectIdentifier("expected an index")
	if p.maybeToken(token.Equal) {
		cmd.Lo = p.parseRow()
		cmd.Hi = cmd.Lo
	} else {
		p.expectReserved("between")
		cmd.Lo = p.parseRow()
		p.expectReserved("and")
		cmd.Hi = p.parseRow()
	}
	cmd.Where = p.parseWhere()
	return &cmd
}

func (p *parser) parseJoin() Command {
	// join left, right on left_column = right_column [and ...] [using merge | hash | grace]
	var cmd Join
	cmd.Left = p.expectIdentifier("expected a table")
	p.expectTokens(token.Comma)
	cmd.Right = p.expectIdentifier("expected a table")
	p.expectReserved("on")
	for {
		cmd.LeftCols = append(cmd.LeftCols, p.expectIdentifier("expected a column"))
		p.expectTokens(token.Equal)
		cmd.RightCols = append(cmd.RightCols, p.expectIdentifier("expected a column"))
		if !p.optionalReserved("and") {
			break
		}
	}
	if p.optionalReserved("using") {
		cmd.Strategy = p.expectIdentifier("expected merge, hash, or grace")
		if cmd.Strategy != "merge" && cmd.Strategy != "hash" && cmd.Strategy != "grace" {
			p.error(fmt.Sprintf("expected merge, hash, or grace got %s", cmd.Strategy))
		}
	}
	return &cmd
}

func (p *parser) parseSetting() string {
	switch p.scan() {
	case token.Identifier, token.Reserved:
		return p.sctx.Identifier
	case token.Integer:
		return fmt.Sprintf("%d", p.sctx.Integer)
	case token.String:
		return p.sctx.String
	}

	p.error(fmt.Sprintf("expected a setting got %s", p.got()))
	return ""
}
