package token

import (
	"fmt"
)

// Tokens other than single runes are negative.
const (
	EOF = -(iota + 1)
	EndOfStatement
	Error
	Identifier
	Reserved
	String
	Integer
	Float

	LessEqual
	LessGreater
	GreaterEqual
	EqualEqual
	BangEqual
)

const (
	Comma   = ','
	LParen  = '('
	RParen  = ')'
	Equal   = '='
	Less    = '<'
	Greater = '>'
)

var comparisons = map[rune]string{
	Equal:        "=",
	Less:         "<",
	Greater:      ">",
	LessEqual:    "<=",
	LessGreater:  "<>",
	GreaterEqual: ">=",
	EqualEqual:   "==",
	BangEqual:    "!=",
}

// Comparisons maps the spelling of each comparison operator to its token.
var Comparisons = map[string]rune{}

var reserved = map[string]struct{}{}

// Keywords of the console command language.
var Keywords = []string{
	"abort", "and", "begin", "between", "bitmap", "commit", "create", "delete", "describe",
	"drop", "false", "from", "in", "index", "insert", "into", "join", "layout", "lookup",
	"not", "null", "on", "rollback", "scan", "set", "show", "table", "true", "update", "using",
	"values", "where",
}

func IsReserved(id string) bool {
	_, ok := reserved[id]
	return ok
}

func Format(r rune) string {
	if s, ok := comparisons[r]; ok {
		return s
	}
	if r > 0 {
		return fmt.Sprintf("%q", r)
	}
	switch r {
	case EOF:
		return "end of input"
	case EndOfStatement:
		return "end of statement"
	case Error:
		return "error"
	case Identifier:
		return "identifier"
	case Reserved:
		return "keyword"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	}
	return fmt.Sprintf("token %d", r)
}

func init() {
	for r, s := range comparisons {
		Comparisons[s] = r
	}
	for _, kw := range Keywords {
		reserved[kw] = struct{}{}
	}
}
