package scanner

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/leftmike/pax/parser/token"
)

// Position is the location of the first rune of a token.
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (pos Position) String() string {
	if pos.Line == 0 {
		return pos.Filename
	}
	return fmt.Sprintf("%s:%d:%d", pos.Filename, pos.Line, pos.Column)
}

// ScanCtx is the token most recently scanned along with its value.
type ScanCtx struct {
	Token      rune
	Error      error
	Identifier string // Identifier and Reserved; always lower case
	String     string
	Integer    int64
	Float      float64
	Position
}

// Scanner splits console commands into tokens: identifiers and keywords, 'strings' (with ''
// for a quote), integers and floats (with an optional leading minus), comparison operators,
// commas, parentheses, and semicolons. Comments run from -- to the end of the line, or
// between /* and */.
type Scanner struct {
	rr       io.RuneReader
	filename string
	line     int
	column   int
	peeked   bool
	ahead    rune
	err      error
	buf      strings.Builder
}

func (s *Scanner) Init(rr io.RuneReader, fn string) {
	if s.rr != nil {
		panic("scanner already initialized")
	}
	s.rr = rr
	s.filename = fn
	s.line = 1
}

// peek returns the next rune without consuming it; at the end of input, or after a read
// error, it returns token.EOF or token.Error.
func (s *Scanner) peek() rune {
	if !s.peeked {
		r, _, err := s.rr.ReadRune()
		if err == io.EOF {
			r = token.EOF
		} else if err != nil {
			s.err = err
			r = token.Error
		}
		s.ahead = r
		s.peeked = true
	}
	return s.ahead
}

// next consumes and returns the next rune. The end of input is never consumed, so it is
// returned by every later call; a read error is returned once.
func (s *Scanner) next() rune {
	r := s.peek()
	if r == token.EOF {
		return r
	}
	s.peeked = false
	if r == '\n' {
		s.line += 1
		s.column = 0
	} else if r >= 0 {
		s.column += 1
	}
	return r
}

func (s *Scanner) errorf(sctx *ScanCtx, format string, args ...interface{}) rune {
	sctx.Error = fmt.Errorf("scanner: "+format, args...)
	return token.Error
}

func (s *Scanner) Scan(sctx *ScanCtx) {
	s.buf.Reset()
	sctx.Error = nil
	sctx.Token = s.scan(sctx)
	if sctx.Token == token.Error && sctx.Error == nil {
		sctx.Error = s.err
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (s *Scanner) scan(sctx *ScanCtx) rune {
	for {
		for r := s.peek(); r >= 0 && unicode.IsSpace(r); r = s.peek() {
			s.next()
		}

		sctx.Position = Position{
			Filename: s.filename,
			Line:     s.line,
			Column:   s.column + 1,
		}
		r := s.next()
		switch {
		case r == token.EOF || r == token.Error:
			return r
		case r == ';':
			return token.EndOfStatement
		case r == ',' || r == '(' || r == ')':
			return r
		case r == '\'':
			return s.scanString(sctx)
		case r == '_' || unicode.IsLetter(r):
			return s.scanIdentifier(sctx, r)
		case isDigit(r):
			s.buf.WriteRune(r)
			return s.scanNumber(sctx)
		case r == '-':
			if s.peek() == '-' {
				for r = s.next(); r != '\n' && r != token.EOF; r = s.next() {
					if r == token.Error {
						return r
					}
				}
				continue
			} else if isDigit(s.peek()) {
				s.buf.WriteRune(r)
				return s.scanNumber(sctx)
			}
		case r == '/':
			if s.peek() == '*' {
				s.next()
				if r = s.skipComment(sctx); r == token.Error {
					return r
				}
				continue
			}
		case r == '=' || r == '<' || r == '>' || r == '!':
			return s.scanComparison(sctx, r)
		}

		return s.errorf(sctx, "unexpected character %q", r)
	}
}

func (s *Scanner) skipComment(sctx *ScanCtx) rune {
	var prev rune
	for {
		r := s.next()
		if r == token.EOF {
			return s.errorf(sctx, "comment missing terminating */")
		} else if r == token.Error {
			return r
		} else if prev == '*' && r == '/' {
			return 0
		}
		prev = r
	}
}

func (s *Scanner) scanIdentifier(sctx *ScanCtx, r rune) rune {
	s.buf.WriteRune(unicode.ToLower(r))
	for r = s.peek(); r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r); r = s.peek() {
		s.buf.WriteRune(unicode.ToLower(s.next()))
	}

	sctx.Identifier = s.buf.String()
	if token.IsReserved(sctx.Identifier) {
		return token.Reserved
	}
	return token.Identifier
}

func (s *Scanner) digits() {
	for isDigit(s.peek()) {
		s.buf.WriteRune(s.next())
	}
}

// scanNumber scans the rest of a number whose first rune (a digit or a minus) is already
// in the buffer.
func (s *Scanner) scanNumber(sctx *ScanCtx) rune {
	s.digits()

	isFloat := false
	if s.peek() == '.' {
		isFloat = true
		s.buf.WriteRune(s.next())
		s.digits()
	}
	if r := s.peek(); r == 'e' || r == 'E' {
		isFloat = true
		s.buf.WriteRune(s.next())
		if r = s.peek(); r == '+' || r == '-' {
			s.buf.WriteRune(s.next())
		}
		if !isDigit(s.peek()) {
			return s.errorf(sctx, "malformed number: %s", s.buf.String())
		}
		s.digits()
	}

	if isFloat {
		f, err := strconv.ParseFloat(s.buf.String(), 64)
		if err != nil {
			return s.errorf(sctx, "bad float: %s", s.buf.String())
		}
		sctx.Float = f
		return token.Float
	}

	i, err := strconv.ParseInt(s.buf.String(), 10, 64)
	if err != nil {
		return s.errorf(sctx, "integer out of range: %s", s.buf.String())
	}
	sctx.Integer = i
	return token.Integer
}

func (s *Scanner) scanString(sctx *ScanCtx) rune {
	for {
		r := s.next()
		if r == token.EOF {
			return s.errorf(sctx, "string missing terminating '")
		} else if r == token.Error {
			return r
		} else if r == '\'' {
			if s.peek() != '\'' {
				break
			}
			s.next()
		}
		s.buf.WriteRune(r)
	}

	sctx.String = s.buf.String()
	return token.String
}

func (s *Scanner) scanComparison(sctx *ScanCtx, r rune) rune {
	op := string(r)
	if r2 := s.peek(); r2 == '=' || r2 == '>' {
		if tok, ok := token.Comparisons[op+string(r2)]; ok {
			s.next()
			return tok
		}
	}
	if tok, ok := token.Comparisons[op]; ok {
		return tok
	}
	return s.errorf(sctx, "unexpected operator %s", op)
}
