package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/leftmike/pax/engine"
	"github.com/leftmike/pax/parser"
)

const (
	paxHistory = ".pax_history"
)

type lineReader struct {
	line *liner.State
	r    *strings.Reader
}

func (lr *lineReader) ReadRune() (r rune, size int, err error) {
	for {
		if lr.r == nil {
			s, err := lr.line.Prompt("pax> ")
			if err != nil {
				return 0, 0, err
			}
			lr.line.AppendHistory(s)
			lr.r = strings.NewReader(s + "\n")
		}

		r, sz, err := lr.r.ReadRune()
		if err == io.EOF {
			lr.r = nil
		} else if err != nil {
			return 0, 0, err
		} else {
			return r, sz, nil
		}
	}
}

// Interact runs commands typed at the console until end of input, keeping a history of
// lines in the current directory.
func Interact(ctx context.Context, e *engine.Engine) {
	line := liner.NewLiner()
	defer line.Close()

	if f, err := os.Open(paxHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	Run(ctx, e, parser.NewParser(&lineReader{line: line}, "console"), os.Stdout)

	if f, err := os.Create(paxHistory); err != nil {
		fmt.Fprintf(os.Stderr, "pax: error writing history file, %s: %s\n", paxHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
