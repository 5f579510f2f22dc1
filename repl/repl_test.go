package repl_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/leftmike/pax/config"
	"github.com/leftmike/pax/engine"
	"github.com/leftmike/pax/parser"
	"github.com/leftmike/pax/repl"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	cfg := config.Default()
	err := cfg.Set("spill_store", "memory")
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() failed with %s", err)
	}
	return e
}

func runTranscript(t *testing.T, e *engine.Engine, src, want string) {
	t.Helper()

	var b bytes.Buffer
	repl.Run(context.Background(), e, parser.NewParser(strings.NewReader(src), "test"), &b)
	if b.String() != want {
		t.Errorf("Run(%q) diff:\n%s", src, diff.LineDiff(want, b.String()))
	}
}

func TestRun(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	runTranscript(t, e, `
create table t (id int, name varchar(8), score double null);
insert into t values (1, 'one', 1), (2, 'two', null), (3, 'three', 2.5);
scan t where id >= 2;
update t set score = 10 where name = 'two';
scan t where score > 5;
delete from t where id = 1;
begin;
insert into t values (4, 'four', 4);
abort;
scan t;
commit;
scan nope;
`,
		`3 rows updated
+----+-------+-------+
| id | name  | score |
+----+-------+-------+
| 2  | two   | NULL  |
| 3  | three | 2.5   |
+----+-------+-------+
(2 rows)
1 rows updated
+----+------+-------+
| id | name | score |
+----+------+-------+
| 2  | two  | 10    |
+----+------+-------+
(1 rows)
1 rows updated
1 rows updated
+----+-------+-------+
| id | name  | score |
+----+-------+-------+
| 3  | three | 2.5   |
| 2  | two   | 10    |
+----+-------+-------+
(2 rows)
repl: no transaction started
engine: table not found: nope
`)
}

func TestRunDropTable(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	runTranscript(t, e, `
create table t (id int, name varchar(8));
insert into t values (1, 'one'), (2, 'two');
begin;
delete from t where id = 1;
update t set name = 'deux';
drop table t;
commit;
scan t;
create table t (id int);
insert into t values (3);
scan t;
`,
		`2 rows updated
1 rows updated
1 rows updated
engine: table not found: t
1 rows updated
+----+
| id |
+----+
| 3  |
+----+
(1 rows)
`)
}

func TestRunIndexes(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	runTranscript(t, e, `
create table a (id int, x varchar(4));
create table b (id int, y varchar(4)) layout row;
insert into a values (1, 'a'), (2, 'b');
insert into b values (2, 'c'), (3, 'd');
create index a_id on a (id);
lookup a using a_id = (2);
bitmap a using a_id in (1), (2);
lookup a using a_id between (5) and (9);
`,
		`2 rows updated
2 rows updated
+----+---+
| id | x |
+----+---+
| 2  | b |
+----+---+
(1 rows)
+----+---+
| id | x |
+----+---+
| 1  | a |
| 2  | b |
+----+---+
(2 rows)
+----+---+
| id | x |
+----+---+
+----+---+
(0 rows)
`)

	for _, strategy := range []string{"", " using merge", " using hash", " using grace"} {
		runTranscript(t, e, "join a, b on id = id"+strategy+";",
			`+----+---+----+---+
| id | x | id | y |
+----+---+----+---+
| 2  | b | 2  | c |
+----+---+----+---+
(1 rows)
`)
	}
}

func TestRunErrors(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	cases := []struct {
		src  string
		want string
	}{
		{src: "begin; begin;", want: "repl: transaction already started"},
		{src: "abort;", want: "repl: no transaction started"},
		{src: "create table t (c int); create table t (c int);",
			want: "engine: table already exists: t"},
		{src: "create table u (c int); insert into u values (1, 2);",
			want: "sql: schema mismatch"},
		{src: "create table v (c int); scan v where d = 1;", want: "column not found: d"},
		{src: "create table w (c int); insert into w values ('x');",
			want: "expected an integer value"},
		{src: "create table y (c int); insert into y values (1); scan y where c = 'x';",
			want: "want number got 'x'"},
		{src: "set no_such_variable = 1;", want: "is not a config variable"},
		{src: "lookup nope using i = (1);", want: "engine: table not found"},
		{src: "scan", want: "parser:"},
		{src: `scan t where c = "x";`, want: "scanner: unexpected character"},
	}

	for _, c := range cases {
		var b bytes.Buffer
		repl.Run(context.Background(), e, parser.NewParser(strings.NewReader(c.src), "test"),
			&b)
		if !strings.Contains(b.String(), c.want) {
			t.Errorf("Run(%q) got %q want %q", c.src, b.String(), c.want)
		}
	}
}

func TestRunShow(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	var b bytes.Buffer
	repl.Run(context.Background(), e, parser.NewParser(strings.NewReader(`
create table t (id bigint, name varchar(8) null) layout column;
create index t_name on t (name);
show tables;
describe t;
set join_partitions = 4;
show config;
show stats;
`), "test"), &b)

	out := b.String()
	for _, want := range []string{
		"t_name",
		"[0] [1]",
		"BIGINT NOT NULL",
		"VARCHAR(8)",
		"layout: [0] [1]",
		"index t_name (name)",
		"join_partitions",
		"write_conflicts",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Run() got %s want %q", out, want)
		}
	}
	if e.Config().JoinPartitions != 4 {
		t.Errorf("JoinPartitions got %d want 4", e.Config().JoinPartitions)
	}
}
