package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
)

type fakeExecutor struct {
	executed []string
	results  map[string]*models.Result
	errs     map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: map[string]*models.Result{}, errs: map[string]error{}}
}

func (f *fakeExecutor) Execute(_ context.Context, stmt *sqlparse.Statement) (*models.Result, error) {
	sql := stmt.SQL()
	f.executed = append(f.executed, sql)
	if err, ok := f.errs[sql]; ok {
		return nil, err
	}
	if res, ok := f.results[sql]; ok {
		return res, nil
	}
	return &models.Result{}, nil
}

type connectedExecutor struct {
	*fakeExecutor
}

func (connectedExecutor) ConnInfo() string {
	return `You are connected to database "db" at "localhost:9000".`
}

type scriptedReader struct {
	lines       []string
	prompts     []string
	history     []string
	interactive bool
}

func (s *scriptedReader) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	if line == "^C" {
		return "", ErrAborted
	}
	return line, nil
}

func (s *scriptedReader) AddHistory(entry string) { s.history = append(s.history, entry) }
func (s *scriptedReader) Interactive() bool       { return s.interactive }
func (s *scriptedReader) Close() error            { return nil }

func testOptions() Options {
	return Options{Database: "db", Prompt: "=> ", ContinuationPrompt: "-> "}
}

func newTestRepl(opts Options, exec Executor) (*Repl, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return New(opts, exec, out, zap.NewNop()), out
}

func TestRunExecutesStatementsInOrder(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["select 1"] = &models.Result{
		Columns: []string{"x"},
		Rows:    [][]*string{{strPtr("1")}},
		HasRows: true,
	}
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{"select 1; create table foo (a int);", "drop view v;"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select 1", "create table foo (a int)", "drop view v"}, exec.executed)
	assert.Equal(t, " x \n---\n 1 \n(1 row)\nCREATE TABLE foo\nDROP VIEW v\n", out.String())
}

func TestRunPrompts(t *testing.T) {
	exec := newFakeExecutor()
	r, _ := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{"select 'a", "b'", "from (", "t)", ";"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"db=> ", "db'> ", "db-> ", "db(> ", "db-> ", "db=> "}, in.prompts)
	require.Len(t, exec.executed, 1)
	assert.Equal(t, []string{"select 'a\nb'\nfrom (\nt)\n;"}, in.history)
}

func TestRunPrintsErrorAndContinues(t *testing.T) {
	exec := newFakeExecutor()
	exec.errs["select boom"] = errors.New("code: 47, unknown identifier boom")
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{"select boom;", "truncate t;"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select boom", "truncate t"}, exec.executed)
	assert.Equal(t, "ERROR: code: 47, unknown identifier boom\nTRUNCATE t\n", out.String())
}

// outputReader запоминает вывод к моменту каждого чтения строки
type outputReader struct {
	*scriptedReader
	out  *bytes.Buffer
	seen []string
}

func (o *outputReader) ReadLine(prompt string) (string, error) {
	o.seen = append(o.seen, o.out.String())
	return o.scriptedReader.ReadLine(prompt)
}

func TestRunDispatchesClosedPrefixBeforeOpenTail(t *testing.T) {
	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)
	in := &outputReader{scriptedReader: &scriptedReader{lines: []string{`\echo first; select 1`, "from t;"}}, out: out}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"", "first\n", "first\nSELECT\n"}, in.seen)
	assert.Equal(t, []string{"db=> ", "db-> ", "db=> "}, in.prompts)
	assert.Equal(t, []string{"select 1\nfrom t"}, exec.executed)
	assert.Equal(t, []string{`\echo first;`, "select 1\nfrom t;"}, in.history)
}

func TestRunStatementWithoutColumnsPrintsTag(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["set max_threads = 4"] = &models.Result{HasRows: true}
	r, out := newTestRepl(testOptions(), exec)

	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{"set max_threads = 4;"}}))
	assert.Equal(t, "OK\n", out.String())
}

func TestRunStopOnError(t *testing.T) {
	exec := newFakeExecutor()
	boom := errors.New("boom")
	exec.errs["select boom"] = boom
	opts := testOptions()
	opts.StopOnError = true
	r, _ := newTestRepl(opts, exec)
	in := &scriptedReader{lines: []string{"select boom; select 2;"}}

	err := r.Run(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"select boom"}, exec.executed)
}

func TestRunNotConnected(t *testing.T) {
	r, out := newTestRepl(testOptions(), nil)
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{"select 1;"}}))
	assert.Equal(t, "ERROR: not connected\n", out.String())
}

func TestRunIncompleteInput(t *testing.T) {
	tests := []struct {
		lines    []string
		expected string
	}{
		{[]string{"select 1"}, "expected ;"},
		{[]string{"select 'abc"}, "expected '"},
		{[]string{"select (1"}, "expected ("},
	}
	for _, tt := range tests {
		t.Run(tt.lines[0], func(t *testing.T) {
			exec := newFakeExecutor()
			r, _ := newTestRepl(testOptions(), exec)
			err := r.Run(context.Background(), &scriptedReader{lines: tt.lines})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIncompleteInput)
			assert.Contains(t, err.Error(), tt.expected)
			assert.Empty(t, exec.executed)
		})
	}
}

func TestRunInteractiveDiscardsPendingAtEOF(t *testing.T) {
	exec := newFakeExecutor()
	r, _ := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{"select 1"}, interactive: true}
	require.NoError(t, r.Run(context.Background(), in))
	assert.Empty(t, exec.executed)
}

func TestRunAbortResetsBuffer(t *testing.T) {
	exec := newFakeExecutor()
	r, _ := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{"select 'oops", "^C", "select 2;"}, interactive: true}
	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select 2"}, exec.executed)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ := newTestRepl(testOptions(), newFakeExecutor())
	err := r.Run(ctx, &scriptedReader{lines: []string{"select 1;"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCommand(t *testing.T) {
	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)

	require.NoError(t, r.RunCommand(context.Background(), "  insert into t values (1)  "))
	assert.Equal(t, []string{"insert into t values (1)"}, exec.executed)
	assert.Equal(t, "INSERT\n", out.String())

	err := r.RunCommand(context.Background(), "select 'abc")
	assert.ErrorIs(t, err, ErrIncompleteInput)
}

func TestMetaQuit(t *testing.T) {
	exec := newFakeExecutor()
	r, _ := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`\q`, "select 1;"}}
	require.NoError(t, r.Run(context.Background(), in))
	assert.Empty(t, exec.executed)
	assert.Equal(t, []string{"select 1;"}, in.lines)
}

func TestMetaEchoAndInvalid(t *testing.T) {
	r, out := newTestRepl(testOptions(), newFakeExecutor())
	in := &scriptedReader{lines: []string{`\echo hello   world`, `\nope`}}
	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, "hello world\ninvalid command \\nope\nTry \\? for help.\n", out.String())
}

func TestMetaAfterStatementOnSameLine(t *testing.T) {
	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`select 1; \echo done`}}
	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select 1"}, exec.executed)
	assert.Equal(t, "SELECT\ndone\n", out.String())
}

func TestMetaQueryBuffer(t *testing.T) {
	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`select 1 \p`, `\g`}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select 1"}, exec.executed)
	assert.Equal(t, "select 1\nSELECT\n", out.String())
	assert.Equal(t, []string{"db=> ", "db-> ", "db=> "}, in.prompts)
}

func TestMetaQueryBufferReset(t *testing.T) {
	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`select 1 \r`, `\p`}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Empty(t, exec.executed)
	assert.Equal(t, "Query buffer reset (cleared).\nQuery buffer is empty.\n", out.String())
}

func TestMetaTiming(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["select 1"] = &models.Result{Duration: 5 * time.Millisecond}
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`\timing`, "select 1;", `\timing off`, "select 1;"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, "Timing is on.\nSELECT\nTime: 5ms\nTiming is off.\nSELECT\n", out.String())
}

func TestMetaTimingBadValue(t *testing.T) {
	opts := testOptions()
	opts.StopOnError = true
	r, out := newTestRepl(opts, newFakeExecutor())
	err := r.Run(context.Background(), &scriptedReader{lines: []string{`\timing maybe`}})
	require.Error(t, err)
	assert.Contains(t, out.String(), `ERROR: \timing: unrecognized value "maybe"`)
}

func TestMetaInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sql")
	require.NoError(t, os.WriteFile(path, []byte("create table a (x int);\r\n-- comment\ndrop table\n  a;\n"), 0o644))

	exec := newFakeExecutor()
	r, out := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`\i ` + path, "select 3;"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"create table a (x int)", "drop table\n  a", "select 3"}, exec.executed)
	assert.Equal(t, "CREATE TABLE a\nDROP TABLE a\nSELECT\n", out.String())
}

func TestMetaIncludeKeepsOuterBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inner.sql")
	require.NoError(t, os.WriteFile(path, []byte("select 2;\n"), 0o644))

	exec := newFakeExecutor()
	r, _ := newTestRepl(testOptions(), exec)
	in := &scriptedReader{lines: []string{`select 1 \i ` + path, ";"}}

	require.NoError(t, r.Run(context.Background(), in))
	assert.Equal(t, []string{"select 2", "select 1"}, exec.executed)
}

func TestMetaIncludeIncompleteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.sql")
	require.NoError(t, os.WriteFile(path, []byte("select 'abc\n"), 0o644))

	r, out := newTestRepl(testOptions(), newFakeExecutor())
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\i ` + path}}))
	assert.Contains(t, out.String(), `ERROR: \i: incomplete input: expected '`)
}

func TestMetaIncludeMissingFile(t *testing.T) {
	r, out := newTestRepl(testOptions(), newFakeExecutor())
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\i /nonexistent/file.sql`, `\i`}}))
	assert.Contains(t, out.String(), `ERROR: \i: open /nonexistent/file.sql`)
	assert.Contains(t, out.String(), `ERROR: \i: missing required argument`)
}

func TestMetaIncludeRecursion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "self.sql")
	require.NoError(t, os.WriteFile(path, []byte(`\i `+path+"\n"), 0o644))

	opts := testOptions()
	opts.StopOnError = true
	r, _ := newTestRepl(opts, newFakeExecutor())
	err := r.Run(context.Background(), &scriptedReader{lines: []string{`\i ` + path}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include nesting deeper than 16")
}

func TestMetaConnInfo(t *testing.T) {
	r, out := newTestRepl(testOptions(), newFakeExecutor())
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\conninfo`}}))
	assert.Equal(t, "You are currently not connected to a database.\n", out.String())

	r, out = newTestRepl(testOptions(), connectedExecutor{newFakeExecutor()})
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\conninfo;`}}))
	assert.Equal(t, "You are connected to database \"db\" at \"localhost:9000\".\n", out.String())
}

func TestMetaConfig(t *testing.T) {
	r, out := newTestRepl(testOptions(), newFakeExecutor())
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\config`}}))
	assert.Equal(t, "No configuration loaded.\n", out.String())

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.ClickHouse.Password = "secret"
	r, out = newTestRepl(OptionsFromConfig(cfg), newFakeExecutor())
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\config`}}))
	assert.Contains(t, out.String(), "******")
	assert.NotContains(t, out.String(), "secret")
}

func TestMetaHelp(t *testing.T) {
	r, out := newTestRepl(testOptions(), newFakeExecutor())
	r.Registry().Register(`\hello`, "", "say hello", func(_ context.Context, r *Repl, _ []string) error {
		_, err := r.out.Write([]byte("hello\n"))
		return err
	})
	require.NoError(t, r.Run(context.Background(), &scriptedReader{lines: []string{`\?`, `\hello`}}))
	assert.Contains(t, out.String(), `\timing [on|off]`)
	assert.Contains(t, out.String(), "say hello")
	assert.Contains(t, out.String(), "\nhello\n")
}
