package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"SQLPumpClickHouse/internal/batch"
	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string]int64
	loadErr error
	saves   int
}

func (m *memStore) Load() (map[string]int64, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]int64, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(data map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saves++
	return nil
}

func (m *memStore) snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func sqls(jobs []models.StatementJob) []string {
	out := make([]string, len(jobs))
	for i, job := range jobs {
		out[i] = job.Statement.SQL()
	}
	return out
}

func TestFileFeederOffsets(t *testing.T) {
	f := newFileFeeder("a.sql", 0, zap.NewNop())

	assert.Empty(t, f.push("create table t ("))
	assert.True(t, f.pending())
	assert.Equal(t, "(", f.expected())
	assert.Empty(t, f.push(" a int"))

	jobs := f.push(");")
	require.Len(t, jobs, 1)
	assert.Equal(t, "create table t (\n a int\n)", jobs[0].Statement.SQL())
	assert.Equal(t, int64(27), jobs[0].Offset)
	assert.Equal(t, "a.sql", jobs[0].File)

	jobs = f.push("select 1; select 2;")
	require.Len(t, jobs, 2)
	assert.Equal(t, []string{"select 1", "select 2"}, sqls(jobs))
	assert.Equal(t, int64(27), jobs[0].Offset, "not the last statement of the line: resume before the line")
	assert.Equal(t, int64(47), jobs[1].Offset)
	assert.False(t, f.pending())
}

func TestFileFeederWaitsForWholeLine(t *testing.T) {
	f := newFileFeeder("a.sql", 100, zap.NewNop())
	assert.Empty(t, f.push("select 1; select 'x"))
	assert.Equal(t, "'", f.expected())

	jobs := f.push("y';")
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(100), jobs[0].Offset)
	assert.Equal(t, int64(100+20+4), jobs[1].Offset)
	assert.Equal(t, []string{"x\ny"}, jobs[1].Statement.Values()[1:2])
}

func TestFileFeederCRLFAndNullBytes(t *testing.T) {
	f := newFileFeeder("a.sql", 0, zap.NewNop())
	jobs := f.push("select 1;\r")
	require.Len(t, jobs, 1)
	assert.Equal(t, "select 1", jobs[0].Statement.SQL())
	assert.Equal(t, int64(11), jobs[0].Offset)

	jobs = f.push("sel\x00ect 2;")
	require.Len(t, jobs, 1)
	assert.Equal(t, sqlparse.KeywordSelect, jobs[0].Statement.Keyword)
	assert.Equal(t, int64(11+12), jobs[0].Offset)
}

func TestFileFeederSkipsMetaCommands(t *testing.T) {
	f := newFileFeeder("a.sql", 0, zap.NewNop())
	assert.Empty(t, f.push(`\timing on`))
	assert.Empty(t, f.push(`select 1 \g`))

	jobs := f.push(`drop table t; \echo done`)
	require.Len(t, jobs, 1)
	assert.Equal(t, "drop table t", jobs[0].Statement.SQL())
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		match   bool
	}{
		{"*.sql", "001_init.sql", true},
		{"*.sql", "001_init.sql.bak", false},
		{"*.sql", "init_sql", false},
		{"deploy_??.sql", "deploy_01.sql", true},
		{"deploy_??.sql", "deploy_001.sql", false},
		{"v[1].sql", "v[1].sql", true},
		{"v[1].sql", "v1.sql", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.name, func(t *testing.T) {
			re, err := compilePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.name))
		})
	}
}

func TestMatchingFilesOrderedByModTime(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	files := map[string]time.Duration{"b.sql": -3 * time.Hour, "a.sql": -1 * time.Hour, "c.txt": -5 * time.Hour}
	for name, age := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("select 1;\n"), 0o644))
		require.NoError(t, os.Chtimes(path, now.Add(age), now.Add(age)))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "n.sql"), []byte("select 2;\n"), 0o644))

	re, err := compilePattern("*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.sql"),
		filepath.Join(dir, "a.sql"),
		filepath.Join(dir, "nested", "n.sql"),
	}, matchingFiles(dir, re))
	assert.Nil(t, matchingFiles(dir, nil))
}

func testConfig(dir string) *config.Config {
	return &config.Config{Follow: config.FollowConfig{
		Directories:    []string{dir},
		FilePattern:    "*.sql",
		RescanInterval: time.Hour,
		SaveInterval:   time.Hour,
	}}
}

func TestCommitOnlyMovesForward(t *testing.T) {
	store := &memStore{data: map[string]int64{"a.sql": 40}}
	w := New(Config{Config: testConfig(t.TempDir()), Logger: zap.NewNop(), Store: store}, nil)

	w.Commit(models.StatementJob{File: "a.sql", Offset: 10})
	offset, ok := w.Offset("a.sql")
	assert.True(t, ok)
	assert.Equal(t, int64(40), offset)

	w.Commit(models.StatementJob{File: "a.sql", Offset: 55})
	w.Commit(models.StatementJob{File: "b.sql", Offset: 7})
	offset, _ = w.Offset("a.sql")
	assert.Equal(t, int64(55), offset)
	offset, _ = w.Offset("b.sql")
	assert.Equal(t, int64(7), offset)
}

type stmtExecutor struct {
	executed []string
	fail     map[string]error
}

func (e *stmtExecutor) Execute(_ context.Context, stmt *sqlparse.Statement) (*models.Result, error) {
	e.executed = append(e.executed, stmt.SQL())
	if err, ok := e.fail[stmt.SQL()]; ok {
		return nil, err
	}
	return &models.Result{}, nil
}

func TestLineWithTwoStatementsResumesBeforeLine(t *testing.T) {
	w := New(Config{Config: testConfig(t.TempDir()), Logger: zap.NewNop(), Store: &memStore{}}, nil)
	f := newFileFeeder("a.sql", 0, zap.NewNop())
	jobs := f.push("create table t (x int);")
	jobs = append(jobs, f.push("select 1; select 2;")...)
	require.Len(t, jobs, 3)

	// второй оператор строки прерван остановкой клиента
	exec := &stmtExecutor{fail: map[string]error{"select 2": context.Canceled}}
	b := batch.NewBatcher(config.FollowConfig{BatchSize: 1, BatchInterval: time.Hour}, zap.NewNop(), exec, nil, w)
	in := make(chan models.StatementJob, len(jobs))
	for _, job := range jobs {
		in <- job
	}
	close(in)
	require.NoError(t, b.Run(context.Background(), in))

	assert.Equal(t, []string{"create table t (x int)", "select 1", "select 2"}, exec.executed)
	offset, ok := w.Offset("a.sql")
	require.True(t, ok)
	assert.Equal(t, int64(24), offset)
}

func TestCommitIgnoresStoppedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "001.sql")
	require.NoError(t, os.WriteFile(path, []byte("select 1;\n"), 0o644))

	jobs := make(chan models.StatementJob, 4)
	w := New(Config{Config: testConfig(dir), Logger: zap.NewNop(), Store: &memStore{}}, jobs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.ctx = ctx

	w.startTail(path)
	old := receive(t, jobs)
	assert.Equal(t, int64(10), old.Offset)

	require.NoError(t, os.Remove(path))
	w.stopTail(path)
	w.Commit(old)
	_, ok := w.Offset(path)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("drop table t;\n"), 0o644))
	w.startTail(path)
	fresh := receive(t, jobs)
	assert.Equal(t, "drop table t", fresh.Statement.SQL())

	w.Commit(fresh)
	w.Commit(old)
	offset, _ := w.Offset(path)
	assert.Equal(t, int64(14), offset)
	w.stopAll()
}

func TestNewWithBrokenStore(t *testing.T) {
	store := &memStore{loadErr: errors.New("corrupted")}
	w := New(Config{Config: testConfig(t.TempDir()), Logger: zap.NewNop(), Store: store}, nil)
	_, ok := w.Offset("a.sql")
	assert.False(t, ok)
}

func receive(t *testing.T, jobs <-chan models.StatementJob) models.StatementJob {
	t.Helper()
	select {
	case job := <-jobs:
		return job
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no statement received")
		return models.StatementJob{}
	}
}

func TestWatcherResumesAndFollows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "001.sql")
	require.NoError(t, os.WriteFile(path, []byte("create table t (x int);\ninsert into t\nvalues (1);\n"), 0o644))

	store := &memStore{data: map[string]int64{path: 24}}
	jobs := make(chan models.StatementJob)
	w := New(Config{Config: testConfig(dir), Logger: zap.NewNop(), Store: store}, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	job := receive(t, jobs)
	assert.Equal(t, path, job.File)
	assert.Equal(t, "insert into t\nvalues (1)", job.Statement.SQL())
	assert.Equal(t, int64(50), job.Offset)
	w.Commit(job)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("drop table t;\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	job = receive(t, jobs)
	assert.Equal(t, "drop table t", job.Statement.SQL())
	assert.Equal(t, int64(64), job.Offset)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, map[string]int64{path: 50}, store.snapshot())
}
