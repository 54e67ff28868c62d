package observer

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var statementNames = map[string]string{
	upsertPipelineRun:         "upsert_run",
	updatePipelineRunComplete: "complete_run",
	upsertPipelineRunStage:    "upsert_stage",
	updatePipelineRunStage:    "update_stage",
	releaseClaim:              "release_claim",
	migrationSQL:              "migrate",
}

type execCall struct {
	name string
	args []interface{}
}

// fakeDB records every Exec and serves pending runs from a fixed list.
type fakeDB struct {
	mu      sync.Mutex
	execs   []execCall
	execErr error
	pending []PendingRun
}

func newFakeDB() *fakeDB {
	return &fakeDB{}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := statementNames[sql]
	if !ok {
		name = sql
	}
	f.execs = append(f.execs, execCall{name: name, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sql {
	case listPendingRuns, claimPendingRuns:
		rows := &fakeRows{}
		for _, p := range f.pending {
			rows.rows = append(rows.rows, []interface{}{p.RunID, p.Name})
		}
		return rows, nil
	}
	return nil, errors.New("fakeDB: unsupported query")
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return fakeRow{err: errors.New("fakeDB: unsupported query")}
}

func (f *fakeDB) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.execs))
	for i, c := range f.execs {
		out[i] = c.name
	}
	return out
}

func (f *fakeDB) calls(name string) []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.execs {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeRow struct{ err error }

func (r fakeRow) Scan(...interface{}) error { return r.err }

type fakeRows struct {
	rows [][]interface{}
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.i-1]
	for j := range dest {
		*(dest[j].(*string)) = row[j].(string)
	}
	return nil
}

func (r *fakeRows) Values() ([]interface{}, error) { return r.rows[r.i-1], nil }
