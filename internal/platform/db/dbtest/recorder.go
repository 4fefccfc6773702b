// Package dbtest provides a db.DBTX that records statements instead of running them.
package dbtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotExecuted is returned by Query and QueryRow, which the recorder does not serve.
var ErrNotExecuted = errors.New("dbtest: statement recorded, not executed")

// Statement is one recorded call.
type Statement struct {
	SQL  string
	Args []any
}

// Recorder captures every statement sent through it. ExecErr, when set, is
// returned from Exec.
type Recorder struct {
	mu      sync.Mutex
	calls   []Statement
	ExecErr error
}

// Exec records the statement and reports one affected row.
func (r *Recorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.record(sql, args)
	if r.ExecErr != nil {
		return pgconn.CommandTag{}, r.ExecErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// Query records the statement and fails with ErrNotExecuted.
func (r *Recorder) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.record(sql, args)
	return nil, ErrNotExecuted
}

// QueryRow records the statement; Scan on the result fails with ErrNotExecuted.
func (r *Recorder) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r.record(sql, args)
	return errRow{}
}

// Calls returns the recorded statements in order.
func (r *Recorder) Calls() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent statement.
func (r *Recorder) Last() Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Statement{}
	}
	return r.calls[len(r.calls)-1]
}

func (r *Recorder) record(sql string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Statement{SQL: sql, Args: args})
}

type errRow struct{}

func (errRow) Scan(dest ...any) error { return ErrNotExecuted }
