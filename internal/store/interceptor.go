package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// slowStatement is the duration above which a statement is logged at warn level.
const slowStatement = 500 * time.Millisecond

// QueryInterceptor is the part of *sql.DB the stores use.
type QueryInterceptor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// journalConn traces the statements the stores send to the journal.
type journalConn struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func newQueryInterceptor(db *sql.DB) *journalConn {
	return &journalConn{db: db, log: zap.S().Named("store")}
}

func (j *journalConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer j.trace("query_row", query, args, time.Now())
	return j.db.QueryRowContext(ctx, query, args...)
}

func (j *journalConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer j.trace("query", query, args, time.Now())
	return j.db.QueryContext(ctx, query, args...)
}

func (j *journalConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer j.trace("exec", query, args, time.Now())
	return j.db.ExecContext(ctx, query, args...)
}

func (j *journalConn) trace(kind, query string, args []any, start time.Time) {
	took := time.Since(start)
	if took > slowStatement {
		j.log.Warnw("slow statement", "kind", kind, "query", query, "args", args, "took", took)
		return
	}
	j.log.Debugw(kind, "query", query, "args", args, "took", took)
}
