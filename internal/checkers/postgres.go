package checkers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/kubev2v/flowharness/pkg/wait"
)

// PostgresChecker counts rows the agent wrote through its ODBC processors.
type PostgresChecker struct {
	db *sql.DB
}

func NewPostgresChecker(dsn string) (*PostgresChecker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return &PostgresChecker{db: db}, nil
}

func NewPostgresCheckerWithDB(db *sql.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (p *PostgresChecker) Close() error {
	return p.db.Close()
}

// RowCount counts the rows of table matching where (column equality, all must hold).
func (p *PostgresChecker) RowCount(ctx context.Context, table string, where map[string]any) (int, error) {
	builder := sq.Select("COUNT(*)").From(table).PlaceholderFormat(sq.Dollar)
	if len(where) > 0 {
		builder = builder.Where(sq.Eq(where))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

func (p *PostgresChecker) WaitForRowCount(ctx context.Context, table string, where map[string]any, expected int, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		n, err := p.RowCount(ctx, table, where)
		if err != nil {
			return false, err
		}
		return n == expected, nil
	}, wait.WithName(fmt.Sprintf("%s has %d matching rows", table, expected)))
}
