package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

// InMemory is the journal path of a throwaway database.
const InMemory = ":memory:"

// NewDB opens the DuckDB run journal at path. The parent directory is
// created and also holds the DuckDB extensions.
func NewDB(path string) (*sql.DB, error) {
	onDisk := path != InMemory
	if onDisk {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	setup := func() error {
		if err := db.Ping(); err != nil {
			return err
		}
		if !onDisk {
			return nil
		}
		_, err := db.Exec(fmt.Sprintf("SET extension_directory = '%s'", filepath.Dir(path)))
		return err
	}
	if err := setup(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing journal %s: %w", path, err)
	}

	return db, nil
}
