// Package catalog records backup run outcomes in a local SQLite database.
// It is bookkeeping only: the remote namespace is never reconstructed from
// it, and no engine consults it for correctness.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// dirPerms is used when creating the catalog's parent directory.
const dirPerms = 0o700

// Run is one recorded command outcome.
type Run struct {
	ID        int64
	StartedAt time.Time
	Command   string // "push", "prune", "restore"
	Host      string
	Detail    string // command-specific summary (remote folder, staging dir)
	Files     int
	Bytes     int64
	Failures  int
}

// Catalog wraps the SQLite database holding run history.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the catalog at path and applies any
// pending schema migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("catalog: creating directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}

	// Single writer; avoids SQLITE_BUSY under concurrent command use.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordRun inserts one run outcome.
func (c *Catalog) RecordRun(ctx context.Context, run Run) error {
	const q = `INSERT INTO runs (started_at, command, host, detail, files, bytes, failures)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, q,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Command,
		run.Host,
		run.Detail,
		run.Files,
		run.Bytes,
		run.Failures,
	)
	if err != nil {
		return fmt.Errorf("catalog: recording run: %w", err)
	}

	c.logger.Debug("run recorded",
		slog.String("command", run.Command),
		slog.String("host", run.Host),
		slog.Int("files", run.Files),
	)

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (c *Catalog) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	const q = `SELECT id, started_at, command, host, detail, files, bytes, failures
FROM runs ORDER BY id DESC LIMIT ?`

	rows, err := c.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			run     Run
			started string
		)

		if err := rows.Scan(&run.ID, &started, &run.Command, &run.Host, &run.Detail, &run.Files, &run.Bytes, &run.Failures); err != nil {
			return nil, fmt.Errorf("catalog: scanning run: %w", err)
		}

		t, parseErr := time.Parse(time.RFC3339, started)
		if parseErr != nil {
			return nil, fmt.Errorf("catalog: parsing started_at %q: %w", started, parseErr)
		}

		run.StartedAt = t
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating runs: %w", err)
	}

	return runs, nil
}
