package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/you/disdrop/pkg/entities"
)

// SQLite persists the filenames observed per channel across runs and
// journals every send result. It complements the per-run remote
// history scan: a name recorded here stays deduped even after it
// scrolls past the history limit.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	client := &SQLite{
		db: db,
	}

	err = client.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

// SeenNames returns all filenames ever recorded for the channel.
func (c *SQLite) SeenNames(ctx context.Context, channelID string) ([]string, error) {
	rows, err := c.db.QueryContext(
		ctx,
		"SELECT filename FROM seen_files WHERE channel_id = ?",
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying seen files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning seen file: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating seen files: %w", err)
	}
	return names, nil
}

// AddSeenNames records filenames for the channel, ignoring ones
// already present.
func (c *SQLite) AddSeenNames(ctx context.Context, channelID string, names []string) error {
	for _, name := range names {
		_, err := c.db.ExecContext(
			ctx,
			`INSERT INTO seen_files (channel_id, filename, first_seen_at)
				VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(channel_id, filename) DO NOTHING`,
			channelID, name,
		)
		if err != nil {
			return fmt.Errorf("inserting seen file %q: %w", name, err)
		}
	}
	return nil
}

// SaveResult journals one send result, one row per file of the group.
func (c *SQLite) SaveResult(ctx context.Context, runID, channelID string, res entities.SendResult) error {
	for _, name := range res.Group.Names() {
		_, err := c.db.ExecContext(
			ctx,
			`INSERT INTO send_results (run_id, channel_id, filename, outcome, error, created_at)
				VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			runID, channelID, name, string(res.Outcome), nullable(res.Err),
		)
		if err != nil {
			return fmt.Errorf("inserting send result for %q: %w", name, err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

//go:embed init.sql
var initQuery string

func (c *SQLite) init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, initQuery)
	return err
}
