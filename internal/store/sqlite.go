package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit bounds the WAL file before SQLite forces a checkpoint.
const walJournalSizeLimit = 64 * 1024 * 1024

// SQLiteStore implements Store on top of an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmtGet    *sql.Stmt
	stmtUpsert *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at path, applies
// pending migrations, and prepares the statements this store reuses for
// every call. Use ":memory:" for tests.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite at %s: %w", path, err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: setting pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	return nil
}

func (s *SQLiteStore) prepare(ctx context.Context) error {
	stmts := []struct {
		dest **sql.Stmt
		sql  string
	}{
		{&s.stmtGet, `SELECT name, kind, hash, tombstone, version_json FROM entries WHERE name = ?`},
		{&s.stmtUpsert, `INSERT INTO entries (name, kind, hash, tombstone, version_json) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, hash = excluded.hash, tombstone = excluded.tombstone, version_json = excluded.version_json`},
		{&s.stmtList, `SELECT name, kind, hash, tombstone, version_json FROM entries`},
		{&s.stmtDelete, `DELETE FROM entries WHERE name = ?`},
	}

	for _, def := range stmts {
		stmt, err := s.db.PrepareContext(ctx, def.sql)
		if err != nil {
			return fmt.Errorf("store: preparing statement: %w", err)
		}

		*def.dest = stmt
	}

	return nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, row Row) error {
	_, err := s.stmtUpsert.ExecContext(ctx, row.Name, row.Kind, row.Hash[:], row.Tombstone, row.VersionJSON)
	if err != nil {
		return fmt.Errorf("store: upserting %q: %w", row.Name, err)
	}

	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, name string) (Row, bool, error) {
	row, err := scanRow(s.stmtGet.QueryRowContext(ctx, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}

	if err != nil {
		return Row{}, false, fmt.Errorf("store: getting %q: %w", name, err)
	}

	return row, true, nil
}

// ListAll implements Store.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Row, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: listing entries: %w", err)
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning entry row: %w", err)
		}

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating entry rows: %w", err)
	}

	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.stmtDelete.ExecContext(ctx, name); err != nil {
		return fmt.Errorf("store: deleting %q: %w", name, err)
	}

	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtGet, s.stmtUpsert, s.stmtList, s.stmtDelete} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}

	return nil
}

func scanRow(scanner interface{ Scan(...any) error }) (Row, error) {
	var (
		row      Row
		hashBlob []byte
	)

	if err := scanner.Scan(&row.Name, &row.Kind, &hashBlob, &row.Tombstone, &row.VersionJSON); err != nil {
		return Row{}, err
	}

	copy(row.Hash[:], hashBlob)

	return row, nil
}

var _ Store = (*SQLiteStore)(nil)
