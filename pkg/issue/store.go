package issue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	perrors "github.com/matzehuels/prerender/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Store persists issues in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open issue database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect issue database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply issue schema: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Emit implements Sink. Write failures are logged.
func (s *Store) Emit(ctx context.Context, is Issue) {
	if err := s.Save(context.WithoutCancel(ctx), is); err != nil {
		s.logger.Warn("failed to store issue", "id", is.ID, "err", err)
	}
}

// Save inserts is. Saving an ID twice keeps the first copy.
func (s *Store) Save(ctx context.Context, is Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (id, context, kind, title, message, logs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, is.ID, is.Context, is.Kind, is.Title, is.Message, is.Logs, is.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save issue: %w", err)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Context string // exact match; empty matches all
	Limit   int    // 0 means no limit
}

// List returns issues newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Issue, error) {
	query := `SELECT id, context, kind, title, message, logs, created_at FROM issues`
	var args []any
	if opts.Context != "" {
		query += ` WHERE context = ?`
		args = append(args, opts.Context)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return out, nil
}

// Get returns the issue with id, or a NOT_FOUND error.
func (s *Store) Get(ctx context.Context, id string) (Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, context, kind, title, message, logs, created_at FROM issues WHERE id = ?`, id)
	is, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, perrors.New(perrors.ErrCodeNotFound, "issue %s not found", id)
	}
	if err != nil {
		return Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return is, nil
}

// Clear deletes every issue and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM issues`)
	if err != nil {
		return 0, fmt.Errorf("clear issues: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(sc scanner) (Issue, error) {
	var is Issue
	var created int64
	if err := sc.Scan(&is.ID, &is.Context, &is.Kind, &is.Title, &is.Message, &is.Logs, &created); err != nil {
		return Issue{}, err
	}
	is.CreatedAt = time.Unix(0, created).UTC()
	return is, nil
}
