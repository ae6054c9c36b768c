package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/taskqueue"
)

// ErrNotFound is returned by Get for unknown task ids.
var ErrNotFound = errors.New("archived task not found")

// Query filters List. Zero fields match everything.
type Query struct {
	Status taskqueue.Status
	Type   taskqueue.TaskType

	// CompletedAfter and CompletedBefore bound the completion time.
	CompletedAfter  time.Time
	CompletedBefore time.Time

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Archive is a SQLite-backed taskqueue.Archiver.
type Archive struct {
	db        *sql.DB
	path      string
	now       func() time.Time
	logger    *slog.Logger
	mu        sync.RWMutex
	closeOnce sync.Once
}

// New opens (creating when needed) the archive database at cfg.Path.
func New(cfg *config.ArchiveConfig) (*Archive, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("archive path cannot be empty")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = config.DefaultArchiveBusyTimeout
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	a := &Archive{
		db:     db,
		path:   cfg.Path,
		now:    time.Now,
		logger: slog.Default().With("component", "taskqueue.archive"),
	}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	a.logger.Info("Task archive opened", "path", cfg.Path)
	return a, nil
}

func (a *Archive) initSchema() error {
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	if _, err := a.db.Exec(insertSchemaVersion, SchemaVersion, a.now().Unix()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version int
	if err := a.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("archive schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}
	return nil
}

// Archive implements taskqueue.Archiver. Tasks already archived are
// overwritten.
func (a *Archive) Archive(ctx context.Context, tasks []taskqueue.TaskSnapshot) error {
	if len(tasks) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTask)
	if err != nil {
		return fmt.Errorf("failed to prepare archive statement: %w", err)
	}
	defer stmt.Close()

	archivedAt := a.now().UnixMilli()
	for _, t := range tasks {
		data, err := encodeJSON(t.Data)
		if err != nil {
			return fmt.Errorf("task %s data: %w", t.ID, err)
		}
		taskCtx, err := encodeJSON(t.Context)
		if err != nil {
			return fmt.Errorf("task %s context: %w", t.ID, err)
		}
		result, err := encodeJSON(t.Result)
		if err != nil {
			return fmt.Errorf("task %s result: %w", t.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			t.ID, string(t.Type), string(t.Priority), string(t.Status), t.Attempts, nullString(t.Options.Provider),
			data, taskCtx, result, nullString(t.Error),
			t.CreatedAt.UnixMilli(), nullMillis(t.StartedAt), nullMillis(t.CompletedAt), archivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to archive task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	a.logger.Debug("Tasks archived", "count", len(tasks))
	return nil
}

// Get returns an archived task by id.
func (a *Archive) Get(ctx context.Context, id string) (*taskqueue.TaskSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	row := a.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns archived tasks matching q, most recently completed first.
func (a *Archive) List(ctx context.Context, q Query) ([]*taskqueue.TaskSnapshot, error) {
	var (
		where []string
		args  []any
	)
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if !q.CompletedAfter.IsZero() {
		where = append(where, "completed_at >= ?")
		args = append(args, q.CompletedAfter.UnixMilli())
	}
	if !q.CompletedBefore.IsZero() {
		where = append(where, "completed_at < ?")
		args = append(args, q.CompletedBefore.UnixMilli())
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at DESC, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var out []*taskqueue.TaskSnapshot
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive rows: %w", err)
	}
	return out, nil
}

// Count returns the number of archived tasks.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archived tasks: %w", err)
	}
	return n, nil
}

// Prune deletes tasks that completed before olderThan.
func (a *Archive) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, "DELETE FROM tasks WHERE completed_at < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		a.logger.Info("Archive pruned", "deleted_count", n, "older_than", olderThan)
	}
	return n, nil
}

// Ping checks the database connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database. It is safe to call more than once.
func (a *Archive) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.db.Close()
	})
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*taskqueue.TaskSnapshot, error) {
	var (
		t                      taskqueue.TaskSnapshot
		taskType, priority     string
		status                 string
		provider, errText      sql.NullString
		data, taskCtx, result  sql.NullString
		createdAt              int64
		startedAt, completedAt sql.NullInt64
	)
	err := s.Scan(&t.ID, &taskType, &priority, &status, &t.Attempts, &provider,
		&data, &taskCtx, &result, &errText,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Type = taskqueue.TaskType(taskType)
	t.Priority = ai.Priority(priority)
	t.Status = taskqueue.Status(status)
	t.Options.Provider = provider.String
	t.Error = errText.String
	if t.Status == taskqueue.StatusCompleted {
		t.Progress = 100
	}
	t.CreatedAt = time.UnixMilli(createdAt)
	if startedAt.Valid {
		at := time.UnixMilli(startedAt.Int64)
		t.StartedAt = &at
	}
	if completedAt.Valid {
		at := time.UnixMilli(completedAt.Int64)
		t.CompletedAt = &at
	}

	if data.Valid {
		if err := json.Unmarshal([]byte(data.String), &t.Data); err != nil {
			return nil, fmt.Errorf("task %s data: %w", t.ID, err)
		}
	}
	if taskCtx.Valid {
		if err := json.Unmarshal([]byte(taskCtx.String), &t.Context); err != nil {
			return nil, fmt.Errorf("task %s context: %w", t.ID, err)
		}
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &t.Result); err != nil {
			return nil, fmt.Errorf("task %s result: %w", t.ID, err)
		}
	}
	return &t, nil
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
