// Package postgres provides the Postgres-backed task store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/task"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "tasks"

// Config controls the Postgres connection pool used for tasks.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// TaskStore persists tasks in a single Postgres table.
type TaskStore struct {
	pool  pool
	table string
	now   func() time.Time
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore connects to Postgres using cfg.
func NewTaskStore(ctx context.Context, cfg Config) (*TaskStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewTaskStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTaskStoreWithPool(p pool, table string) (*TaskStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TaskStore{
		pool:  p,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *TaskStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the task table and its owner index if they are missing.
func (s *TaskStore) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	command    JSONB NOT NULL,
	result     JSONB,
	result_uri TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_created_idx ON %s (user_id, created_at)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// CreateTask inserts a new task row.
func (s *TaskStore) CreateTask(ctx context.Context, t facility.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	cmd, err := json.Marshal(t.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, user_id, status, command, result, result_uri, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table)
	args := []any{
		t.ID,
		t.UserID,
		string(t.Status),
		cmd,
		nullableJSON(t.Result),
		nullableText(t.ResultURI),
		t.CreatedAt,
		t.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask applies u with a single conditional UPDATE so concurrent
// writers cannot both move a task out of the same state.
func (s *TaskStore) UpdateTask(ctx context.Context, id string, u task.Update) (facility.Task, error) {
	from := sourceStatuses(u.Status)
	if len(from) == 0 {
		return facility.Task{}, fmt.Errorf("task %s -> %s: %w", id, u.Status, facility.ErrInvalidTransition)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2,
	result = COALESCE($3, result),
	result_uri = COALESCE($4, result_uri),
	updated_at = $5
WHERE id = $1 AND status = ANY($6)
RETURNING %s`, s.table, columns)
	row := s.pool.QueryRow(ctx, query,
		id,
		string(u.Status),
		nullableJSON(u.Result),
		nullableText(u.ResultURI),
		s.now(),
		from,
	)
	t, err := scanTask(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return facility.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return facility.Task{}, s.rejection(ctx, id, u.Status)
}

// rejection explains why a conditional update matched no row.
func (s *TaskStore) rejection(ctx context.Context, id string, to facility.TaskStatus) error {
	var status string
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, facility.ErrNotFound)
		}
		return fmt.Errorf("load task %s status: %w", id, err)
	}
	current := facility.TaskStatus(status)
	if current.Terminal() {
		return fmt.Errorf("task %s is %s: %w", id, current, facility.ErrTaskTerminal)
	}
	return fmt.Errorf("task %s %s -> %s: %w", id, current, to, facility.ErrInvalidTransition)
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, id string) (facility.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table)
	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return facility.Task{}, fmt.Errorf("task %s: %w", id, facility.ErrNotFound)
	}
	if err != nil {
		return facility.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns the user's tasks ordered by creation time.
func (s *TaskStore) ListTasks(ctx context.Context, userID string) ([]facility.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 ORDER BY created_at, id`, columns, s.table)
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	out := make([]facility.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

const columns = `id, user_id, status, command, result, COALESCE(result_uri, ''), created_at, updated_at`

func scanTask(row pgx.Row) (facility.Task, error) {
	var (
		t       facility.Task
		status  string
		command []byte
		result  []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &status, &command, &result, &t.ResultURI, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return facility.Task{}, err //nolint:wrapcheck // callers wrap with the task id
	}
	t.Status = facility.TaskStatus(status)
	cmd, err := facility.ParseTaskCommand(command)
	if err != nil {
		return facility.Task{}, err
	}
	t.Command = &cmd
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	return t, nil
}

// sourceStatuses lists the states a task may leave to reach to.
func sourceStatuses(to facility.TaskStatus) []string {
	var out []string
	for _, from := range []facility.TaskStatus{facility.TaskPending, facility.TaskActive} {
		if facility.CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

func nullableJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return []byte(raw)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
