package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/haasonsaas/relay/pkg/models"
)

// SQLiteStore implements Store on a SQLite file. The gateway and worker
// processes open the same file; WAL mode lets the gateway enqueue and poll
// while a worker holds a write.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the queue database at path, creating
// parent directories as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("queue path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			backend TEXT NOT NULL,
			request TEXT NOT NULL,
			state TEXT NOT NULL,
			worker_id TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			finished_at DATETIME,
			result TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_state_created ON jobs(state, created_at)`)
	if err != nil {
		return fmt.Errorf("create jobs index: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue inserts a pending job.
func (s *SQLiteStore) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, backend, request, state, worker_id, created_at, started_at, finished_at, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Backend,
		string(requestJSON),
		string(job.State),
		nullableString(job.WorkerID),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		marshalResult(job.Result),
		nullableString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend, request, state, worker_id, created_at, started_at, finished_at, result, error_message
		FROM jobs WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Claim moves the oldest pending job to running, stamped with workerID. The
// guarded update is atomic, so concurrent claimers never receive the same
// row; the re-read fetches the row this claimer just stamped.
func (s *SQLiteStore) Claim(ctx context.Context, workerID string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, worker_id = ?, started_at = ?
		WHERE id = (
			SELECT id FROM jobs WHERE state = ? ORDER BY created_at, id LIMIT 1
		) AND state = ?
	`, string(StateRunning), workerID, time.Now().UTC(), string(StatePending), string(StatePending))
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, backend, request, state, worker_id, created_at, started_at, finished_at, result, error_message
		FROM jobs WHERE worker_id = ? AND state = ? ORDER BY started_at DESC LIMIT 1
	`, workerID, string(StateRunning))
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("read claimed job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return job, nil
}

// Complete marks a running job done. The state guard keeps terminal states
// from being overwritten.
func (s *SQLiteStore) Complete(ctx context.Context, id string, result *models.ChatResponse) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, result = ?, error_message = NULL, finished_at = ?
		WHERE id = ? AND state = ?
	`, string(StateDone), string(resultJSON), time.Now().UTC(), id, string(StateRunning))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkGuarded(ctx, res, "complete", id)
}

// Fail marks a running job failed.
func (s *SQLiteStore) Fail(ctx context.Context, id string, detail string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND state = ?
	`, string(StateFailed), detail, time.Now().UTC(), id, string(StateRunning))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return s.checkGuarded(ctx, res, "fail", id)
}

// checkGuarded explains a guarded update that matched nothing: either the job
// does not exist or it was not running.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	var state string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s job: %w", op, err)
	}
	return fmt.Errorf("%s job %q: state is %q, not running", op, id, state)
}

// List returns jobs newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	query := `
		SELECT id, backend, request, state, worker_id, created_at, started_at, finished_at, result, error_message
		FROM jobs
		ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT ?"
		if offset > 0 {
			args = append(args, offset)
			query += " OFFSET ?"
		}
	} else if offset > 0 {
		// LIMIT -1 is SQLite's "no limit"; OFFSET needs a LIMIT clause.
		args = append(args, offset)
		query += " LIMIT -1 OFFSET ?"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Counts returns per-state totals.
func (s *SQLiteStore) Counts(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		counts[State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return counts, nil
}

// Prune deletes terminal jobs that finished before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE state IN (?, ?) AND finished_at < ?
	`, string(StateDone), string(StateFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return n, nil
}

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobScanner) (*Job, error) {
	var (
		job          Job
		requestJSON  string
		state        string
		workerID     sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
		resultJSON   sql.NullString
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Backend,
		&requestJSON,
		&state,
		&workerID,
		&job.CreatedAt,
		&startedAt,
		&finishedAt,
		&resultJSON,
		&errorMessage,
	); err != nil {
		return nil, err
	}
	job.State = State(state)
	if workerID.Valid {
		job.WorkerID = workerID.String
	}
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = finishedAt.Time
	}
	if requestJSON != "" {
		var req models.ChatRequest
		if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
			return nil, fmt.Errorf("unmarshal job request: %w", err)
		}
		job.Request = &req
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.ChatResponse
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	if errorMessage.Valid {
		job.Error = errorMessage.String
	}
	return &job, nil
}

func marshalResult(result *models.ChatResponse) sql.NullString {
	if result == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
