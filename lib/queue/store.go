// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/clawlets/clf/lib/backoff"
	"github.com/clawlets/clf/lib/clock"
	"github.com/clawlets/clf/lib/sqlitepool"
)

// schema creates both store-owned tables. Idempotent; applied on
// every connection via the pool's OnConnect hook.
//
// Timestamps are Unix milliseconds. The partial unique index enforces
// at-most-once creation per (requester, kind, idempotency_key).
const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id          TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'queued',
		attempt         INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL,
		priority        INTEGER NOT NULL DEFAULT 0,
		run_at          INTEGER,
		idempotency_key TEXT,
		requester       TEXT NOT NULL,
		payload         TEXT NOT NULL,
		result          TEXT,
		error           TEXT,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idempotency
		ON jobs(requester, kind, idempotency_key)
		WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_jobs_lease
		ON jobs(status, priority, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_updated
		ON jobs(updated_at);

	CREATE TABLE IF NOT EXISTS bootstrap_tokens (
		token_hash  TEXT PRIMARY KEY,
		job_id      TEXT NOT NULL,
		requester   TEXT NOT NULL,
		cattle_name TEXT NOT NULL,
		env_keys    TEXT NOT NULL,
		public_env  TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		expires_at  INTEGER NOT NULL,
		used_at     INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_prune
		ON bootstrap_tokens(expires_at, used_at);
`

// Config holds the parameters for opening a queue store.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is passed through to the connection pool.
	PoolSize int

	// Clock provides the current time for every timestamp and expiry
	// decision. Required.
	Clock clock.Clock

	// Backoff computes retry delays for failed jobs. Zero Base
	// falls back to backoff.DefaultPolicy.
	Backoff backoff.Policy

	// Logger receives operational messages. If nil, discard.
	Logger *slog.Logger
}

// Store is the durable job and token table owner. All methods are
// safe for concurrent use.
type Store struct {
	pool    *sqlitepool.Pool
	clock   clock.Clock
	backoff backoff.Policy
	logger  *slog.Logger
}

// Open opens (creating if necessary) the store at cfg.Path and
// ensures the schema exists. The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("queue: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	policy := cfg.Backoff
	if policy.Base <= 0 {
		policy = backoff.DefaultPolicy
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	return &Store{
		pool:    pool,
		clock:   cfg.Clock,
		backoff: policy,
		logger:  logger,
	}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// EnqueueParams collects the inputs for Enqueue. Kind, Requester, and
// Payload are required.
type EnqueueParams struct {
	Kind           Kind
	Requester      string
	Payload        json.RawMessage
	IdempotencyKey string
	RunAt          *time.Time
	Priority       int
	MaxAttempts    int
}

const (
	defaultMaxAttempts = 5
	maxMaxAttempts     = 20
)

// Enqueue validates and persists a new job, returning the stored
// record. If an idempotency key is set and a row already exists for
// (requester, kind, key), the existing job is returned unchanged and
// nothing is written.
func (s *Store) Enqueue(ctx context.Context, params EnqueueParams) (*Job, error) {
	if params.Requester == "" {
		return nil, &ValidationError{Message: "requester is required"}
	}
	if err := ValidatePayload(params.Kind, params.Payload); err != nil {
		return nil, err
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts < 1 || maxAttempts > maxMaxAttempts {
		return nil, &ValidationError{Message: fmt.Sprintf("maxAttempts %d out of range [1, %d]", maxAttempts, maxMaxAttempts)}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	jobID := uuid.NewString()

	var idempotencyKey any
	if params.IdempotencyKey != "" {
		idempotencyKey = params.IdempotencyKey
	}
	var runAt any
	if params.RunAt != nil {
		runAt = params.RunAt.UnixMilli()
	}

	// INSERT OR IGNORE: the partial unique index makes a duplicate
	// (requester, kind, key) insert change zero rows, in which case
	// the existing row wins and we return it.
	err = sqlitex.Execute(conn, `
		INSERT OR IGNORE INTO jobs
			(job_id, kind, status, attempt, max_attempts, priority,
			 run_at, idempotency_key, requester, payload, created_at, updated_at)
		VALUES (?, ?, 'queued', 0, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				jobID, string(params.Kind), maxAttempts, params.Priority,
				runAt, idempotencyKey, params.Requester, string(params.Payload),
				now.UnixMilli(), now.UnixMilli(),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: enqueue: %w", err)
	}

	if conn.Changes() == 0 {
		existing, err := s.findByIdempotencyKey(conn, params.Requester, params.Kind, params.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("enqueue deduplicated",
			"job_id", existing.JobID,
			"requester", params.Requester,
			"idempotency_key", params.IdempotencyKey,
		)
		return existing, nil
	}

	s.logger.Info("job enqueued",
		"job_id", jobID,
		"kind", params.Kind,
		"requester", params.Requester,
		"priority", params.Priority,
	)
	return s.getJob(conn, jobID)
}

// Lease atomically claims the oldest eligible queued job and moves it
// to running. Eligible means run_at is unset or in the past; higher
// priority wins, then creation order. Returns (nil, nil) when no job
// is eligible or a concurrent lease won the race.
func (s *Store) Lease(ctx context.Context) (job *Job, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("queue: lease: begin: %w", err)
	}
	defer endTransaction(&err)

	now := s.clock.Now()

	var candidate string
	err = sqlitex.Execute(conn, `
		SELECT job_id FROM jobs
		WHERE status = 'queued' AND (run_at IS NULL OR run_at <= ?)
		ORDER BY priority DESC, created_at ASC, job_id ASC
		LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{now.UnixMilli()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				candidate = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: lease: select: %w", err)
	}
	if candidate == "" {
		return nil, nil
	}

	// The guard on status makes this the single conditional write
	// that decides the race. Zero rows changed means another caller
	// (or a cancel) got there first — not an error, just no lease.
	err = sqlitex.Execute(conn, `
		UPDATE jobs SET status = 'running', updated_at = ?
		WHERE job_id = ? AND status = 'queued'`,
		&sqlitex.ExecOptions{
			Args: []any{now.UnixMilli(), candidate},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: lease: claim: %w", err)
	}
	if conn.Changes() != 1 {
		return nil, nil
	}

	leased, err := s.getJob(conn, candidate)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job leased",
		"job_id", leased.JobID,
		"kind", leased.Kind,
		"attempt", leased.Attempt,
	)
	return leased, nil
}

// Complete moves a running job to succeeded, storing its result.
// Returns ErrNotFound for an unknown job and a *StateError when the
// job is not running.
func (s *Store) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var resultText any
	if len(result) > 0 {
		resultText = string(result)
	}

	err = sqlitex.Execute(conn, `
		UPDATE jobs SET status = 'succeeded', result = ?, updated_at = ?
		WHERE job_id = ? AND status = 'running'`,
		&sqlitex.ExecOptions{
			Args: []any{resultText, s.clock.Now().UnixMilli(), jobID},
		})
	if err != nil {
		return fmt.Errorf("queue: complete: %w", err)
	}
	if conn.Changes() != 1 {
		return s.transitionMiss(conn, jobID, StatusRunning)
	}

	s.logger.Info("job succeeded", "job_id", jobID)
	return nil
}

// Fail records a failed execution attempt. While attempts remain, the
// job re-enters queued with run_at pushed out by the backoff policy;
// otherwise it lands in terminal failed carrying the error message.
func (s *Store) Fail(ctx context.Context, jobID string, message string) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("queue: fail: begin: %w", err)
	}
	defer endTransaction(&err)

	var attempt, maxAttempts int
	found := false
	err = sqlitex.Execute(conn, `
		SELECT attempt, max_attempts FROM jobs
		WHERE job_id = ? AND status = 'running'`,
		&sqlitex.ExecOptions{
			Args: []any{jobID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				attempt = stmt.ColumnInt(0)
				maxAttempts = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("queue: fail: select: %w", err)
	}
	if !found {
		return s.transitionMiss(conn, jobID, StatusRunning)
	}

	now := s.clock.Now()
	nextAttempt := attempt + 1

	if nextAttempt < maxAttempts {
		retryAt := now.Add(s.backoff.Delay(nextAttempt))
		err = sqlitex.Execute(conn, `
			UPDATE jobs
			SET status = 'queued', attempt = ?, run_at = ?, error = ?, updated_at = ?
			WHERE job_id = ? AND status = 'running' AND attempt = ?`,
			&sqlitex.ExecOptions{
				Args: []any{nextAttempt, retryAt.UnixMilli(), message, now.UnixMilli(), jobID, attempt},
			})
		if err != nil {
			return fmt.Errorf("queue: fail: requeue: %w", err)
		}
		if conn.Changes() != 1 {
			return s.transitionMiss(conn, jobID, StatusRunning)
		}
		s.logger.Warn("job failed, retrying",
			"job_id", jobID,
			"attempt", nextAttempt,
			"max_attempts", maxAttempts,
			"retry_at", retryAt,
			"error", message,
		)
		return nil
	}

	err = sqlitex.Execute(conn, `
		UPDATE jobs
		SET status = 'failed', attempt = ?, error = ?, updated_at = ?
		WHERE job_id = ? AND status = 'running' AND attempt = ?`,
		&sqlitex.ExecOptions{
			Args: []any{nextAttempt, message, now.UnixMilli(), jobID, attempt},
		})
	if err != nil {
		return fmt.Errorf("queue: fail: terminal: %w", err)
	}
	if conn.Changes() != 1 {
		return s.transitionMiss(conn, jobID, StatusRunning)
	}
	s.logger.Error("job failed permanently",
		"job_id", jobID,
		"attempts", nextAttempt,
		"error", message,
	)
	return nil
}

// Cancel moves a queued or running job to canceled. Canceling a job
// that already reached a terminal state is a successful no-op; the
// row is never touched. Returns ErrNotFound for an unknown job.
//
// Cancel only flips the persisted state — it does not interrupt an
// executor already working on the job.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE jobs SET status = 'canceled', updated_at = ?
		WHERE job_id = ? AND status IN ('queued', 'running')`,
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().UnixMilli(), jobID},
		})
	if err != nil {
		return fmt.Errorf("queue: cancel: %w", err)
	}
	if conn.Changes() == 1 {
		s.logger.Info("job canceled", "job_id", jobID)
		return nil
	}

	// Zero rows: either the job is already terminal (fine) or it
	// does not exist.
	job, err := s.getJob(conn, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	// Should be unreachable: a non-terminal job matches the UPDATE.
	return &StateError{JobID: jobID, Status: job.Status, Want: StatusQueued}
}

// ListFilter narrows a List call. Zero values mean "no filter".
type ListFilter struct {
	Requester string
	Status    Status
	Kind      Kind
	Limit     int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// List returns compact summaries matching the filter, most recently
// updated first, capped at the (clamped) limit.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Summary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var conditions []string
	var args []any
	if filter.Requester != "" {
		conditions = append(conditions, "requester = ?")
		args = append(args, filter.Requester)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	query := "SELECT job_id, kind, status, attempt, max_attempts, updated_at FROM jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, job_id DESC LIMIT ?"
	args = append(args, limit)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var summaries []Summary
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			summaries = append(summaries, Summary{
				JobID:       stmt.ColumnText(0),
				Kind:        Kind(stmt.ColumnText(1)),
				Status:      Status(stmt.ColumnText(2)),
				Attempt:     stmt.ColumnInt(3),
				MaxAttempts: stmt.ColumnInt(4),
				UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	return summaries, nil
}

// Show returns the full record for jobID, or ErrNotFound.
func (s *Store) Show(ctx context.Context, jobID string) (*Job, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	return s.getJob(conn, jobID)
}

// CountByStatus returns the number of jobs in each status. Statuses
// with no jobs are omitted.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	counts := make(map[Status]int)
	err = sqlitex.Execute(conn,
		"SELECT status, COUNT(*) FROM jobs GROUP BY status",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts[Status(stmt.ColumnText(0))] = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: count: %w", err)
	}
	return counts, nil
}

// Recover returns every running job to queued without consuming an
// attempt. A single daemon owns this store, so any running row at
// startup was abandoned by a crash mid-execution. Call once before
// the worker loop starts.
func (s *Store) Recover(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE jobs SET status = 'queued', run_at = NULL, updated_at = ?
		WHERE status = 'running'`,
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().UnixMilli()},
		})
	if err != nil {
		return 0, fmt.Errorf("queue: recover: %w", err)
	}

	recovered := conn.Changes()
	if recovered > 0 {
		s.logger.Warn("recovered abandoned running jobs", "count", recovered)
	}
	return recovered, nil
}

// transitionMiss classifies a conditional update that changed zero
// rows: unknown job or wrong state.
func (s *Store) transitionMiss(conn *sqlite.Conn, jobID string, want Status) error {
	job, err := s.getJob(conn, jobID)
	if err != nil {
		return err
	}
	return &StateError{JobID: jobID, Status: job.Status, Want: want}
}

func (s *Store) findByIdempotencyKey(conn *sqlite.Conn, requester string, kind Kind, key string) (*Job, error) {
	var jobID string
	err := sqlitex.Execute(conn, `
		SELECT job_id FROM jobs
		WHERE requester = ? AND kind = ? AND idempotency_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{requester, string(kind), key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				jobID = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: idempotency lookup: %w", err)
	}
	if jobID == "" {
		return nil, fmt.Errorf("queue: idempotency conflict for %s/%s/%s but no existing row", requester, kind, key)
	}
	return s.getJob(conn, jobID)
}

func (s *Store) getJob(conn *sqlite.Conn, jobID string) (*Job, error) {
	var job *Job
	err := sqlitex.Execute(conn, `
		SELECT job_id, kind, status, attempt, max_attempts, priority,
		       run_at, idempotency_key, requester, payload, result, error,
		       created_at, updated_at
		FROM jobs WHERE job_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{jobID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				job = scanJob(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: get job: %w", err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

func scanJob(stmt *sqlite.Stmt) *Job {
	job := &Job{
		JobID:       stmt.ColumnText(0),
		Kind:        Kind(stmt.ColumnText(1)),
		Status:      Status(stmt.ColumnText(2)),
		Attempt:     stmt.ColumnInt(3),
		MaxAttempts: stmt.ColumnInt(4),
		Priority:    stmt.ColumnInt(5),
		Requester:   stmt.ColumnText(8),
		Payload:     json.RawMessage(stmt.ColumnText(9)),
		Error:       stmt.ColumnText(11),
		CreatedAt:   time.UnixMilli(stmt.ColumnInt64(12)).UTC(),
		UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(13)).UTC(),
	}
	if stmt.ColumnType(6) != sqlite.TypeNull {
		runAt := time.UnixMilli(stmt.ColumnInt64(6)).UTC()
		job.RunAt = &runAt
	}
	if stmt.ColumnType(7) != sqlite.TypeNull {
		job.IdempotencyKey = stmt.ColumnText(7)
	}
	if stmt.ColumnType(10) != sqlite.TypeNull {
		job.Result = json.RawMessage(stmt.ColumnText(10))
	}
	return job
}
