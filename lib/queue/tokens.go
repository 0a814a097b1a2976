// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TokenRow is one bootstrap token record. Only the SHA-256 digest of
// the plaintext token is ever stored; the bootstrap service owns the
// hashing and never hands the store anything else.
type TokenRow struct {
	TokenHash  string
	JobID      string
	Requester  string
	CattleName string
	EnvKeys    []string
	PublicEnv  map[string]string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// InsertToken persists a freshly minted token row.
func (s *Store) InsertToken(ctx context.Context, row TokenRow) error {
	envKeys, err := json.Marshal(row.EnvKeys)
	if err != nil {
		return fmt.Errorf("queue: marshal env keys: %w", err)
	}
	publicEnv, err := json.Marshal(row.PublicEnv)
	if err != nil {
		return fmt.Errorf("queue: marshal public env: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO bootstrap_tokens
			(token_hash, job_id, requester, cattle_name, env_keys,
			 public_env, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				row.TokenHash, row.JobID, row.Requester, row.CattleName,
				string(envKeys), string(publicEnv),
				row.CreatedAt.UnixMilli(), row.ExpiresAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("queue: insert token: %w", err)
	}
	return nil
}

// ConsumeToken marks the token with the given hash used, if and only
// if it is unused and unexpired at now. Exactly one concurrent caller
// can win; everyone else gets (nil, nil). Unknown hash, already-used,
// and expired all return (nil, nil) with no distinguishing signal.
func (s *Store) ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (*TokenRow, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	// The single conditional write that decides the race. Changes()
	// is checked rather than a prior read, so two concurrent
	// redemptions cannot both observe "unused" and both succeed.
	err = sqlitex.Execute(conn, `
		UPDATE bootstrap_tokens SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?`,
		&sqlitex.ExecOptions{
			Args: []any{now.UnixMilli(), tokenHash, now.UnixMilli()},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: consume token: %w", err)
	}
	if conn.Changes() != 1 {
		return nil, nil
	}

	row, err := s.getToken(conn, tokenHash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("bootstrap token consumed",
		"job_id", row.JobID,
		"cattle", row.CattleName,
	)
	return row, nil
}

// PruneTokens deletes rows that are expired or already used, and
// returns how many were removed. In-flight redemptions are unaffected:
// a token this would delete can no longer be consumed anyway.
func (s *Store) PruneTokens(ctx context.Context, now time.Time) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		DELETE FROM bootstrap_tokens
		WHERE expires_at <= ? OR used_at IS NOT NULL`,
		&sqlitex.ExecOptions{
			Args: []any{now.UnixMilli()},
		})
	if err != nil {
		return 0, fmt.Errorf("queue: prune tokens: %w", err)
	}

	pruned := conn.Changes()
	if pruned > 0 {
		s.logger.Debug("pruned bootstrap tokens", "count", pruned)
	}
	return pruned, nil
}

// CountTokens returns the number of token rows. Test and diagnostic
// helper.
func (s *Store) CountTokens(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM bootstrap_tokens",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("queue: count tokens: %w", err)
	}
	return count, nil
}

func (s *Store) getToken(conn *sqlite.Conn, tokenHash string) (*TokenRow, error) {
	var row *TokenRow
	var scanErr error
	err := sqlitex.Execute(conn, `
		SELECT token_hash, job_id, requester, cattle_name, env_keys,
		       public_env, created_at, expires_at, used_at
		FROM bootstrap_tokens WHERE token_hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{tokenHash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row, scanErr = scanToken(stmt)
				return scanErr
			},
		})
	if err != nil {
		return nil, fmt.Errorf("queue: get token: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("queue: token row vanished after conditional update")
	}
	return row, nil
}

func scanToken(stmt *sqlite.Stmt) (*TokenRow, error) {
	row := &TokenRow{
		TokenHash:  stmt.ColumnText(0),
		JobID:      stmt.ColumnText(1),
		Requester:  stmt.ColumnText(2),
		CattleName: stmt.ColumnText(3),
		CreatedAt:  time.UnixMilli(stmt.ColumnInt64(6)).UTC(),
		ExpiresAt:  time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &row.EnvKeys); err != nil {
		return nil, fmt.Errorf("queue: decode env keys: %w", err)
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(5)), &row.PublicEnv); err != nil {
		return nil, fmt.Errorf("queue: decode public env: %w", err)
	}
	if stmt.ColumnType(8) != sqlite.TypeNull {
		usedAt := time.UnixMilli(stmt.ColumnInt64(8)).UTC()
		row.UsedAt = &usedAt
	}
	return row, nil
}
