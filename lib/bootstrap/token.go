// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/clawlets/clf/lib/clock"
	"github.com/clawlets/clf/lib/envname"
	"github.com/clawlets/clf/lib/queue"
)

// TTL bounds. Every token gets a hard expiry: the clamp guarantees an
// abandoned instance's credential dies on its own, and prune keeps
// the table from growing without bound.
const (
	MinTTL     = 30 * time.Second
	MaxTTL     = time.Hour
	DefaultTTL = 10 * time.Minute
)

// tokenPrefix marks plaintext tokens so leaked ones are greppable in
// logs and scanners. It carries no entropy.
const tokenPrefix = "clf_"

// Service mints and redeems bootstrap tokens. It is a caller of the
// queue store's token primitives, not an owner of the storage handle.
type Service struct {
	store  *queue.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a token service over the given store.
func NewService(store *queue.Store, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{store: store, clock: clk, logger: logger}
}

// CreateParams binds a new token to a job, its requester, and one
// cattle instance.
type CreateParams struct {
	JobID      string
	Requester  string
	CattleName string

	// EnvKeys are the secret names the redeeming instance may
	// resolve from the secret store.
	EnvKeys []string

	// PublicEnv is disclosed before redemption completes; keys must
	// be CLAWLETS_-prefixed safe identifiers.
	PublicEnv map[string]string

	// TTL is clamped into [MinTTL, MaxTTL]; zero means DefaultTTL.
	TTL time.Duration
}

// Created is the one-time response from Create. Token is the only
// copy of the plaintext that will ever exist outside the caller.
type Created struct {
	Token     string
	ExpiresAt time.Time
}

// Binding is what a successful redemption returns: everything the
// instance needs to fetch its task and resolve its secrets.
type Binding struct {
	JobID      string            `json:"jobId"`
	Requester  string            `json:"requester"`
	CattleName string            `json:"cattleName"`
	EnvKeys    []string          `json:"envKeys"`
	PublicEnv  map[string]string `json:"publicEnv"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	UsedAt     time.Time         `json:"usedAt"`
}

// Create validates the binding, generates a random 256-bit token,
// persists its SHA-256 digest plus metadata, and returns the
// plaintext once.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Created, error) {
	if params.JobID == "" {
		return nil, &queue.ValidationError{Message: "token: jobId is required"}
	}
	if params.Requester == "" {
		return nil, &queue.ValidationError{Message: "token: requester is required"}
	}
	if params.CattleName == "" {
		return nil, &queue.ValidationError{Message: "token: cattleName is required"}
	}
	for _, key := range params.EnvKeys {
		if err := envname.Check(key); err != nil {
			return nil, &queue.ValidationError{Message: fmt.Sprintf("token: envKeys: %v", err)}
		}
	}
	for key := range params.PublicEnv {
		if err := envname.CheckPublic(key); err != nil {
			return nil, &queue.ValidationError{Message: fmt.Sprintf("token: publicEnv: %v", err)}
		}
	}

	ttl := params.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("token: generating randomness: %w", err)
	}
	token := tokenPrefix + hex.EncodeToString(raw)

	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	envKeys := params.EnvKeys
	if envKeys == nil {
		envKeys = []string{}
	}
	publicEnv := params.PublicEnv
	if publicEnv == nil {
		publicEnv = map[string]string{}
	}

	if err := s.store.InsertToken(ctx, queue.TokenRow{
		TokenHash:  hashToken(token),
		JobID:      params.JobID,
		Requester:  params.Requester,
		CattleName: params.CattleName,
		EnvKeys:    envKeys,
		PublicEnv:  publicEnv,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("bootstrap token created",
		"job_id", params.JobID,
		"cattle", params.CattleName,
		"env_keys", len(envKeys),
		"expires_at", expiresAt,
	)

	return &Created{Token: token, ExpiresAt: expiresAt}, nil
}

// Consume redeems a plaintext token. Returns (nil, nil) — never a
// typed error — for an unknown token, a token already used once, or a
// token past its expiry: the three cases must be indistinguishable so
// the redemption endpoint cannot be used to enumerate live tokens.
func (s *Service) Consume(ctx context.Context, token string) (*Binding, error) {
	row, err := s.store.ConsumeToken(ctx, hashToken(token), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &Binding{
		JobID:      row.JobID,
		Requester:  row.Requester,
		CattleName: row.CattleName,
		EnvKeys:    row.EnvKeys,
		PublicEnv:  row.PublicEnv,
		CreatedAt:  row.CreatedAt,
		ExpiresAt:  row.ExpiresAt,
		UsedAt:     *row.UsedAt,
	}, nil
}

// Prune deletes expired and spent token rows.
func (s *Service) Prune(ctx context.Context) (int, error) {
	return s.store.PruneTokens(ctx, s.clock.Now())
}

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
