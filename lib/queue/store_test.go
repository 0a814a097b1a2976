// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawlets/clf/lib/backoff"
	"github.com/clawlets/clf/lib/clock"
	"github.com/clawlets/clf/lib/testutil"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := Open(Config{
		Path:    filepath.Join(t.TempDir(), "queue.db"),
		Clock:   fake,
		Backoff: backoff.Policy{Base: time.Second, Max: time.Minute},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func spawnPayload(taskID string) json.RawMessage {
	payload := SpawnPayload{
		Persona: "builder",
		Task: Task{
			SchemaVersion: 1,
			TaskID:        taskID,
			Type:          "build",
			Message:       "build the thing",
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func reapPayload(dryRun bool) json.RawMessage {
	raw, _ := json.Marshal(ReapPayload{DryRun: dryRun})
	return raw
}

func TestEnqueueAssignsQueuedJob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, EnqueueParams{
		Kind:      KindCattleSpawn,
		Requester: "operator-a",
		Payload:   spawnPayload("t-1"),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if job.JobID == "" {
		t.Error("JobID is empty")
	}
	if job.Status != StatusQueued {
		t.Errorf("Status = %s, want queued", job.Status)
	}
	if job.Attempt != 0 {
		t.Errorf("Attempt = %d, want 0", job.Attempt)
	}
	if job.MaxAttempts != defaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", job.MaxAttempts, defaultMaxAttempts)
	}
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Enqueue(context.Background(), EnqueueParams{
		Kind:      "cattle.teleport",
		Requester: "operator-a",
		Payload:   json.RawMessage(`{}`),
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Enqueue with unknown kind = %v, want *ValidationError", err)
	}

	// Nothing was written.
	jobs, listErr := store.List(context.Background(), ListFilter{})
	if listErr != nil {
		t.Fatalf("List: %v", listErr)
	}
	if len(jobs) != 0 {
		t.Errorf("store has %d jobs after rejected enqueue, want 0", len(jobs))
	}
}

func TestEnqueueRejectsMalformedPayload(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Enqueue(context.Background(), EnqueueParams{
		Kind:      KindCattleSpawn,
		Requester: "operator-a",
		Payload:   json.RawMessage(`{"persona": ""}`),
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Enqueue with empty persona = %v, want *ValidationError", err)
	}
}

func TestEnqueueIdempotency(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	params := EnqueueParams{
		Kind:           KindCattleSpawn,
		Requester:      testutil.UniqueID("operator"),
		Payload:        spawnPayload("t-1"),
		IdempotencyKey: testutil.UniqueID("retry-safe"),
	}

	first, err := store.Enqueue(ctx, params)
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	second, err := store.Enqueue(ctx, params)
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}

	if first.JobID != second.JobID {
		t.Errorf("idempotent re-enqueue returned %s, want %s", second.JobID, first.JobID)
	}

	jobs, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("store has %d jobs, want exactly 1", len(jobs))
	}
}

func TestEnqueueIdempotencyScopedByRequesterAndKind(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "operator-a",
		Payload: spawnPayload("t-1"), IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	b, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "operator-b",
		Payload: spawnPayload("t-1"), IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}
	c, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleReap, Requester: "operator-a",
		Payload: reapPayload(false), IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("Enqueue c: %v", err)
	}

	if a.JobID == b.JobID || a.JobID == c.JobID {
		t.Error("idempotency key collided across requester or kind")
	}
}

func TestLeaseClaimsOldestEligible(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fake.Advance(time.Second)
	if _, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-2"),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	leased, err := store.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased == nil {
		t.Fatal("Lease returned nil with two queued jobs")
	}
	if leased.JobID != first.JobID {
		t.Errorf("leased %s, want oldest %s", leased.JobID, first.JobID)
	}
	if leased.Status != StatusRunning {
		t.Errorf("leased status = %s, want running", leased.Status)
	}
}

func TestLeasePrefersHigherPriority(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("low"),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fake.Advance(time.Second)
	urgent, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("high"), Priority: 10,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	leased, err := store.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased == nil || leased.JobID != urgent.JobID {
		t.Errorf("leased %+v, want high-priority job %s", leased, urgent.JobID)
	}
}

func TestLeaseSkipsFutureRunAt(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	runAt := fake.Now().Add(time.Hour)
	if _, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op",
		Payload: spawnPayload("t-1"), RunAt: &runAt,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	leased, err := store.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased != nil {
		t.Fatalf("leased %s before its runAt", leased.JobID)
	}

	fake.Advance(time.Hour)
	leased, err = store.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased == nil {
		t.Fatal("Lease returned nil after runAt passed")
	}
}

func TestLeaseEmptyQueue(t *testing.T) {
	store, _ := newTestStore(t)

	leased, err := store.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased != nil {
		t.Errorf("Lease on empty queue = %+v, want nil", leased)
	}
}

func TestLeaseConcurrentSingleWinnerPerJob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const callers = 8
	results := make(chan *Job, callers)
	for i := 0; i < callers; i++ {
		go func() {
			job, err := store.Lease(ctx)
			if err != nil {
				t.Errorf("Lease: %v", err)
			}
			results <- job
		}()
	}

	winners := 0
	for i := 0; i < callers; i++ {
		if job := testutil.RequireReceive(t, results, 5*time.Second, "lease result"); job != nil {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d lease winners for one queued job, want exactly 1", winners)
	}
}

func TestCompleteStoresResult(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	if _, err := store.Lease(ctx); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	result := json.RawMessage(`{"instanceId":"i-123","ipv4":"10.0.0.5"}`)
	if err := store.Complete(ctx, job.JobID, result); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stored, err := store.Show(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", stored.Status)
	}
	if string(stored.Result) != string(result) {
		t.Errorf("Result = %s, want %s", stored.Result, result)
	}
}

func TestCompleteRequiresRunning(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})

	err := store.Complete(ctx, job.JobID, nil)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Complete on queued job = %v, want *StateError", err)
	}

	if err := store.Complete(ctx, "no-such-job", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete on unknown job = %v, want ErrNotFound", err)
	}
}

func TestFailRequeuesWithBackoff(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	if _, err := store.Lease(ctx); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if err := store.Fail(ctx, job.JobID, "provisioner timeout"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	stored, _ := store.Show(ctx, job.JobID)
	if stored.Status != StatusQueued {
		t.Errorf("Status after retryable fail = %s, want queued", stored.Status)
	}
	if stored.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", stored.Attempt)
	}
	if stored.Error != "provisioner timeout" {
		t.Errorf("Error = %q", stored.Error)
	}
	// backoff(1) with 1s base: runAt = now + 1s.
	wantRunAt := fake.Now().Add(time.Second)
	if stored.RunAt == nil || !stored.RunAt.Equal(wantRunAt) {
		t.Errorf("RunAt = %v, want %v", stored.RunAt, wantRunAt)
	}

	// Not leaseable until the backoff elapses.
	if leased, _ := store.Lease(ctx); leased != nil {
		t.Error("leased a job still inside its backoff window")
	}
	fake.Advance(time.Second)
	if leased, _ := store.Lease(ctx); leased == nil {
		t.Error("job not leaseable after backoff elapsed")
	}
}

func TestFailTerminalAfterMaxAttempts(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op",
		Payload: spawnPayload("t-1"), MaxAttempts: 2,
	})

	for attempt := 0; attempt < 2; attempt++ {
		fake.Advance(time.Minute)
		leased, err := store.Lease(ctx)
		if err != nil {
			t.Fatalf("Lease attempt %d: %v", attempt, err)
		}
		if leased == nil {
			t.Fatalf("Lease attempt %d returned nil", attempt)
		}
		if err := store.Fail(ctx, job.JobID, "still broken"); err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
	}

	stored, _ := store.Show(ctx, job.JobID)
	if stored.Status != StatusFailed {
		t.Errorf("Status = %s, want terminal failed", stored.Status)
	}
	if stored.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", stored.Attempt)
	}
	if stored.Error != "still broken" {
		t.Errorf("Error = %q", stored.Error)
	}
}

func TestCancelQueuedAndTerminalNoOp(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})

	if err := store.Cancel(ctx, job.JobID); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}
	stored, _ := store.Show(ctx, job.JobID)
	if stored.Status != StatusCanceled {
		t.Errorf("Status = %s, want canceled", stored.Status)
	}

	// Canceling again succeeds without touching the row.
	updatedAt := stored.UpdatedAt
	fake.Advance(time.Hour)
	if err := store.Cancel(ctx, job.JobID); err != nil {
		t.Fatalf("Cancel terminal: %v", err)
	}
	again, _ := store.Show(ctx, job.JobID)
	if !again.UpdatedAt.Equal(updatedAt) {
		t.Error("cancel on terminal job mutated updated_at")
	}

	if err := store.Cancel(ctx, "no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel unknown job = %v, want ErrNotFound", err)
	}
}

func TestCancelSucceededNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	store.Lease(ctx)
	store.Complete(ctx, job.JobID, nil)

	if err := store.Cancel(ctx, job.JobID); err != nil {
		t.Fatalf("Cancel succeeded job: %v", err)
	}
	stored, _ := store.Show(ctx, job.JobID)
	if stored.Status != StatusSucceeded {
		t.Errorf("Status = %s, cancel must not rewrite a terminal state", stored.Status)
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	spawn, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op-a", Payload: spawnPayload("t-1"),
	})
	fake.Advance(time.Second)
	reap, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleReap, Requester: "op-b", Payload: reapPayload(true),
	})

	all, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d jobs, want 2", len(all))
	}
	// Most recently updated first.
	if all[0].JobID != reap.JobID {
		t.Errorf("List[0] = %s, want most recently updated %s", all[0].JobID, reap.JobID)
	}

	byKind, _ := store.List(ctx, ListFilter{Kind: KindCattleSpawn})
	if len(byKind) != 1 || byKind[0].JobID != spawn.JobID {
		t.Errorf("List by kind = %+v, want only %s", byKind, spawn.JobID)
	}

	byRequester, _ := store.List(ctx, ListFilter{Requester: "op-b"})
	if len(byRequester) != 1 || byRequester[0].JobID != reap.JobID {
		t.Errorf("List by requester = %+v, want only %s", byRequester, reap.JobID)
	}

	byStatus, _ := store.List(ctx, ListFilter{Status: StatusQueued})
	if len(byStatus) != 2 {
		t.Errorf("List by status queued = %d rows, want 2", len(byStatus))
	}

	limited, _ := store.List(ctx, ListFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("List with limit 1 returned %d rows", len(limited))
	}
}

func TestShowUnknownJob(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Show(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Show unknown = %v, want ErrNotFound", err)
	}
}

func TestRecoverRequeuesRunning(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, _ := store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	if _, err := store.Lease(ctx); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	recovered, err := store.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != 1 {
		t.Errorf("Recover = %d, want 1", recovered)
	}

	stored, _ := store.Show(ctx, job.JobID)
	if stored.Status != StatusQueued {
		t.Errorf("Status after recover = %s, want queued", stored.Status)
	}
	if stored.Attempt != 0 {
		t.Errorf("Attempt after recover = %d, recovery must not consume an attempt", stored.Attempt)
	}
}

func TestCountByStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleSpawn, Requester: "op", Payload: spawnPayload("t-1"),
	})
	store.Enqueue(ctx, EnqueueParams{
		Kind: KindCattleReap, Requester: "op", Payload: reapPayload(false),
	})
	store.Lease(ctx)

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusQueued] != 1 || counts[StatusRunning] != 1 {
		t.Errorf("counts = %v, want 1 queued and 1 running", counts)
	}
}
