package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func mustEnv(t *testing.T, key string) string {
	t.Helper()
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		t.Skipf("missing %s env var", key)
	}
	return v
}

func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	sqlPath := filepath.Join("migrations", "0001_ledger.sql")
	b, err := os.ReadFile(sqlPath)
	if err != nil {
		t.Fatalf("read schema %s: %v", sqlPath, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := mustEnv(t, "LEDGER_TEST_DSN")

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func newTestStore(t *testing.T) *Store {
	pool := newTestPool(t)
	applySchema(t, pool)
	return NewStore(pool, 10*time.Second, 5*time.Second, 10)
}

// TestConcurrentDebitsOnlyOneWins drives spec.md §8 scenario 3: ten
// simultaneous debits of 10000 against a 10000 balance, exactly one
// succeeds (P1).
func TestConcurrentDebitsOnlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	if _, err := s.PostTransaction(ctx, userID, Credit, 10000, ""); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, failed := 0, 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PostTransaction(ctx, userID, Debit, 10000, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				failed++
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || failed != 9 {
		t.Fatalf("expected 1 success / 9 failures, got %d success / %d failures", succeeded, failed)
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

// TestConcurrentCreditsNoLostUpdates drives scenario 4 (P1, P2): fifty
// concurrent credits of 1000 must all land.
func TestConcurrentCreditsNoLostUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.PostTransaction(ctx, userID, Credit, 1000, ""); err != nil {
				t.Errorf("credit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50000 {
		t.Fatalf("expected balance 50000, got %d", balance)
	}

	txs, err := s.ListTransactions(ctx, userID, Credit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 50 {
		t.Fatalf("expected 50 transactions, got %d", len(txs))
	}
}

// TestConcurrentIdempotentRetry drives scenario 5 (P4): five concurrent
// posts with the same idempotency key settle to exactly one transaction,
// and every caller observes the same id.
func TestConcurrentIdempotentRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	key := "k1-" + uuid.NewString()

	ids := make([]string, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := s.PostTransaction(ctx, userID, Credit, 1500, key)
			if err != nil {
				t.Errorf("post %d failed: %v", i, err)
				return
			}
			ids[i] = view.ID
		}(i)
	}
	wg.Wait()

	first := ids[0]
	for i, id := range ids {
		if id != first {
			t.Fatalf("response %d carried id %q, want %q", i, id, first)
		}
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1500 {
		t.Fatalf("expected balance 1500, got %d", balance)
	}

	txs, err := s.ListTransactions(ctx, userID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected exactly 1 transaction row, got %d", len(txs))
	}
}

// TestDistinctKeysIndependence drives scenario 5's counterpart (P5):
// pairwise-distinct idempotency keys on identical bodies must all commit
// independently.
func TestDistinctKeysIndependence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "distinct-" + uuid.NewString()
			if _, err := s.PostTransaction(ctx, userID, Credit, 1000, key); err != nil {
				t.Errorf("post %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != int64(n*1000) {
		t.Fatalf("expected balance %d, got %d", n*1000, balance)
	}
}

func TestInsufficientBalanceRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	_, err := s.PostTransaction(ctx, userID, Debit, 1, "")
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestSweepExpiredIdempotencyKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	if _, err := s.PostTransaction(ctx, userID, Credit, 100, "sweep-me-"+uuid.NewString()); err != nil {
		t.Fatalf("post: %v", err)
	}

	if _, err := s.db.Exec(ctx, `UPDATE idempotency_keys SET expires_at = now() - interval '1 hour'`); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	deleted, err := s.SweepExpiredIdempotencyKeys(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted < 1 {
		t.Fatalf("expected at least 1 row swept, got %d", deleted)
	}
}
