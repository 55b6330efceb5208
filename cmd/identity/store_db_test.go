package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerplatform/identity-ledger/pkg/security"
)

func mustIdentityDSN(t *testing.T) string {
	t.Helper()
	v := strings.TrimSpace(os.Getenv("IDENTITY_TEST_DSN"))
	if v == "" {
		t.Skip("missing IDENTITY_TEST_DSN env var")
	}
	return v
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := mustIdentityDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	sqlPath := filepath.Join("migrations", "0001_users.sql")
	b, err := os.ReadFile(sqlPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return NewStore(pool)
}

func TestCreateUserDuplicateEmailConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := security.HashPassword("correcthorse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	email := "dup-" + time.Now().Format("150405.000000") + "@example.com"
	if _, err := s.CreateUser(ctx, email, hash, "Ada", "Lovelace"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.CreateUser(ctx, email, hash, "Ada", "Lovelace"); err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}
}

// TestUserViewNeverLeaksPasswordField drives P6: neither the raw struct's
// field name nor the digest value may appear in the marshaled wire shape.
func TestUserViewNeverLeaksPasswordField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := security.HashPassword("correcthorse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	email := "p6-" + time.Now().Format("150405.000000") + "@example.com"
	u, err := s.CreateUser(ctx, email, hash, "Grace", "Hopper")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	body, err := json.Marshal(u.View())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "password") {
		t.Fatalf("user view leaked a password-related key: %s", body)
	}
	if strings.Contains(string(body), hash) {
		t.Fatalf("user view leaked the password digest: %s", body)
	}
}
