package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when CHATROOM_DATABASE_URL is set.

func TestPostgresStore_SaveLoadClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustTestPool(ctx, t)
	defer pool.Close()

	st := NewPostgresStore(pool, "it-"+ulid.Make().String())
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = st.Clear(context.Background()) })

	exerciseStore(t, st)
}

func TestPostgresStore_ConcurrentSavesNeverMix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustTestPool(ctx, t)
	defer pool.Close()

	st := NewPostgresStore(pool, "it-"+ulid.Make().String())
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = st.Clear(context.Background()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = st.Save(ctx, TokenPair{
				AccessToken:  fmt.Sprintf("a-%d", i),
				RefreshToken: fmt.Sprintf("r-%d", i),
			})
		}(i)
	}
	wg.Wait()

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var n int
	if _, err := fmt.Sscanf(got.AccessToken, "a-%d", &n); err != nil {
		t.Fatalf("unexpected access token %q", got.AccessToken)
	}
	if got.RefreshToken != fmt.Sprintf("r-%d", n) {
		t.Fatalf("mixed pair: %+v", got)
	}
}

func mustTestPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("CHATROOM_DATABASE_URL")
	if dbURL == "" {
		t.Skip("CHATROOM_DATABASE_URL is not set; skipping Postgres integration test")
	}

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pool, err := pgxpool.New(cctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		if os.Getenv("CI") == "" {
			t.Skipf("postgres unreachable: %v", err)
		}
		t.Fatalf("postgres ping: %v", err)
	}
	return pool
}
