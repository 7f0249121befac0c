package preview

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTokenStore(client), mr
}

func testRecord(postID string) *TokenRecord {
	issued := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return &TokenRecord{
		PostID:    postID,
		ExpiresAt: issued.Add(time.Hour),
		Nonce:     "nonce-" + postID,
		IssuedAt:  issued,
	}
}

func TestTokenStore_PutGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("p1")
	if err := store.Put(ctx, "p1", "abcdef123456", rec, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "p1", "abcdef123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Nonce != rec.Nonce || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Errorf("record mismatch: got %+v, want %+v", got, rec)
	}
}

func TestTokenStore_GetMissingIsNilNil(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "p1", "nothere12345")
	if err != nil {
		t.Fatalf("expected missing record to be a clean miss, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
}

func TestTokenStore_TTLEviction(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "p1", "abcdef123456", testRecord("p1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	got, err := store.Get(ctx, "p1", "abcdef123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected record evicted by TTL, got %+v", got)
	}
}

func TestTokenStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "p1", "abcdef123456", testRecord("p1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deleted, err := store.Delete(ctx, "p1", "abcdef123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report a hit")
	}

	deleted, err = store.Delete(ctx, "p1", "abcdef123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report a miss")
	}
}

func TestTokenStore_DeleteAll(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "p1", "aaaaaaaaaaaa", testRecord("p1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Put(ctx, "p1", "bbbbbbbbbbbb", testRecord("p1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Put(ctx, "p2", "cccccccccccc", testRecord("p2"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deleted, err := store.DeleteAll(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected deletions")
	}

	for _, prefix := range []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb"} {
		got, err := store.Get(ctx, "p1", prefix)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected p1 record %s gone, got %+v", prefix, got)
		}
	}

	// Another post's tokens are untouched.
	got, err := store.Get(ctx, "p2", "cccccccccccc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Error("expected p2 record to survive")
	}
}

func TestTokenStore_Scan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "p1", "aaaaaaaaaaaa", testRecord("p1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Put(ctx, "p2", "bbbbbbbbbbbb", testRecord("p2"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[string]string{}
	err := store.Scan(ctx, func(postID, tokenPrefix string, record *TokenRecord) bool {
		seen[postID] = tokenPrefix
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen["p1"] != "aaaaaaaaaaaa" || seen["p2"] != "bbbbbbbbbbbb" {
		t.Errorf("scan missed records: %v", seen)
	}
}
