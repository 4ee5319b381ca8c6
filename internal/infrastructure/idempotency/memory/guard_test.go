package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryClaimFirstWinsConcurrently(t *testing.T) {
	guard := NewGuard(time.Hour)

	const callers = 32
	var wins int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			claimed, err := guard.TryClaim(context.Background(), "msg-1")
			if err != nil {
				t.Errorf("TryClaim() error = %v", err)
				return
			}
			if claimed {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestTryClaimDistinctMessages(t *testing.T) {
	guard := NewGuard(time.Hour)

	for _, id := range []string{"a", "b", "c"} {
		claimed, err := guard.TryClaim(context.Background(), id)
		if err != nil || !claimed {
			t.Fatalf("TryClaim(%s) = (%v, %v), want claimed", id, claimed, err)
		}
	}
}

func TestTryClaimExpiredClaimIsTakenOver(t *testing.T) {
	guard := NewGuard(time.Minute)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }

	claimed, _ := guard.TryClaim(context.Background(), "msg-1")
	if !claimed {
		t.Fatal("first claim must win")
	}

	current = current.Add(30 * time.Second)
	if claimed, _ = guard.TryClaim(context.Background(), "msg-1"); claimed {
		t.Fatal("claim within TTL must be rejected")
	}

	current = current.Add(31 * time.Second)
	if claimed, _ = guard.TryClaim(context.Background(), "msg-1"); !claimed {
		t.Fatal("expired claim must be taken over")
	}
}

func TestReleaseReopensClaim(t *testing.T) {
	guard := NewGuard(time.Hour)

	if claimed, _ := guard.TryClaim(context.Background(), "msg-1"); !claimed {
		t.Fatal("first claim must win")
	}
	if err := guard.Release(context.Background(), "msg-1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if claimed, _ := guard.TryClaim(context.Background(), "msg-1"); !claimed {
		t.Fatal("released claim must be claimable again")
	}
}

func TestPurgeExpired(t *testing.T) {
	guard := NewGuard(time.Minute)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }

	_, _ = guard.TryClaim(context.Background(), "old")
	current = current.Add(2 * time.Minute)
	_, _ = guard.TryClaim(context.Background(), "fresh")

	removed, err := guard.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed claim, got %d", removed)
	}
	if claimed, _ := guard.TryClaim(context.Background(), "fresh"); claimed {
		t.Fatal("fresh claim must survive the purge")
	}
}
