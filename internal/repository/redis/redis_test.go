package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestDispatchLedger_ClaimOnce(t *testing.T) {
	client, server := newTestRedis(t)
	ledger := NewDispatchLedger(client, "notify", time.Hour)
	ctx := context.Background()

	first, err := ledger.Claim(ctx, "sub-1:approved")
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if !first {
		t.Fatalf("expected first claim to succeed")
	}

	second, err := ledger.Claim(ctx, "sub-1:approved")
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if second {
		t.Fatalf("expected duplicate claim to be refused")
	}

	if ttl := server.TTL("notify:sub-1:approved"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within (0, 1h], got %v", ttl)
	}
}

func TestDispatchLedger_ReleaseAllowsRetry(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewDispatchLedger(client, "notify", 0)
	ctx := context.Background()

	if ok, err := ledger.Claim(ctx, "acc-1:welcome"); err != nil || !ok {
		t.Fatalf("expected claim, got ok=%v err=%v", ok, err)
	}
	if err := ledger.Release(ctx, "acc-1:welcome"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if ok, err := ledger.Claim(ctx, "acc-1:welcome"); err != nil || !ok {
		t.Fatalf("expected claim after release, got ok=%v err=%v", ok, err)
	}
}

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Minute})
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	window := 10 * time.Second

	for _, offset := range []time.Duration{0, 2 * time.Second, 2 * time.Second, 12 * time.Second} {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	reference := base.Add(12 * time.Second)
	if err := repo.TrimWindow(ctx, "login:10.0.0.1", window, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts in window, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:10.0.0.1", window, reference)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok || !oldest.Equal(base.Add(2*time.Second)) {
		t.Fatalf("expected oldest attempt at +2s, got %v (ok=%v)", oldest, ok)
	}

	if ttl := server.TTL("rl:login:10.0.0.1"); ttl <= 0 {
		t.Fatalf("expected key ttl to be set")
	}

	if _, err := repo.CountAttempts(ctx, "login:10.0.0.1", 0, reference); err == nil {
		t.Fatalf("expected error for non-positive window")
	}
}
