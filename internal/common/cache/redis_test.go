package cache_test

import (
	"context"
	"testing"
	"time"

	"codejudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestGetMissingReturnsEmpty(t *testing.T) {
	rc, _ := newTestCache(t)
	value, err := rc.Get(context.Background(), "missing")
	if err != nil || value != "" {
		t.Fatalf("expected empty value, got %q, %v", value, err)
	}
}

func TestIncrWithTTL(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := rc.IncrWithTTL(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
	if ttl := mr.TTL("counter"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	n, err := rc.IncrWithTTL(ctx, "counter", time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("expected fresh window, got %d, %v", n, err)
	}
}

func TestGetWithCachedCachesEmpty(t *testing.T) {
	rc, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return nil, nil
	}
	for i := 0; i < 2; i++ {
		got, err := cache.GetWithCached(ctx, rc, "list", time.Minute, time.Second,
			func(v []string) bool { return len(v) == 0 },
			func(v []string) string { return "" },
			func(string) ([]string, error) { return nil, nil },
			fetch,
		)
		if err != nil || got != nil {
			t.Fatalf("unexpected result %v, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 20; i++ {
		got := cache.JitterTTL(ttl)
		if got > ttl || got < 9*time.Minute {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if cache.JitterTTL(0) != 0 {
		t.Fatalf("expected zero ttl unchanged")
	}
}
