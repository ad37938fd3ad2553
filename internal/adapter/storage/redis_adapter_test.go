package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/rowstore/internal/config"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client, err := OpenRedis(context.Background(), config.RedisConfig{Address: addr, PoolSize: 10, DialTimeout: time.Second})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisOptions(t *testing.T) {
	if _, err := redisOptions(config.RedisConfig{}); err == nil {
		t.Error("expected error without url or address")
	}

	opts, err := redisOptions(config.RedisConfig{URL: "redis://localhost:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Errorf("unexpected options: addr=%s db=%d pool=%d", opts.Addr, opts.DB, opts.PoolSize)
	}

	opts, err = redisOptions(config.RedisConfig{Address: "cache:6379", DB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 1 {
		t.Errorf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
}

func TestIdempotencyKey(t *testing.T) {
	adapter := NewRedisAdapter(nil)
	if got := adapter.IdempotencyKey("POST|/api/rows", "abc"); got != "rowstore:idempotency:POST|/api/rows:abc" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestGet_Missing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "rowstore:test:missing")

	value, found, err := adapter.Get(ctx, "rowstore:test:missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || value != "" {
		t.Errorf("expected missing key, got found=%v value=%q", found, value)
	}
}

func TestSetNX_FirstWriterWins(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "rowstore:test:setnx"

	client.Del(ctx, key)
	defer client.Del(ctx, key)

	ok, err := adapter.SetNX(ctx, key, "first", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first SetNX to succeed")
	}

	ok, err = adapter.SetNX(ctx, key, "second", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second SetNX to fail")
	}

	value, found, err := adapter.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || value != "first" {
		t.Errorf("expected first value, got found=%v value=%q", found, value)
	}
}

func TestSetNX_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "rowstore:test:concurrent"

	client.Del(ctx, key)
	defer client.Del(ctx, key)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetNX(ctx, key, "v", time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
