package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func attemptClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestAllowAttempt_EnforcesLimit(t *testing.T) {
	rdb, _ := attemptClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := AllowAttempt(ctx, rdb, "login:1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("attempt %d should be within limit", i)
		}
	}

	ok, err := AllowAttempt(ctx, rdb, "login:1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if ok {
		t.Fatalf("fourth attempt must be rejected")
	}
}

func TestAllowAttempt_KeysAreIndependent(t *testing.T) {
	rdb, _ := attemptClient(t)
	ctx := context.Background()

	if ok, _ := AllowAttempt(ctx, rdb, "login:a", 1, time.Minute); !ok {
		t.Fatalf("first key should be allowed")
	}
	if ok, _ := AllowAttempt(ctx, rdb, "login:a", 1, time.Minute); ok {
		t.Fatalf("first key should now be limited")
	}
	if ok, _ := AllowAttempt(ctx, rdb, "login:b", 1, time.Minute); !ok {
		t.Fatalf("other keys must not be affected")
	}
}

func TestAllowAttempt_WindowResets(t *testing.T) {
	rdb, mr := attemptClient(t)
	ctx := context.Background()

	if ok, _ := AllowAttempt(ctx, rdb, "login:x", 1, time.Minute); !ok {
		t.Fatalf("first attempt allowed")
	}
	if ok, _ := AllowAttempt(ctx, rdb, "login:x", 1, time.Minute); ok {
		t.Fatalf("second attempt rejected")
	}

	mr.FastForward(time.Minute + time.Second)

	if ok, err := AllowAttempt(ctx, rdb, "login:x", 1, time.Minute); err != nil || !ok {
		t.Fatalf("counter should reset after the window, ok=%v err=%v", ok, err)
	}
}

func TestAllowAttempt_Validation(t *testing.T) {
	rdb, _ := attemptClient(t)
	ctx := context.Background()

	if _, err := AllowAttempt(ctx, nil, "k", 1, time.Minute); err == nil {
		t.Fatalf("nil client must error")
	}
	if _, err := AllowAttempt(ctx, rdb, "", 1, time.Minute); err == nil {
		t.Fatalf("empty key must error")
	}
	if _, err := AllowAttempt(ctx, rdb, "k", 0, time.Minute); err == nil {
		t.Fatalf("zero limit must error")
	}
	if _, err := AllowAttempt(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("zero window must error")
	}
}
