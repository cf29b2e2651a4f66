package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTestRedisDB = 15

// TestRedisAddr returns REDIS_ADDR when set, otherwise TEST_REDIS_ADDR, otherwise the local test
// instance on port 56379.
func TestRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return getEnvOrDefault("TEST_REDIS_ADDR", "localhost:56379")
}

// testRedisDB reads TEST_REDIS_DB, falling back to a DB the dev stack does not use.
func testRedisDB(t TestingTB) int {
	raw := os.Getenv("TEST_REDIS_DB")
	if raw == "" {
		return defaultTestRedisDB
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		t.Logf("invalid TEST_REDIS_DB=%q; using %d", raw, defaultTestRedisDB)
		return defaultTestRedisDB
	}
	return n
}

// SetupTestRedis connects to the test Redis, flushes its DB, and returns the client. The test is
// skipped when Redis is unreachable. Callers close the client.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr := TestRedisAddr()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: testRedisDB(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		skipOrFail(t, requireRedis(), fmt.Sprintf("redis not available at %s: %v", addr, err))
		return nil
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("failed to flush test redis db: %v", err)
	}
	return client
}
