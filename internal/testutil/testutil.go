package testutil

import (
	"os"
	"strings"
	"time"
)

// TestingTB is the subset of testing.TB the helpers need, so they work from both tests and
// benchmarks.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// cleanuper is implemented by *testing.T and *testing.B.
type cleanuper interface {
	Cleanup(func())
}

func registerCleanup(t TestingTB, fn func()) bool {
	c, ok := any(t).(cleanuper)
	if ok {
		c.Cleanup(fn)
	}
	return ok
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// Infra-backed tests skip when the backing service is unreachable unless one of these is set,
// in which case they fail instead.
func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// skipOrFail skips the test, or fails it when the infrastructure is required.
func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

// FixedTimeFunc returns a clock that always reports ts.
func FixedTimeFunc(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// TestTime is the reference instant used across job record tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// RunConcurrent runs every fn in its own goroutine and returns their errors in order.
func RunConcurrent(funcs ...func() error) []error {
	errs := make([]error, len(funcs))
	done := make(chan struct{}, len(funcs))
	for i, fn := range funcs {
		go func() {
			errs[i] = fn()
			done <- struct{}{}
		}()
	}
	for range funcs {
		<-done
	}
	return errs
}
