package testutil

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"

	"github.com/target/runboard/internal/migrate"
)

// TestDBConfig locates the Postgres instance used by the postgres job store tests.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432, the local test
// database from the compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "runboard"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "runboard"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "runboard"),
		SSLMode:  getEnvOrDefault("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a postgres URL.
func (c TestDBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// SetupTestDB connects to the test database, applies the job store migrations, and empties
// job_records. The test is skipped when the database is unreachable.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN())
	if err != nil {
		skipOrFail(t, requireDB(), "test database not available:", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		skipOrFail(t, requireDB(), "test database not available (docker compose --profile test up -d):", pingErr)
		return nil
	}

	if _, migrateErr := migrate.Run(ctx, db); migrateErr != nil {
		_ = db.Close()
		t.Fatal("failed to run migrations:", migrateErr)
	}
	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes every job record and resets the id sequence.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE job_records RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to truncate job_records: %v", err)
	}
}

// TeardownTestDB empties the table and closes the connection.
func TeardownTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	CleanupTestDB(t, db)
	if err := db.Close(); err != nil {
		t.Fatal("failed to close database:", err)
	}
}

// WithTestDB runs fn against a freshly emptied test database.
func WithTestDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	db := SetupTestDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// CountJobsByStatus returns the number of job_records rows per status column value.
func CountJobsByStatus(t TestingTB, db *sql.DB) map[string]int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT status, count(*) FROM job_records GROUP BY status`)
	if err != nil {
		t.Fatalf("failed to count jobs by status: %v", err)
	}
	defer func() {
		if rerr := rows.Close(); rerr != nil {
			t.Logf("warning: failed to close status rows: %v", rerr)
		}
	}()

	counts := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if scanErr := rows.Scan(&status, &n); scanErr != nil {
			t.Fatalf("failed to scan status count: %v", scanErr)
		}
		counts[status] = n
	}
	if iterErr := rows.Err(); iterErr != nil {
		t.Fatalf("failed to iterate status counts: %v", iterErr)
	}
	return counts
}
