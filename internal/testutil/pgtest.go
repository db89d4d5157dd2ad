// Package testutil provides helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

// PGTest opens the database named by POSTGRES_URL and returns the handle.
// Tests calling it are skipped when the variable is unset, so the Postgres
// suites only run where a database is provisioned.
func PGTest(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping Postgres test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// Truncate empties the given tables, ignoring ones that do not exist yet.
func Truncate(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf("TRUNCATE %s", strings.Join(tables, ", ")))
	if err != nil && !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("truncate: %v", err)
	}
}
