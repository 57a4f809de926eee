package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
)

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:         host,
		Port:         5432,
		User:         "docqa",
		Password:     "docqa_pass",
		DBName:       "docqa_test",
		SSLMode:      "disable",
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
