package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homecare.db")
	db, err := New(context.Background(), "sqlite", path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(context.Background(), "postgres", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
