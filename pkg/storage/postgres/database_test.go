package postgres_test

import (
	"testing"

	"odinwatch/pkg/storage/postgres"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	cfg := testConfig(t, "odinwatch_create_test")

	if err := postgres.CreateDatabase(cfg); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	// second call finds the existing database
	if err := postgres.CreateDatabase(cfg); err != nil {
		t.Fatalf("create existing database: %v", err)
	}
}
