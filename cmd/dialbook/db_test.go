package main

import (
	"strings"
	"testing"
)

func TestDBCmd_Help(t *testing.T) {
	out, err := run(t, "db", "--help")
	if err != nil {
		t.Fatalf("db --help failed: %v", err)
	}
	if !strings.Contains(out, "Database management") {
		t.Errorf("expected help to mention 'Database management', got: %s", out)
	}
	if !strings.Contains(out, "migrate") {
		t.Errorf("expected help to list 'migrate' subcommand, got: %s", out)
	}
}

func TestDBMigrateCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "db", "migrate", "--config", "/nonexistent/dialbook.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDBMigrateCmd(t *testing.T) {
	out, err := run(t, "db", "migrate", "-c", writeTestConfig(t))
	if err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}
	if !strings.Contains(out, "Connected to sqlite database") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "Migrated 2 tables") {
		t.Errorf("expected 'Migrated 2 tables', got: %s", out)
	}
}
