package migrations

import (
	"path/filepath"
	"testing"
)

func TestListEmbeddedMigrations(t *testing.T) {
	all, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if all[0].Version != 1 {
		t.Fatalf("expected first version 1, got %d", all[0].Version)
	}
	if got := filepath.Base(all[0].Source); got != "00001_create_message_queue.sql" {
		t.Fatalf("unexpected migration source %s", got)
	}
}

func TestEmbeddedFSContainsQueueTable(t *testing.T) {
	data, err := embedded.ReadFile("sql/00001_create_message_queue.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("migration is empty")
	}
}
