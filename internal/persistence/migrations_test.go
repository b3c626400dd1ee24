package persistence

import (
	"strings"
	"testing"
)

func TestEmbeddedMigrationsCoverTicketTables(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 2 || names[0] != "001_init.sql" || names[1] != "002_ticket_reviews.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}
	content, err := migrationFiles.ReadFile("migrations/" + names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"users", "tickets", "ticket_status_history", "ticket_work_logs"} {
		if !strings.Contains(string(content), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("migration does not create %s", table)
		}
	}
}

func TestReviewMigrationCreatesTable(t *testing.T) {
	content, err := migrationFiles.ReadFile("migrations/002_ticket_reviews.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), "CREATE TABLE IF NOT EXISTS ticket_reviews (") {
		t.Fatalf("migration does not create ticket_reviews")
	}
}
