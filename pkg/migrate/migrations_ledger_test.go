package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRoyaltyLinesMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_royalty_lines.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no royalty lines migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS royalty_lines",
		"FOREIGN KEY (statement_id) REFERENCES royalty_statements(id) ON DELETE CASCADE",
		"FOREIGN KEY (original_line_id) REFERENCES royalty_lines(id)",
		"CHECK (share_bps >= 0 AND share_bps <= 10000)",
		"DROP TABLE IF EXISTS royalty_lines",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestStatementsMigrationEnforcesOnePerCreatorPerRun(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_royalty_statements.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no royalty statements migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "ux_royalty_statements_run_creator ON royalty_statements (run_id, creator_id)") {
		t.Errorf("missing unique index on (run_id, creator_id)")
	}
	if !strings.Contains(content, "FOREIGN KEY (run_id) REFERENCES royalty_runs(id) ON DELETE CASCADE") {
		t.Errorf("missing run foreign key")
	}
}
