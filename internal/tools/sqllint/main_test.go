package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package q\n\nconst cols = `id, status, updated_at`\n\nconst QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect ` + cols + ` from t;`\n")
	writeFile(t, dir, "bad.go", "package q\n\nconst QBare = `select * from generation_jobs`\n\nconst QDup = `--sql 11111111-2222-4333-8444-555555555555\nselect 2;`\n")
	writeFile(t, dir, "bad_test.go", "package q\n\nconst QIgnored = `select 3`\n")

	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %+v", len(violations), violations)
	}
	var missing, dup bool
	for _, v := range violations {
		switch {
		case v.name == "QBare" && strings.Contains(v.message, "missing"):
			missing = true
		case strings.Contains(v.message, "already used"):
			dup = true
		}
	}
	if !missing || !dup {
		t.Fatalf("unexpected violations %+v", violations)
	}
}

func TestLintRepositoryQueries(t *testing.T) {
	violations, err := lint([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("inline queries violate marker rules: %+v", violations)
	}
}
