package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// validRoles must match the role strings the auth package uses.
var validRoles = map[string]bool{
	"admin":   true,
	"teacher": true,
	"student": true,
}

// validStatuses must match the account status strings the auth package uses.
var validStatuses = map[string]bool{
	"pending": true,
	"active":  true,
}

// migrationsDir returns the absolute path to migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_DefaultRoleAndStatusValues scans the .up.sql files for
// DEFAULT 'value' clauses on the users table's role and status columns and
// checks them against the values the application actually writes. A typo
// here would only surface as rejected logins in production.
func TestMigrations_DefaultRoleAndStatusValues(t *testing.T) {
	dir := migrationsDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}

	rolePattern := regexp.MustCompile(`role\s+VARCHAR\(\d+\)\s+NOT NULL\s+DEFAULT\s+'([^']+)'`)
	statusPattern := regexp.MustCompile(`status\s+VARCHAR\(\d+\)\s+NOT NULL\s+DEFAULT\s+'([^']+)'`)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		content := string(data)
		if !strings.Contains(content, "CREATE TABLE users") {
			continue
		}

		for _, match := range rolePattern.FindAllStringSubmatch(content, -1) {
			if !validRoles[match[1]] {
				t.Errorf("%s: invalid default role %q; valid values: admin, teacher, student",
					filepath.Base(f), match[1])
			}
		}
		for _, match := range statusPattern.FindAllStringSubmatch(content, -1) {
			if !validStatuses[match[1]] {
				t.Errorf("%s: invalid default status %q; valid values: pending, active",
					filepath.Base(f), match[1])
			}
		}
	}
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_TokenHashColumnWidth checks that the reset token digest
// column fits a hex-encoded SHA-256 exactly.
func TestMigrations_TokenHashColumnWidth(t *testing.T) {
	dir := migrationsDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}

	pattern := regexp.MustCompile(`token_hash\s+CHAR\((\d+)\)`)
	found := false
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		for _, match := range pattern.FindAllStringSubmatch(string(data), -1) {
			found = true
			if match[1] != "64" {
				t.Errorf("%s: token_hash must be CHAR(64) for a hex SHA-256, got CHAR(%s)",
					filepath.Base(f), match[1])
			}
		}
	}
	if !found {
		t.Error("no token_hash column found in migrations")
	}
}
