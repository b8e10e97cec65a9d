package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"

	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyRecordsApplied(t *testing.T) {
	db := openInMemoryDB(t)

	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);"),
		},
	}

	if err := Apply(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	count, err := AppliedCount(context.Background(), db)
	if err != nil {
		t.Fatalf("applied count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 migration row, got %d", count)
	}

	if !testTableExists(t, db, "items") {
		t.Fatal("expected applied table to exist")
	}
}

func TestApplySkipsAlreadyApplied(t *testing.T) {
	db := openInMemoryDB(t)

	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);"),
		},
	}
	if err := Apply(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("apply initial migrations: %v", err)
	}
	if err := Apply(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("re-apply migrations should be idempotent: %v", err)
	}

	count, err := AppliedCount(context.Background(), db)
	if err != nil {
		t.Fatalf("applied count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single migration row after replay, got %d", count)
	}
}

func TestApplyDoesNotRecordFailedMigration(t *testing.T) {
	db := openInMemoryDB(t)

	bad := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREAT table things(id INT);"),
		},
	}
	if err := Apply(context.Background(), db, bad, ""); err == nil {
		t.Fatalf("expected bad migration to fail")
	}

	count, err := AppliedCount(context.Background(), db)
	if err != nil {
		t.Fatalf("applied count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected failed migration to stay unrecorded, got %d rows", count)
	}

	good := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE things(id INTEGER PRIMARY KEY);"),
		},
	}
	if err := Apply(context.Background(), db, good, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}

	count, err = AppliedCount(context.Background(), db)
	if err != nil {
		t.Fatalf("applied count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fixed migration to be recorded, got %d rows", count)
	}
}

func TestApplyRespectsMigrationRoot(t *testing.T) {
	db := openInMemoryDB(t)

	migrations := fstest.MapFS{
		"scripts/001_posts.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE posts(id TEXT PRIMARY KEY);"),
		},
	}

	if err := Apply(context.Background(), db, migrations, "scripts"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}

	key := queryString(t, db, "SELECT name FROM schema_migrations LIMIT 1")
	if key != "scripts/001_posts.sql" {
		t.Fatalf("expected migration key with root path, got %q", key)
	}

	if !testTableExists(t, db, "posts") {
		t.Fatal("expected migrated table in root-based migration")
	}
}

func TestApplyInvokesHooksInOrder(t *testing.T) {
	db := openInMemoryDB(t)

	migrations := fstest.MapFS{
		"001_a.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE a(id TEXT PRIMARY KEY);"),
		},
		"002_b.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE b(id TEXT PRIMARY KEY);"),
		},
	}

	var applied []string
	err := Apply(context.Background(), db, migrations, "",
		WithOnApplied(func(name string) { applied = append(applied, name) }),
		WithLogf(func(string, ...any) {}),
	)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if len(applied) != 2 || applied[0] != "001_a.sql" || applied[1] != "002_b.sql" {
		t.Fatalf("applied hooks = %v, want ordered both scripts", applied)
	}

	// Replay must not re-fire hooks.
	applied = nil
	err = Apply(context.Background(), db, migrations, "",
		WithOnApplied(func(name string) { applied = append(applied, name) }),
	)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no hooks on replay, got %v", applied)
	}
}

func TestApplyToleratesAlreadyExistingObjects(t *testing.T) {
	db := openInMemoryDB(t)

	if _, err := db.Exec("CREATE TABLE items(id TEXT PRIMARY KEY);"); err != nil {
		t.Fatalf("pre-create table: %v", err)
	}

	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);"),
		},
	}
	if err := Apply(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("apply against pre-existing schema: %v", err)
	}

	count, err := AppliedCount(context.Background(), db)
	if err != nil {
		t.Fatalf("applied count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected migration recorded despite existing table, got %d", count)
	}
}

func TestExtractUpSections(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE x(id TEXT);\n-- +migrate Down\nDROP TABLE x;"
	up := ExtractUp(content)
	if up != "\nCREATE TABLE x(id TEXT);\n" {
		t.Fatalf("unexpected up section: %q", up)
	}

	plain := "CREATE TABLE y(id TEXT);"
	if ExtractUp(plain) != plain {
		t.Fatal("expected whole content when no markers present")
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func queryString(t *testing.T, db *sql.DB, query string) string {
	t.Helper()
	var value string
	row := db.QueryRow(query)
	if err := row.Scan(&value); err != nil {
		t.Fatalf("query string value: %v", err)
	}
	return value
}

func testTableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	query := "SELECT name FROM sqlite_master WHERE type='table' AND name = ?"
	var name string
	row := db.QueryRow(query, tableName)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false
		}
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}
