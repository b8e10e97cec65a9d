package sqlitemigrate

import (
	"context"
	"strings"
	"testing"
)

func TestVerifyPassesWhenSchemaComplete(t *testing.T) {
	db := openInMemoryDB(t)
	if _, err := db.Exec("CREATE TABLE posts(id TEXT PRIMARY KEY, content TEXT NOT NULL, likes_count INTEGER NOT NULL DEFAULT 0);"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	reqs := Requirements{Tables: map[string][]string{
		"posts": {"id", "content", "likes_count"},
	}}
	if err := Verify(context.Background(), db, reqs); err != nil {
		t.Fatalf("verify complete schema: %v", err)
	}
}

func TestVerifyNamesMissingTable(t *testing.T) {
	db := openInMemoryDB(t)

	reqs := Requirements{Tables: map[string][]string{
		"runtime_locks": {"name"},
	}}
	err := Verify(context.Background(), db, reqs)
	if err == nil {
		t.Fatal("expected missing table error")
	}
	if !strings.Contains(err.Error(), "runtime_locks") {
		t.Fatalf("error %q does not name the missing table", err)
	}
}

func TestVerifyNamesMissingColumn(t *testing.T) {
	db := openInMemoryDB(t)
	if _, err := db.Exec("CREATE TABLE posts(id TEXT PRIMARY KEY);"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	reqs := Requirements{Tables: map[string][]string{
		"posts": {"id", "likes_count"},
	}}
	err := Verify(context.Background(), db, reqs)
	if err == nil {
		t.Fatal("expected missing column error")
	}
	if !strings.Contains(err.Error(), "posts.likes_count") {
		t.Fatalf("error %q does not name the missing column", err)
	}
}
