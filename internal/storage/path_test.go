package storage

import "testing"

func TestBuildSnapshotPath(t *testing.T) {
	key, err := BuildSnapshotPath("chinook")
	if err != nil {
		t.Fatalf("BuildSnapshotPath() error = %v", err)
	}
	if key != "nouns/chinook.parquet" {
		t.Fatalf("BuildSnapshotPath() = %q", key)
	}
}

func TestBuildSnapshotPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildSnapshotPath("../oops"); err == nil {
		t.Fatal("expected invalid component error")
	}
	if _, err := BuildSnapshotPath(""); err == nil {
		t.Fatal("expected invalid component error")
	}
}
