package dedup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMarkPersistsAndSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed_mentions.json")

	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, id := range []string{"100", "200"} {
		added, err := store.Mark(id)
		if err != nil || !added {
			t.Fatalf("Mark(%s) = %v, %v", id, added, err)
		}
	}
	added, err := store.Mark("100")
	if err != nil {
		t.Fatalf("second Mark failed: %v", err)
	}
	if added {
		t.Fatal("expected duplicate mark to report false")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		t.Fatalf("store is not a JSON array: %v", err)
	}
	if len(ids) != 2 || ids[0] != "100" || ids[1] != "200" {
		t.Fatalf("unexpected persisted ids: %v", ids)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.Seen("100") || !reopened.Seen("200") {
		t.Fatal("expected ids to survive reopen")
	}
	if reopened.Seen("300") {
		t.Fatal("unexpected id reported seen")
	}
	if reopened.Count() != 2 {
		t.Fatalf("unexpected count %d", reopened.Count())
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "missing.json"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d", store.Count())
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Fatal("expected corrupt file to fail")
	}
}

func TestOpenDropsBlankAndDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	if err := os.WriteFile(path, []byte(`["a", "", "b", "a"]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ids := store.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestMarkRollsBackOnPersistFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := Open(filepath.Join(dir, "ids.json"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// Replace the parent directory with a regular file so MkdirAll fails.
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, err := store.Mark("x1"); err == nil {
		t.Fatal("expected persist failure")
	}
	if store.Seen("x1") || store.Count() != 0 {
		t.Fatal("expected rollback after persist failure")
	}
}

func TestMarkRejectsEmptyID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ids.json"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.Mark("  "); err == nil {
		t.Fatal("expected empty id error")
	}
}
