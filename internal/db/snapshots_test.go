package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestLatestSnapshotEmptyStore(t *testing.T) {
	d := openTestDB(t)

	snap, err := LatestSnapshot(d)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap.ID != 0 || snap.Data != EmptySnapshot {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestSaveSnapshotReturnsNewest(t *testing.T) {
	d := openTestDB(t)

	for _, data := range []string{`[1]`, `[2]`, `[3]`} {
		if _, err := SaveSnapshot(d, data, 0); err != nil {
			t.Fatalf("SaveSnapshot(%s): %v", data, err)
		}
	}

	snap, err := LatestSnapshot(d)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap.Data != `[3]` {
		t.Errorf("expected newest snapshot, got %q", snap.Data)
	}
}

func TestSaveSnapshotPrunes(t *testing.T) {
	d := openTestDB(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := SaveSnapshot(d, "[]", 2)
		if err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
		ids = append(ids, id)
	}

	list, err := ListSnapshots(d)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots after pruning, got %d", len(list))
	}
	if list[0].ID != ids[4] || list[1].ID != ids[3] {
		t.Errorf("expected newest first, got %+v", list)
	}
	if list[0].Data != "" {
		t.Error("ListSnapshots should not load data")
	}

	old, err := GetSnapshot(d, ids[0])
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if old != nil {
		t.Error("pruned snapshot still present")
	}

	kept, err := GetSnapshot(d, ids[4])
	if err != nil || kept == nil {
		t.Fatalf("GetSnapshot kept: %v %v", kept, err)
	}
}
