package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
)

func TestArchiveSessionSnapshot_CopiesFinalSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sessions", "s1", "snapshots", "10.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: 1, SessionID: "s1", Round: 10},
		Name:      "pggp_fixed",
		Treatment: "fixed",
		Seed:      42,
		NextRound: 11,
		Done:      true,
		Groups:    []snapshot.GroupV1{{ID: "G1"}},
	}

	archivedPath, ok, err := ArchiveSessionSnapshot(dir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok {
		t.Fatalf("expected archived=true")
	}
	if archivedPath != filepath.Join(dir, "archives", "s1", "10.snap.zst") {
		t.Fatalf("archived path=%s", archivedPath)
	}

	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}
	var meta SessionArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Rounds != 10 || meta.Groups != 1 || meta.Treatment != "fixed" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveSessionSnapshot_SkipsUnfinished(t *testing.T) {
	snap := snapshot.SnapshotV1{Header: snapshot.Header{SessionID: "s1", Round: 3}, NextRound: 4}
	_, ok, err := ArchiveSessionSnapshot(t.TempDir(), "unused", snap)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
