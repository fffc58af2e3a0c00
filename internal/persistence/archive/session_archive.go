// Package archive keeps the closing snapshot of every completed session.
package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
)

type SessionArchiveMeta struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Treatment string `json:"treatment"`
	Rounds    int    `json:"rounds"`
	Groups    int    `json:"groups"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveSessionSnapshot copies the final snapshot of a finished session into
// `dataDir/archives/<session_id>/`. archived is false for a session that has
// rounds left to play.
func ArchiveSessionSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.Done || snap.Header.SessionID == "" {
		return "", false, nil
	}

	archiveDir := filepath.Join(dataDir, "archives", snap.Header.SessionID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := SessionArchiveMeta{
		SessionID: snap.Header.SessionID,
		Name:      snap.Name,
		Treatment: snap.Treatment,
		Rounds:    snap.Header.Round,
		Groups:    len(snap.Groups),
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
