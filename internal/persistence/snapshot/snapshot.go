package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	// Round is the last sealed round, 0 before the first one.
	Round int `json:"round"`
}

// SnapshotV1 is everything needed to resume a session at a round boundary.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Name      string        `json:"name"`
	Treatment string        `json:"treatment"`
	Seed      int64         `json:"seed"`
	Params    params.Params `json:"params"`

	NextRound int  `json:"next_round"`
	Done      bool `json:"done"`

	Groups  []GroupV1            `json:"groups"`
	Carries []round.Carry        `json:"carries,omitempty"`
	History []round.PlayerRecord `json:"history,omitempty"`
}

type GroupV1 struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header is repeated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
