package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
)

// RoundFiles lists the round log files of a session directory in write order.
func RoundFiles(sessionDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(sessionDir, "rounds", "rounds-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	// Hour stamps sort lexically.
	sort.Strings(files)
	return files, nil
}

// ReadRounds decodes every entry of the round log files of sessionDir and
// calls fn for each in order. Iteration stops at the first error.
func ReadRounds(sessionDir string, fn func(round.LogEntry) error) error {
	files, err := RoundFiles(sessionDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no round logs under %s", sessionDir)
	}
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func readFile(path string, fn func(round.LogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e round.LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
