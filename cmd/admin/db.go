package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index.sqlite)")
	sessionID := fs.String("session", "", "session id (required except for sessions)")
	roundNo := fs.Int("round", 0, "round filter (rounds, raw)")
	groupID := fs.String("group", "", "group id (raw)")
	playerID := fs.String("player", "", "player id (history)")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.sqlite")
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if q != "sessions" && strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}

	var out any
	switch q {
	case "sessions":
		out, err = r.Sessions(ctx)
	case "session":
		out, err = r.Session(ctx, *sessionID)
	case "rounds":
		out, err = r.Rounds(ctx, *sessionID, *roundNo)
	case "history":
		if *playerID == "" {
			fmt.Fprintln(os.Stderr, "missing -player")
			os.Exit(2)
		}
		out, err = r.PlayerHistory(ctx, *sessionID, *playerID)
	case "finals":
		out, err = r.Finals(ctx, *sessionID)
	case "clamps":
		out, err = r.Clamps(ctx, *sessionID)
	case "raw":
		if *groupID == "" || *roundNo <= 0 {
			fmt.Fprintln(os.Stderr, "missing -group or -round")
			os.Exit(2)
		}
		var raw []byte
		raw, err = r.RawRound(ctx, *sessionID, *groupID, *roundNo)
		if err == nil {
			out = json.RawMessage(raw)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "known: sessions session rounds history finals clamps raw")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSONLines(out)
}

// printJSONLines writes slices one element per line and anything else as a
// single line.
func printJSONLines(v any) {
	enc := json.NewEncoder(os.Stdout)
	switch rows := v.(type) {
	case []indexdb.SessionRow:
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case []indexdb.RoundRow:
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case []indexdb.PlayerRoundRow:
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case []indexdb.FinalRow:
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	default:
		_ = enc.Encode(v)
	}
}
