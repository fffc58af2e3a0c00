package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/protocol"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "check":
			checkCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "sessions"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// snapshotCmd prints a snapshot's header and standings as JSON.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("path", "", "snapshot path (.snap.zst)")
	headerOnly := fs.Bool("header", false, "read only the header line")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if *headerOnly {
		h, err := snapshot.ReadHeader(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		_ = enc.Encode(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	_ = enc.Encode(snap)
}

// checkCmd validates protocol messages (one JSON object per file or stdin)
// against the embedded schemas.
func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	_ = fs.Parse(args)

	inputs := fs.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	failed := false
	for _, in := range inputs {
		var (
			b   []byte
			err error
		)
		if in == "-" {
			b, err = io.ReadAll(os.Stdin)
		} else {
			b, err = os.ReadFile(in)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			failed = true
			continue
		}
		base, err := protocol.Validate(b)
		if err != nil {
			fmt.Printf("%s: invalid: %v\n", in, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok type=%s version=%s\n", in, base.Type, base.ProtocolVersion)
	}
	if failed {
		os.Exit(1)
	}
}
