package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/metrics"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/archive"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/indexdb"
	persistlog "github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/log"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/persistence/snapshot"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/bots"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/round"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/session"
	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/sessions"
)

func main() {
	var (
		sessionsPath = flag.String("sessions", "./configs/sessions.yaml", "session config path (empty for built-in defaults)")
		paramsPath   = flag.String("params", "", "base params.yaml overriding the session's params (optional)")
		name         = flag.String("session", "", "room or session name (default: default_session)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		seed         = flag.Int64("seed", 0, "grouping seed (0 uses the session's seed)")
		rounds       = flag.Int("rounds", 0, "override num_rounds (0 keeps the config)")
		botKind      = flag.String("bots", "scripted", "decision source: scripted|random")
		mischief     = flag.Float64("mischief", 0, "probability a random bot first sends an invalid answer")
		timeout      = flag.Duration("phase_timeout", 5*time.Second, "per-phase wait before defaulting (0 waits forever)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite round index")
		snapPath     = flag.String("snapshot", "", "resume from this snapshot (optional)")
		metricsAddr  = flag.String("metrics_addr", "", "serve /metrics on this address while running (optional)")
		jsonOut      = flag.Bool("json", false, "print final results as JSON")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		logger.Printf("metrics on http://%s/metrics", addr)
	}

	cfg := session.Config{
		PhaseTimeout: *timeout,
		Logger:       logger,
		Metrics:      m,
	}

	var (
		s   *session.Session
		err error
	)
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		s, err = session.Restore(cfg, snap)
		if err != nil {
			logger.Fatalf("restore: %v", err)
		}
		logger.Printf("resumed session=%s next_round=%d from %s", s.ID(), s.NextRound(), filepath.Base(*snapPath))
	} else {
		spec, players, err := resolveSession(*sessionsPath, *paramsPath, *name)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		if *rounds > 0 {
			spec.Params.NumRounds = *rounds
		}
		cfg.Name = spec.Name
		cfg.Params = spec.Params
		cfg.Players = players
		cfg.Seed = spec.Seed
		if *seed != 0 {
			cfg.Seed = *seed
		}
		s, err = session.New(cfg)
		if err != nil {
			logger.Fatalf("session: %v", err)
		}
		logger.Printf("session=%s name=%s treatment=%s players=%d groups=%d rounds=%d",
			s.ID(), spec.Name, s.Params().Treatment(), len(players), len(s.Groups()), s.Params().NumRounds)
	}

	p := s.Params()
	sessionDir := filepath.Join(*dataDir, "sessions", s.ID())
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		logger.Fatalf("mkdir: %v", err)
	}

	roundLog := persistlog.NewRoundLogger(sessionDir)
	defer roundLog.Close()
	recorders := []session.Recorder{roundLog}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		idx.RecordSession(s.ID(), s.Name(), p, len(s.Groups())*p.PlayersPerGroup)
		recorders = append(recorders, idx)
	}
	s.SetRecorders(recorders...)

	src, err := newSource(*botKind, p, cfg.Seed, *mischief)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	var lastSnap string
	for !s.Done() {
		if _, err := s.PlayRound(ctx, src); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Printf("interrupted before round %d sealed", s.NextRound())
				break
			}
			logger.Fatalf("round %d: %v", s.NextRound(), err)
		}
		snap := s.Snapshot()
		path := filepath.Join(sessionDir, "snapshots", strconv.Itoa(snap.Header.Round)+".snap.zst")
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot: %v", err)
			continue
		}
		lastSnap = path
		if dst, ok, err := archive.ArchiveSessionSnapshot(*dataDir, path, snap); err != nil {
			logger.Printf("archive: %v", err)
		} else if ok {
			logger.Printf("archived final snapshot to %s", dst)
		}
	}

	if !s.Done() {
		if lastSnap == "" {
			lastSnap = latestSnapshot(sessionDir)
		}
		logger.Printf("session incomplete; resume with -snapshot %s", lastSnap)
		return
	}

	results := s.FinalResults()
	if idx != nil {
		idx.RecordFinals(s.ID(), results)
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := idx.Flush(flushCtx); err != nil {
			logger.Printf("index flush: %v", err)
		}
		flushCancel()
		if st := idx.Stats(); st.DropRoundTotal+st.DropSessionTotal+st.DropFinalTotal > 0 {
			logger.Printf("index dropped writes: %+v", st)
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}
	printResults(results)
}

func resolveSession(sessionsPath, paramsPath, name string) (sessions.SessionSpec, []round.PlayerID, error) {
	cfg, err := sessions.Load(sessionsPath)
	if err != nil {
		return sessions.SessionSpec{}, nil, fmt.Errorf("load sessions: %w", err)
	}
	spec, err := cfg.Resolve(name)
	if err != nil {
		return spec, nil, err
	}
	if paramsPath != "" {
		base, err := params.Load(paramsPath)
		if err != nil {
			return spec, nil, fmt.Errorf("load params: %w", err)
		}
		if spec.Params, err = base.WithTreatment(spec.Treatment); err != nil {
			return spec, nil, err
		}
	}

	var labels []string
	if room, ok := cfg.Room(name); ok && room.ParticipantLabelFile != "" {
		labels, err = sessions.ReadLabels(filepath.Dir(sessionsPath), room.ParticipantLabelFile)
		if err != nil {
			return spec, nil, fmt.Errorf("room %s labels: %w", room.Name, err)
		}
	}
	n := spec.NumParticipants
	if len(labels) > 0 {
		n = len(labels)
	}
	players := make([]round.PlayerID, 0, n)
	for i := 0; i < n; i++ {
		if i < len(labels) {
			players = append(players, round.PlayerID(labels[i]))
			continue
		}
		players = append(players, round.PlayerID("P"+strconv.Itoa(i+1)))
	}
	return spec, players, nil
}

func newSource(kind string, p params.Params, seed int64, mischief float64) (session.DecisionSource, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "scripted":
		return bots.NewScripted(p), nil
	case "random":
		b := bots.NewRandom(p, seed)
		b.Mischief = mischief
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bots %q (want scripted|random)", kind)
	}
}

func printResults(results []session.FinalResult) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tGROUP\tROUNDS\tCONTRIB\tSENT\tRECEIVED\tPAYOFF\tAVG\tPOWER\tPAYMENT")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.0f\n",
			r.Player, r.GroupID, r.Rounds, r.TotalContribution, r.TotalPointsSent, r.TotalPointsReceived,
			r.TotalPayoff, r.AveragePayoff, r.FinalPower, r.Payment)
	}
	_ = tw.Flush()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(sessionDir string) string {
	dir := filepath.Join(sessionDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	bestRound := -1
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		r, err := strconv.Atoi(strings.TrimSuffix(name, ".snap.zst"))
		if err != nil {
			continue
		}
		if r > bestRound {
			bestRound = r
			best = filepath.Join(dir, name)
		}
	}
	return best
}
