package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
)

func TestLoad_SessionsYAML(t *testing.T) {
	cfg, err := Load("../../../configs/sessions.yaml")
	if err != nil {
		t.Fatalf("load sessions.yaml: %v", err)
	}
	if len(cfg.Sessions) != 3 || len(cfg.Rooms) != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	fixed, err := cfg.Resolve("fixed")
	if err != nil {
		t.Fatalf("resolve fixed room: %v", err)
	}
	if fixed.Name != "pggp_fixed" || fixed.Params.PowerTransferAllowed {
		t.Fatalf("fixed room should run the fixed session: %+v", fixed)
	}
	if fixed.Params.PunishmentStartRound != 2 {
		t.Fatalf("fixed session punishes from round 2, got %d", fixed.Params.PunishmentStartRound)
	}
	// Options not listed fall back to the defaults.
	if fixed.Params.Endowment != 100 || fixed.Params.ContributionMultiplier != 1.6 {
		t.Fatalf("defaults not applied: %+v", fixed.Params)
	}

	cost, err := cfg.Resolve("pggp_transfer_cost")
	if err != nil {
		t.Fatalf("resolve by session name: %v", err)
	}
	if !cost.Params.CostlyPunishmentTransfer || cost.Params.PowerTransferCostRate != 1 {
		t.Fatalf("transfer_cost flags: %+v", cost.Params)
	}

	def, err := cfg.Resolve("")
	if err != nil || def.Name != cfg.DefaultSession {
		t.Fatalf("empty name should resolve to the default: %+v %v", def, err)
	}
	if _, err := cfg.Resolve("nope"); err == nil {
		t.Fatalf("expected unknown session error")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	for _, name := range []string{params.TreatmentFixed, params.TreatmentTransferFree, params.TreatmentTransferCost} {
		s, err := cfg.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		if s.Treatment != name || s.Params.Treatment() != name {
			t.Fatalf("room %s resolved to %s/%s", name, s.Treatment, s.Params.Treatment())
		}
	}
}

func TestNormalize_TreatmentFromFlagsAndRooms(t *testing.T) {
	p := params.Defaults()
	p.PowerTransferAllowed = true
	cfg := Config{
		Sessions: []SessionSpec{
			{Name: "flags", Params: p},
			{Name: "named", Treatment: params.TreatmentTransferCost, Params: params.Defaults()},
		},
		Rooms: []RoomSpec{{Name: params.TreatmentTransferCost}},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Sessions[0].Treatment != params.TreatmentTransferFree {
		t.Fatalf("treatment from flags: %q", cfg.Sessions[0].Treatment)
	}
	if !cfg.Sessions[1].Params.CostlyPunishmentTransfer {
		t.Fatalf("treatment name should force flags")
	}
	if cfg.Rooms[0].Session != "named" {
		t.Fatalf("room should route by treatment, got %q", cfg.Rooms[0].Session)
	}
	if cfg.DefaultSession != "flags" || cfg.Sessions[0].NumParticipants != 5 {
		t.Fatalf("derived defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := Config{Sessions: []SessionSpec{{Name: "x", Treatment: "anarchy", Params: params.Defaults()}}}
	if err := bad.Normalize(); err == nil {
		t.Fatalf("expected unknown treatment error")
	}
}

func TestValidate_Rejects(t *testing.T) {
	base := func() Config {
		cfg := defaults()
		if err := cfg.Normalize(); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		return cfg
	}
	cases := map[string]func(*Config){
		"duplicate session": func(c *Config) { c.Sessions[1].Name = c.Sessions[0].Name },
		"bad default":       func(c *Config) { c.DefaultSession = "missing" },
		"room target":       func(c *Config) { c.Rooms[0].Session = "missing" },
		"participants":      func(c *Config) { c.Sessions[0].NumParticipants = 7 },
		"params":            func(c *Config) { c.Sessions[0].Params.Endowment = 0 },
		"no sessions":       func(c *Config) { c.Sessions = nil },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestReadLabels(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "room.txt"), []byte("# lab A\nA01\n\nA02\n  A03  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadLabels(dir, "room.txt")
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if len(got) != 3 || got[0] != "A01" || got[2] != "A03" {
		t.Fatalf("labels=%v", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "dup.txt"), []byte("A\nA\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadLabels(dir, "dup.txt"); err == nil {
		t.Fatalf("expected duplicate label error")
	}

	labels, err := ReadLabels("../../../configs", "_rooms/fixed.txt")
	if err != nil || len(labels) != 5 {
		t.Fatalf("fixed room labels: %v %v", labels, err)
	}
}
