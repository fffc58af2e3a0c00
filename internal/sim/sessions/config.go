// Package sessions loads the named session configurations and the rooms that
// route participants into them.
package sessions

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IenDonshin/LEVIATHAN-JP/internal/sim/params"
)

type Config struct {
	DefaultSession string        `yaml:"default_session"`
	Sessions       []SessionSpec `yaml:"sessions"`
	Rooms          []RoomSpec    `yaml:"rooms,omitempty"`
}

type SessionSpec struct {
	Name            string `yaml:"name"`
	DisplayName     string `yaml:"display_name"`
	Treatment       string `yaml:"treatment"`
	NumParticipants int    `yaml:"num_participants"`
	// Seed drives the round-1 random grouping.
	Seed   int64         `yaml:"seed"`
	Params params.Params `yaml:"params"`
}

// UnmarshalYAML decodes params over the defaults so a session only lists the
// options it changes.
func (s *SessionSpec) UnmarshalYAML(node *yaml.Node) error {
	type plain SessionSpec
	p := plain{Params: params.Defaults()}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = SessionSpec(p)
	return nil
}

type RoomSpec struct {
	Name                 string `yaml:"name"`
	DisplayName          string `yaml:"display_name"`
	Session              string `yaml:"session"`
	ParticipantLabelFile string `yaml:"participant_label_file,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		if err := cfg.Normalize(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("sessions.yaml: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, fmt.Errorf("sessions.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("sessions.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	spec := func(name, display, treatment string, rate float64) SessionSpec {
		p := params.Defaults()
		p.PowerTransferCostRate = rate
		return SessionSpec{
			Name:            name,
			DisplayName:     display,
			Treatment:       treatment,
			NumParticipants: p.PlayersPerGroup,
			Params:          p,
		}
	}
	return Config{
		DefaultSession: "pggp_fixed",
		Sessions: []SessionSpec{
			spec("pggp_fixed", "Public goods game (fixed punishment power)", params.TreatmentFixed, 0),
			spec("pggp_transfer_free", "Public goods game (free power transfer)", params.TreatmentTransferFree, 0),
			spec("pggp_transfer_cost", "Public goods game (costly power transfer)", params.TreatmentTransferCost, 1),
		},
		Rooms: []RoomSpec{
			{Name: params.TreatmentFixed, Session: "pggp_fixed"},
			{Name: params.TreatmentTransferFree, Session: "pggp_transfer_free"},
			{Name: params.TreatmentTransferCost, Session: "pggp_transfer_cost"},
		},
	}
}

// Normalize reconciles treatment names with the transfer flags and fills
// derived defaults. An explicit treatment wins over the flags.
func (c *Config) Normalize() error {
	if c == nil {
		return nil
	}
	for i := range c.Sessions {
		s := &c.Sessions[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Treatment = strings.TrimSpace(s.Treatment)
		if s.Treatment == "" {
			s.Treatment = s.Params.Treatment()
		} else {
			p, err := s.Params.WithTreatment(s.Treatment)
			if err != nil {
				return fmt.Errorf("session %s: %w", s.Name, err)
			}
			s.Params = p
		}
		if s.NumParticipants <= 0 {
			s.NumParticipants = s.Params.PlayersPerGroup
		}
		if s.DisplayName == "" {
			s.DisplayName = s.Name
		}
	}
	for i := range c.Rooms {
		r := &c.Rooms[i]
		if strings.TrimSpace(r.Session) != "" {
			continue
		}
		// A room named after a treatment routes to the first session running it.
		for _, s := range c.Sessions {
			if s.Treatment == r.Name {
				r.Session = s.Name
				break
			}
		}
	}
	if c.DefaultSession == "" && len(c.Sessions) > 0 {
		c.DefaultSession = c.Sessions[0].Name
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.Sessions) == 0 {
		return fmt.Errorf("sessions must not be empty")
	}
	seen := map[string]bool{}
	for _, s := range c.Sessions {
		if s.Name == "" {
			return fmt.Errorf("session name must not be empty")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate session name: %s", s.Name)
		}
		seen[s.Name] = true
		if err := s.Params.Validate(); err != nil {
			return fmt.Errorf("session %s: %w", s.Name, err)
		}
		if s.Params.Treatment() != s.Treatment {
			return fmt.Errorf("session %s treatment %q does not match its flags", s.Name, s.Treatment)
		}
		if s.NumParticipants%s.Params.PlayersPerGroup != 0 {
			return fmt.Errorf("session %s num_participants %d is not a multiple of players_per_group %d",
				s.Name, s.NumParticipants, s.Params.PlayersPerGroup)
		}
	}
	if !seen[c.DefaultSession] {
		return fmt.Errorf("default_session %q not found in sessions", c.DefaultSession)
	}
	rooms := map[string]bool{}
	for i, r := range c.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rooms[%d] name must not be empty", i)
		}
		if rooms[r.Name] || seen[r.Name] {
			return fmt.Errorf("duplicate room or session name: %s", r.Name)
		}
		rooms[r.Name] = true
		if !seen[r.Session] {
			return fmt.Errorf("room %s session %q not found", r.Name, r.Session)
		}
	}
	return nil
}

// Resolve finds a session by room name or session name. An empty name
// resolves to the default session.
func (c Config) Resolve(name string) (SessionSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.DefaultSession
	}
	for _, r := range c.Rooms {
		if r.Name == name {
			name = r.Session
			break
		}
	}
	if s, ok := c.SessionByName(name); ok {
		return s, nil
	}
	return SessionSpec{}, fmt.Errorf("unknown session or room %q", name)
}

func (c Config) SessionByName(name string) (SessionSpec, bool) {
	for _, s := range c.Sessions {
		if s.Name == name {
			return s, true
		}
	}
	return SessionSpec{}, false
}

func (c Config) Room(name string) (RoomSpec, bool) {
	for _, r := range c.Rooms {
		if r.Name == name {
			return r, true
		}
	}
	return RoomSpec{}, false
}

// ReadLabels reads one participant label per line, skipping blanks and
// '#' comments. Relative paths resolve against baseDir.
func ReadLabels(baseDir, path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			return nil, fmt.Errorf("%s: duplicate label %q", path, line)
		}
		seen[line] = true
		out = append(out, line)
	}
	return out, sc.Err()
}
