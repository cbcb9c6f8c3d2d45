package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/eventfolio/internal/timez"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Source types understood by the collector. An empty type means "try the
// scraping adapters in fallback order".
var SourceTypes = []string{"ics", "jsonld", "html", "rss", "js", "llm"}

type Config struct {
	Timezone     string       `yaml:"timezone"`
	HorizonDays  int          `yaml:"horizon_days"`
	Sources      []Source     `yaml:"sources"`
	Availability Availability `yaml:"availability"`
	Scoring      Scoring      `yaml:"scoring"`
	Preferences  Preferences  `yaml:"preferences"`
	LLM          LLM          `yaml:"llm"`
	Output       Output       `yaml:"output"`
	Server       Server       `yaml:"server"`
	Schedule     string       `yaml:"schedule"`
	Logging      Logging      `yaml:"logging"`
}

type Source struct {
	Slug     string        `yaml:"slug"`
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Type     string        `yaml:"type"`
	Category string        `yaml:"category"`
	Tags     []string      `yaml:"tags"`
	City     string        `yaml:"city"`
	Cost     string        `yaml:"cost"`
	HTML     HTMLSelectors `yaml:"html"`
}

// HTMLSelectors are CSS selectors for the html adapter. A selector may end in
// "::attr(name)" to read an attribute instead of the element text.
type HTMLSelectors struct {
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Datetime string `yaml:"datetime"`
	Endtime  string `yaml:"endtime"`
	Location string `yaml:"location"`
	URL      string `yaml:"url"`
	Notes    string `yaml:"notes"`
}

type Availability struct {
	ICSPath string `yaml:"ics_path"`
	ICSURL  string `yaml:"ics_url"`
}

// Enabled reports whether a busy calendar is configured.
func (a Availability) Enabled() bool {
	return a.ICSPath != "" || a.ICSURL != ""
}

type Scoring struct {
	Weights         map[string]float64  `yaml:"weights"`
	GoalKeywords    map[string][]string `yaml:"goal_keywords"`
	CategoryWeights map[string]float64  `yaml:"category_weights"`
	CostPreferences CostPreferences     `yaml:"cost_preferences"`
	NoveltySources  []string            `yaml:"novelty_sources"`
	Travel          Travel              `yaml:"travel"`
	HardRules       HardRules           `yaml:"hard_rules"`
}

type CostPreferences struct {
	FreeBonus float64 `yaml:"free_bonus"`
}

type Travel struct {
	PenaltyAboveMinutes   float64 `yaml:"penalty_above_minutes"`
	BonusAtOrBelowMinutes float64 `yaml:"bonus_at_or_below_minutes"`
}

type HardRules struct {
	NoOverlap           bool          `yaml:"no_overlap"`
	MaxEventsPerWeek    *int          `yaml:"max_events_per_week"`
	EveningQuietHours   timez.Windows `yaml:"evening_quiet_hours"`
	RespectAvailability bool          `yaml:"respect_availability"`
	TieBreak            string        `yaml:"tie_break"`
}

type Preferences struct {
	Weights     PreferenceWeights `yaml:"weights"`
	TimeWindows TimeWindows       `yaml:"time_windows"`
	Caps        Caps              `yaml:"caps"`
	Quotas      Quotas            `yaml:"quotas"`
	Categories  Categories        `yaml:"categories"`
	StartTime   StartTime         `yaml:"start_time"`
}

// PreferenceWeights holds a nested "goals" map next to flat weight keys:
//
//	weights:
//	  goals: {career_learning: 0.4}
//	  must_see_bonus: 0.2
type PreferenceWeights struct {
	Goals map[string]float64
	Flat  map[string]float64
}

func (w *PreferenceWeights) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	w.Goals = map[string]float64{}
	w.Flat = map[string]float64{}
	for key, node := range raw {
		if key == "goals" {
			if err := node.Decode(&w.Goals); err != nil {
				return fmt.Errorf("weights.goals: %w", err)
			}
			continue
		}
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("weights.%s: %w", key, err)
		}
		w.Flat[key] = v
	}
	return nil
}

type TimeWindows struct {
	Evenings   Evenings      `yaml:"evenings"`
	QuietHours timez.Windows `yaml:"quiet_hours"`
}

type Evenings struct {
	Weekdays *timez.Window `yaml:"weekdays"`
	Saturday *timez.Window `yaml:"saturday"`
	Sunday   *timez.Window `yaml:"sunday"`
}

type Caps struct {
	MaxPerDay       *int `yaml:"max_per_day"`
	MaxPerWeek      *int `yaml:"max_per_week"`
	MaxWeekendTotal *int `yaml:"max_weekend_total"`
}

type Quotas struct {
	Weekly  map[string]int `yaml:"weekly"`
	Monthly map[string]int `yaml:"monthly"`
}

type Categories struct {
	Map             GoalMap  `yaml:"map"`
	MustSeeKeywords []string `yaml:"must_see_keywords"`
}

// GoalMap maps a category (or tag fragment) to goals. Values may be a single
// goal name or a list.
type GoalMap map[string][]string

func (g *GoalMap) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	out := GoalMap{}
	for key, node := range raw {
		if node.Kind == yaml.ScalarNode {
			out[key] = []string{node.Value}
			continue
		}
		var goals []string
		if err := node.Decode(&goals); err != nil {
			return fmt.Errorf("categories.map.%s: %w", key, err)
		}
		out[key] = goals
	}
	*g = out
	return nil
}

type StartTime struct {
	LateStartPenaltyAfter *timez.TimeOfDay `yaml:"late_start_penalty_after"`
	LateStartPenalty      *float64         `yaml:"late_start_penalty"`
}

type LLM struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for eventfolio.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "eventfolio")
}

// DataDir returns the XDG data directory for eventfolio.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "eventfolio")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/eventfolio/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'eventfolio init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Timezone:    timez.DefaultZone,
		HorizonDays: 45,
		Scoring: Scoring{
			Travel: Travel{PenaltyAboveMinutes: 45, BonusAtOrBelowMinutes: 30},
			HardRules: HardRules{
				NoOverlap:           true,
				RespectAvailability: true,
				TieBreak:            "input",
			},
		},
		LLM: LLM{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
		},
		Server:   Server{Port: 8000},
		Schedule: "0 7 * * *",
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.HorizonDays < 0 {
		return fmt.Errorf("horizon_days must not be negative")
	}
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if s.Slug == "" {
			return fmt.Errorf("sources[%d]: slug is required", i)
		}
		if seen[s.Slug] {
			return fmt.Errorf("sources[%d]: duplicate slug %q", i, s.Slug)
		}
		seen[s.Slug] = true
		if s.URL == "" {
			return fmt.Errorf("source %s: url is required", s.Slug)
		}
		if s.Type != "" && !validType(s.Type) {
			return fmt.Errorf("source %s: unknown type %q (want one of %s)", s.Slug, s.Type, strings.Join(SourceTypes, ", "))
		}
	}
	for name, v := range map[string]*int{
		"caps.max_per_day":               c.Preferences.Caps.MaxPerDay,
		"caps.max_per_week":              c.Preferences.Caps.MaxPerWeek,
		"caps.max_weekend_total":         c.Preferences.Caps.MaxWeekendTotal,
		"hard_rules.max_events_per_week": c.Scoring.HardRules.MaxEventsPerWeek,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	switch c.Scoring.HardRules.TieBreak {
	case "", "input", "uid":
	default:
		return fmt.Errorf("hard_rules.tie_break must be input or uid, got %q", c.Scoring.HardRules.TieBreak)
	}
	return nil
}

func validType(t string) bool {
	for _, known := range SourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return timez.LoadZone(c.Timezone)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SourceBySlug returns the configured source with the given slug.
func (c *Config) SourceBySlug(slug string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Slug == slug {
			return s, true
		}
	}
	return Source{}, false
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
