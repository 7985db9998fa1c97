package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM       LLM       `yaml:"llm"`
	Retry     Retry     `yaml:"retry"`
	Revision  Revision  `yaml:"revision"`
	Retention Retention `yaml:"retention"`
	Platforms Platforms `yaml:"platforms"`
	Lexicon   Lexicon   `yaml:"lexicon"`
	Resources Resources `yaml:"resources"`
	Ledger    Ledger    `yaml:"ledger"`
	Services  Services  `yaml:"services"`
	Inputs    Inputs    `yaml:"inputs"`
	Prompts   Prompts   `yaml:"prompts"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type LLM struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Retry holds the per-stage retry budgets. Every path is bounded.
type Retry struct {
	TransientAttempts int           `yaml:"transient_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	SchemaRetries     int           `yaml:"schema_retries"`
	InvariantRetries  int           `yaml:"invariant_retries"`
}

type Revision struct {
	Threshold    int `yaml:"threshold"`
	MaxRevisions int `yaml:"max_revisions"`
}

type Retention struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Platforms struct {
	LinkedIn PlatformLimits `yaml:"linkedin"`
	X        PlatformLimits `yaml:"x"`
	Bluesky  PlatformLimits `yaml:"bluesky"`
}

type PlatformLimits struct {
	MaxChars       int `yaml:"max_chars"`
	MaxWords       int `yaml:"max_words"`
	MaxBulletWords int `yaml:"max_bullet_words"`
}

type Lexicon struct {
	AllowedEmoji  []string `yaml:"allowed_emoji"`
	BannedPhrases []string `yaml:"banned_phrases"`
}

type Resources struct {
	ExcludedHosts         []string `yaml:"excluded_hosts"`
	InstitutionalSuffixes []string `yaml:"institutional_suffixes"`
}

type Ledger struct {
	Backend  string        `yaml:"backend"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Coda     Coda          `yaml:"coda"`
}

type Coda struct {
	BaseURL  string `yaml:"base_url"`
	DocID    string `yaml:"doc_id"`
	TableID  string `yaml:"table_id"`
	TokenEnv string `yaml:"token_env"`
}

type Services struct {
	DocumentURL      string        `yaml:"document_url"`
	TranscriptionURL string        `yaml:"transcription_url"`
	Timeout          time.Duration `yaml:"timeout"`
	Search           Search        `yaml:"search"`
}

type Search struct {
	Providers []string `yaml:"providers"`
	Limit     int      `yaml:"limit"`
}

type Inputs struct {
	SlidesDir     string `yaml:"slides_dir"`
	VideosDir     string `yaml:"videos_dir"`
	MatchMinScore int    `yaml:"match_min_score"`
}

type Prompts struct {
	Dir string `yaml:"dir"`
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

// ConfigDir returns the XDG config directory for talkcomms.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "talkcomms")
}

// DataDir returns the XDG data directory for talkcomms.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "talkcomms")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/talkcomms/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'talkcomms init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			BaseURL:   "",
			APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: 4096,
			Timeout:   180 * time.Second,
		},
		Retry: Retry{
			TransientAttempts: 3,
			BaseDelay:         time.Second,
			MaxDelay:          10 * time.Second,
			SchemaRetries:     2,
			InvariantRetries:  1,
		},
		Revision:  Revision{Threshold: 80, MaxRevisions: 1},
		Retention: Retention{Min: 0.95, Max: 1.05},
		Platforms: Platforms{
			LinkedIn: PlatformLimits{MaxWords: 149, MaxBulletWords: 10},
			X:        PlatformLimits{MaxChars: 280},
			Bluesky:  PlatformLimits{MaxChars: 300},
		},
		Lexicon: Lexicon{
			AllowedEmoji: []string{"👇", "▶️", "📄", "🧵"},
			BannedPhrases: []string{
				"groundbreaking", "game-changing", "game changer", "revolutionary",
				"cutting-edge", "unprecedented", "mind-blowing", "paradigm shift",
			},
		},
		Resources: Resources{
			ExcludedHosts: []string{
				"twitter.com", "x.com", "linkedin.com", "facebook.com",
				"instagram.com", "bsky.app", "t.co", "bit.ly",
			},
			InstitutionalSuffixes: []string{".edu", ".gov", ".ac.uk", ".ac.jp"},
		},
		Ledger: Ledger{
			Backend:  "sqlite",
			CacheTTL: 24 * time.Hour,
			Coda: Coda{
				BaseURL:  "https://coda.io/apis/v1",
				TokenEnv: "CODA_API_TOKEN",
			},
		},
		Services: Services{
			DocumentURL:      "http://localhost:8010",
			TranscriptionURL: "http://localhost:8020",
			Timeout:          5 * time.Minute,
			Search: Search{
				Providers: []string{"duckduckgo", "arxiv"},
				Limit:     5,
			},
		},
		Inputs:  Inputs{MatchMinScore: 40},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath returns the sqlite file that backs the local ledger and run journal.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "talkcomms.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
