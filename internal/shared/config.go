package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	HubSpot   HubSpotConfig   `toml:"hubspot"`
	SFMC      SFMCConfig      `toml:"sfmc"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Migration MigrationConfig `toml:"migration"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	DashboardURL string `toml:"dashboard_url"`
}

// DatabaseConfig contains settings for the local SQLite token store.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// HubSpotConfig is the OAuth app identity used for the authorization-code flow.
type HubSpotConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	BaseURL      string   `toml:"base_url"`
	Scopes       []string `toml:"scopes"`
}

// SFMCConfig holds destination defaults. Per-user credentials arrive with requests or from the token store.
type SFMCConfig struct {
	AuthURL                      string  `toml:"auth_url"`
	RateLimit                    float64 `toml:"rate_limit"`
	CreateContentBlockSubfolders bool    `toml:"create_content_block_subfolders"`
}

// SupabaseConfig selects the hosted token store when URL and AnonKey are set.
type SupabaseConfig struct {
	URL     string `toml:"url"`
	AnonKey string `toml:"anon_key"`
	Table   string `toml:"table"`
}

// MigrationConfig tunes orchestrator defaults.
type MigrationConfig struct {
	DefaultLimit int `toml:"default_limit"`
	ListWorkers  int `toml:"list_workers"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays the recognized environment keys on top of c.
//
// The NEXT_PUBLIC_ variants are only consulted when the server-side key is absent.
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	first := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := first("HUBSPOT_CLIENT_ID", "NEXT_PUBLIC_HUBSPOT_CLIENT_ID"); ok {
		c.HubSpot.ClientID = v
	}
	if v, ok := first("HUBSPOT_CLIENT_SECRET"); ok {
		c.HubSpot.ClientSecret = v
	}
	if v, ok := first("HUBSPOT_REDIRECT_URI", "NEXT_PUBLIC_HUBSPOT_REDIRECT_URI"); ok {
		c.HubSpot.RedirectURI = v
	}
	if v, ok := first("NEXT_PUBLIC_SUPABASE_URL"); ok {
		c.Supabase.URL = v
	}
	if v, ok := first("NEXT_PUBLIC_SUPABASE_ANON_KEY"); ok {
		c.Supabase.AnonKey = v
	}
	if v, ok := first("CREATE_CONTENT_BLOCK_SUBFOLDERS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SFMC.CreateContentBlockSubfolders = b
		}
	}
}

// UseSupabase reports whether the hosted token store is configured.
func (c *Config) UseSupabase() bool {
	return c.Supabase.URL != "" && c.Supabase.AnonKey != ""
}

// ValidateOAuth checks that the HubSpot OAuth app identity is present.
func (c *Config) ValidateOAuth() error {
	var missing []string
	if c.HubSpot.ClientID == "" {
		missing = append(missing, "HUBSPOT_CLIENT_ID")
	}
	if c.HubSpot.ClientSecret == "" {
		missing = append(missing, "HUBSPOT_CLIENT_SECRET")
	}
	if c.HubSpot.RedirectURI == "" {
		missing = append(missing, "HUBSPOT_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Address is the host:port the HTTP server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
