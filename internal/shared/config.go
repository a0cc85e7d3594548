package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify     SpotifyConfig     `toml:"spotify"`
	SetlistFM   SetlistFMConfig   `toml:"setlistfm"`
	Bandsintown BandsintownConfig `toml:"bandsintown"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// SetlistFMConfig contains Setlist.fm API credentials.
type SetlistFMConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// BandsintownConfig contains Bandsintown API credentials.
type BandsintownConfig struct {
	AppID   string `toml:"app_id"`
	BaseURL string `toml:"base_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server and session cookie settings.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	SecureCookies  bool   `toml:"secure_cookies"`
	SessionTTLMins int    `toml:"session_ttl_minutes"`
	AuthTTLMins    int    `toml:"auth_ttl_minutes"`
}

// SessionTTL returns the configured local session lifetime.
func (s ServerConfig) SessionTTL() time.Duration {
	if s.SessionTTLMins <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.SessionTTLMins) * time.Minute
}

// AuthTTL returns the lifetime of an in-flight authorization handshake.
func (s ServerConfig) AuthTTL() time.Duration {
	if s.AuthTTLMins <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.AuthTTLMins) * time.Minute
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	host := s.Host
	port := s.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
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
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
