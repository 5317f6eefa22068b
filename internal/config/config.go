// Package config provides application configuration management for threadview.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/wethinkt/go-threadview/internal/viewport"
)

// EnvHome overrides the configuration directory.
const EnvHome = "THREADVIEW_HOME"

// Config holds the threadview configuration.
type Config struct {
	Server ServerConfig `json:"server"` // Backend settings for `threadview serve`
	Client ClientConfig `json:"client"` // How the terminal view reaches the backend
	View   ViewConfig   `json:"view"`   // Scroll and pagination thresholds
	Media  MediaConfig  `json:"media"`  // Signed media URL handling
}

// ServerConfig holds backend settings.
type ServerConfig struct {
	Host              string  `json:"host"`
	Port              int     `json:"port"`
	Token             string  `json:"token,omitempty"`     // Bearer token; empty disables auth
	DBPath            string  `json:"db_path,omitempty"`   // DuckDB file (default ~/.threadview/threadview.duckdb)
	UserID            string  `json:"user_id,omitempty"`   // Acting user when requests carry none
	RequestsPerSecond float64 `json:"requests_per_second"` // Per-client rate limit; 0 disables
	Burst             int     `json:"burst"`
}

// ClientConfig holds settings for talking to a backend.
type ClientConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// ViewConfig holds the conversation view thresholds. Distances are in
// terminal lines.
type ViewConfig struct {
	PageSize        int    `json:"page_size"`
	NearTopLines    int    `json:"near_top_lines"`
	NearBottomLines int    `json:"near_bottom_lines"`
	UserScrollLines int    `json:"user_scroll_lines"`
	Settle          string `json:"settle"`        // e.g. "500ms"
	Continuation    string `json:"continuation"`  // e.g. "100ms"
	AfterPrepend    string `json:"after_prepend"` // e.g. "50ms"
	Throttle        string `json:"throttle"`
	Cooldown        string `json:"cooldown"`
	KeepBottom      string `json:"keep_bottom"`
	ImagesAsURL     bool   `json:"images_as_url"` // Render image placeholders as bare URLs
	Markdown        bool   `json:"markdown"`      // Render message text with glamour
	MarkdownStyle   string `json:"markdown_style"`
}

// MediaConfig holds signed-URL refresh settings.
type MediaConfig struct {
	SignURL    string `json:"sign_url,omitempty"` // Endpoint that re-signs expired URLs; empty disables refresh
	RefreshTTL string `json:"refresh_ttl"`        // How long a refreshed URL is reused
}

// parseDuration returns s parsed, or def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

// PagerConfig converts the view settings for viewport.NewPager.
func (v ViewConfig) PagerConfig() viewport.PagerConfig {
	def := viewport.DefaultPagerConfig()
	cfg := viewport.PagerConfig{
		PageSize:     v.PageSize,
		NearTop:      v.NearTopLines,
		Settle:       parseDuration(v.Settle, def.Settle),
		Continuation: parseDuration(v.Continuation, def.Continuation),
		AfterPrepend: parseDuration(v.AfterPrepend, def.AfterPrepend),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.NearTop <= 0 {
		cfg.NearTop = defaultNearTopLines
	}
	return cfg
}

// AnchorConfig converts the view settings for viewport.NewAnchor.
func (v ViewConfig) AnchorConfig() viewport.AnchorConfig {
	def := viewport.DefaultAnchorConfig()
	cfg := viewport.AnchorConfig{
		NearBottom:         v.NearBottomLines,
		UserScrollDelta:    v.UserScrollLines,
		MaxPlausibleDelta:  def.MaxPlausibleDelta,
		Throttle:           parseDuration(v.Throttle, def.Throttle),
		Cooldown:           parseDuration(v.Cooldown, def.Cooldown),
		KeepBottomInterval: parseDuration(v.KeepBottom, def.KeepBottomInterval),
	}
	if cfg.NearBottom <= 0 {
		cfg.NearBottom = defaultNearBottomLines
	}
	if cfg.UserScrollDelta < 0 {
		cfg.UserScrollDelta = defaultUserScrollLines
	}
	return cfg
}

// RefreshTTLDuration returns the parsed refresh TTL (default: 50m).
func (m MediaConfig) RefreshTTLDuration() time.Duration {
	return parseDuration(m.RefreshTTL, 50*time.Minute)
}

// Line-based equivalents of the pixel defaults, at roughly 20px per line.
// A single line is already more than the 5px user threshold, so any line of
// movement counts as a user scroll.
const (
	defaultNearTopLines    = 75
	defaultNearBottomLines = 10
	defaultUserScrollLines = 0
)

// Dir returns the path to the .threadview directory.
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".threadview"), nil
}

// Path returns the path to the main config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultDBPath returns the default DuckDB location.
func DefaultDBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threadview.duckdb"), nil
}

// Load loads the configuration from ~/.threadview/config.json, writing the
// defaults there on first use.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		// Return defaults even if the save fails.
		_ = SaveFile(path, cfg)
		return cfg, nil
	}
	return cfg, err
}

// LoadFile reads a config file. Missing keys keep their defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	return cfg, nil
}

// Default returns a default configuration with all defaults set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8790,
			UserID:            "local",
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Client: ClientConfig{
			URL:    "http://127.0.0.1:8790",
			UserID: "local",
		},
		View: ViewConfig{
			PageSize:        15,
			NearTopLines:    defaultNearTopLines,
			NearBottomLines: defaultNearBottomLines,
			UserScrollLines: defaultUserScrollLines,
			Settle:          "500ms",
			Continuation:    "100ms",
			AfterPrepend:    "50ms",
			Throttle:        "100ms",
			Cooldown:        "1s",
			KeepBottom:      "50ms",
			Markdown:        true,
			MarkdownStyle:   "dark",
		},
		Media: MediaConfig{
			RefreshTTL: "50m",
		},
	}
}

// Save saves the configuration to ~/.threadview/config.json.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg to path, creating the directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
