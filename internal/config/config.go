// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for DraftPatch.
//
// Settings live in TOML at ~/.draftpatch/config.toml with sensible
// defaults, environment variable overrides, and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// SETTINGS STRUCTURES
// =============================================================================

// Settings is the complete DraftPatch configuration, one aggregate per
// installation.
type Settings struct {
	// DefaultModel is the preferred model name; the first enabled model is
	// used when empty or unknown.
	DefaultModel string `toml:"default_model"`
	// DefaultProvider disambiguates DefaultModel across providers.
	DefaultProvider string `toml:"default_provider"`

	Ollama    OllamaSettings  `toml:"ollama"`
	OpenAI    CloudSettings   `toml:"openai"`
	Gemini    CloudSettings   `toml:"gemini"`
	Anthropic CloudSettings   `toml:"anthropic"`
	Capture   CaptureSettings `toml:"capture"`
	UI        UISettings      `toml:"ui"`
}

// OllamaSettings configures the local provider.
type OllamaSettings struct {
	// Enabled controls whether this provider participates in discovery.
	Enabled bool `toml:"enabled"`
	// EndpointURL is the Ollama server URL
	EndpointURL string `toml:"endpoint_url"`
	// Temperature is the default sampling temperature (0 = provider default)
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps response length (0 = provider default)
	MaxTokens int `toml:"max_tokens"`
}

// CloudSettings configures one cloud provider.
type CloudSettings struct {
	// Enabled controls whether this provider participates in discovery.
	Enabled bool `toml:"enabled"`
	// APIKeyIdentifier names the credential in the secret store. The key
	// itself never appears in this file.
	APIKeyIdentifier string `toml:"api_key_identifier"`
	// Temperature is the default sampling temperature (0 = provider default)
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps response length (0 = provider default)
	MaxTokens int `toml:"max_tokens"`
}

// CaptureSettings configures external text capture.
type CaptureSettings struct {
	// Enabled controls whether sends are enriched with captured text.
	Enabled bool `toml:"enabled"`
	// Target selects the configured capture target by name.
	Target string `toml:"target"`
	// Targets defines where captured text comes from. A target reads a
	// file or runs a command, best-effort.
	Targets []CaptureTarget `toml:"targets"`
}

// CaptureTarget is one source of external text.
type CaptureTarget struct {
	// Name identifies the target in the UI and in Capture.Target.
	Name string `toml:"name"`
	// Path is a file to read (mutually exclusive with Command).
	Path string `toml:"path"`
	// Command is run with its output captured.
	Command []string `toml:"command"`
	// Extension overrides file-extension detection for the language tag.
	Extension string `toml:"extension"`
}

// UISettings configures the terminal interface.
type UISettings struct {
	// Theme is the glamour style name for rendered markdown.
	Theme string `toml:"theme"`
	// CompactMode reduces message padding.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default settings: local provider on, cloud
// providers discoverable once a credential is stored.
func Default() *Settings {
	return &Settings{
		Ollama: OllamaSettings{
			Enabled:     true,
			EndpointURL: "http://127.0.0.1:11434",
		},
		OpenAI: CloudSettings{
			Enabled:          true,
			APIKeyIdentifier: "openai_api_key",
		},
		Gemini: CloudSettings{
			Enabled:          true,
			APIKeyIdentifier: "gemini_api_key",
		},
		Anthropic: CloudSettings{
			Enabled:          true,
			APIKeyIdentifier: "anthropic_api_key",
		},
		Capture: CaptureSettings{
			Enabled: true,
		},
		UI: UISettings{
			Theme: "dark",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the DraftPatch configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".draftpatch"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads settings from the config file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load() (*Settings, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from an explicit path.
func LoadFrom(path string) (*Settings, error) {
	s := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, s); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	s.fillDefaults()
	s.ApplyEnvOverrides()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// Save writes settings to the TOML config file.
// SECURITY: Config files are 0600; they name credentials even though they
// never contain them.
func Save(s *Settings) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(s, path)
}

// SaveTo writes settings to an explicit path.
func SaveTo(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# DraftPatch configuration file")
	fmt.Fprintln(file, "# API keys are stored separately; api_key_identifier only names them.")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// fillDefaults fills zero values a partial config file left out.
func (s *Settings) fillDefaults() {
	if s.Ollama.EndpointURL == "" {
		s.Ollama.EndpointURL = "http://127.0.0.1:11434"
	}
	if s.OpenAI.APIKeyIdentifier == "" {
		s.OpenAI.APIKeyIdentifier = "openai_api_key"
	}
	if s.Gemini.APIKeyIdentifier == "" {
		s.Gemini.APIKeyIdentifier = "gemini_api_key"
	}
	if s.Anthropic.APIKeyIdentifier == "" {
		s.Anthropic.APIKeyIdentifier = "anthropic_api_key"
	}
	if s.UI.Theme == "" {
		s.UI.Theme = "dark"
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - DRAFTPATCH_MODEL: overrides default_model
//   - DRAFTPATCH_OLLAMA_URL: overrides ollama.endpoint_url
//   - DRAFTPATCH_LOCAL_ONLY: set to "1" or "true" to disable cloud providers
func (s *Settings) ApplyEnvOverrides() {
	if mdl := os.Getenv("DRAFTPATCH_MODEL"); mdl != "" {
		s.DefaultModel = mdl
	}
	if u := os.Getenv("DRAFTPATCH_OLLAMA_URL"); u != "" {
		s.Ollama.EndpointURL = u
	}
	if local := os.Getenv("DRAFTPATCH_LOCAL_ONLY"); local == "1" || strings.EqualFold(local, "true") {
		s.OpenAI.Enabled = false
		s.Gemini.Enabled = false
		s.Anthropic.Enabled = false
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the settings for contradictions.
func (s *Settings) Validate() error {
	if s.Ollama.Enabled {
		u, err := url.Parse(s.Ollama.EndpointURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ollama.endpoint_url %q is not a valid URL", s.Ollama.EndpointURL)
		}
	}
	for _, t := range s.Capture.Targets {
		if t.Name == "" {
			return fmt.Errorf("capture target missing name")
		}
		if t.Path == "" && len(t.Command) == 0 {
			return fmt.Errorf("capture target %q needs a path or a command", t.Name)
		}
		if t.Path != "" && len(t.Command) > 0 {
			return fmt.Errorf("capture target %q has both a path and a command", t.Name)
		}
	}
	return nil
}

// CaptureTargetByName resolves the configured capture target, nil when
// none matches.
func (s *Settings) CaptureTargetByName(name string) *CaptureTarget {
	for i := range s.Capture.Targets {
		if s.Capture.Targets[i].Name == name {
			return &s.Capture.Targets[i]
		}
	}
	return nil
}
