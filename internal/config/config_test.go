// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	s := Default()

	if !s.Ollama.Enabled {
		t.Error("local provider should be enabled by default")
	}
	if s.Ollama.EndpointURL != "http://127.0.0.1:11434" {
		t.Errorf("unexpected default endpoint: %q", s.Ollama.EndpointURL)
	}
	if s.OpenAI.APIKeyIdentifier != "openai_api_key" ||
		s.Gemini.APIKeyIdentifier != "gemini_api_key" ||
		s.Anthropic.APIKeyIdentifier != "anthropic_api_key" {
		t.Error("default credential identifiers wrong")
	}
	if s.UI.Theme != "dark" {
		t.Errorf("unexpected default theme: %q", s.UI.Theme)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if s.Ollama.EndpointURL != "http://127.0.0.1:11434" {
		t.Errorf("missing file should yield defaults, got %q", s.Ollama.EndpointURL)
	}
}

func TestLoadFrom_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "llama3:8b"

[ollama]
enabled = true

[openai]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if s.DefaultModel != "llama3:8b" {
		t.Errorf("explicit value lost: %q", s.DefaultModel)
	}
	if s.OpenAI.Enabled {
		t.Error("explicit false must survive loading")
	}
	// Fields the file omits come back as defaults.
	if s.Ollama.EndpointURL != "http://127.0.0.1:11434" {
		t.Errorf("endpoint not defaulted: %q", s.Ollama.EndpointURL)
	}
	if s.OpenAI.APIKeyIdentifier != "openai_api_key" {
		t.Errorf("identifier not defaulted: %q", s.OpenAI.APIKeyIdentifier)
	}
	if s.UI.Theme != "dark" {
		t.Errorf("theme not defaulted: %q", s.UI.Theme)
	}
}

func TestLoadFrom_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ollama]\nendpoint_url = \"not a url\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("a config that fails validation must not load")
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	s := Default()
	s.DefaultModel = "gpt-4o-mini"
	s.DefaultProvider = "openai"
	s.Capture.Target = "clipboard"
	s.Capture.Targets = []CaptureTarget{
		{Name: "clipboard", Command: []string{"pbpaste"}, Extension: "txt"},
	}

	if err := SaveTo(s, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.DefaultModel != "gpt-4o-mini" || loaded.DefaultProvider != "openai" {
		t.Errorf("model selection lost: %+v", loaded)
	}
	if len(loaded.Capture.Targets) != 1 || loaded.Capture.Targets[0].Name != "clipboard" {
		t.Errorf("capture targets lost: %+v", loaded.Capture.Targets)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DRAFTPATCH_MODEL", "gemma3:27b")
	t.Setenv("DRAFTPATCH_OLLAMA_URL", "http://10.0.0.5:11434")
	t.Setenv("DRAFTPATCH_LOCAL_ONLY", "true")

	s := Default()
	s.ApplyEnvOverrides()

	if s.DefaultModel != "gemma3:27b" {
		t.Errorf("DRAFTPATCH_MODEL not applied: %q", s.DefaultModel)
	}
	if s.Ollama.EndpointURL != "http://10.0.0.5:11434" {
		t.Errorf("DRAFTPATCH_OLLAMA_URL not applied: %q", s.Ollama.EndpointURL)
	}
	if s.OpenAI.Enabled || s.Gemini.Enabled || s.Anthropic.Enabled {
		t.Error("DRAFTPATCH_LOCAL_ONLY must disable every cloud provider")
	}
	if !s.Ollama.Enabled {
		t.Error("DRAFTPATCH_LOCAL_ONLY must leave the local provider on")
	}
}

func TestApplyEnvOverrides_UnsetLeavesConfig(t *testing.T) {
	t.Setenv("DRAFTPATCH_MODEL", "")
	t.Setenv("DRAFTPATCH_OLLAMA_URL", "")
	t.Setenv("DRAFTPATCH_LOCAL_ONLY", "")

	s := Default()
	s.DefaultModel = "kept"
	s.ApplyEnvOverrides()

	if s.DefaultModel != "kept" {
		t.Errorf("empty env vars must not override: %q", s.DefaultModel)
	}
	if !s.OpenAI.Enabled {
		t.Error("cloud providers must stay enabled without DRAFTPATCH_LOCAL_ONLY")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(s *Settings) {},
		},
		{
			name: "bad ollama url",
			mutate: func(s *Settings) {
				s.Ollama.EndpointURL = "not a url"
			},
			wantErr: true,
		},
		{
			name: "bad url ignored when provider disabled",
			mutate: func(s *Settings) {
				s.Ollama.Enabled = false
				s.Ollama.EndpointURL = "not a url"
			},
		},
		{
			name: "capture target without name",
			mutate: func(s *Settings) {
				s.Capture.Targets = []CaptureTarget{{Path: "/tmp/x"}}
			},
			wantErr: true,
		},
		{
			name: "capture target with neither path nor command",
			mutate: func(s *Settings) {
				s.Capture.Targets = []CaptureTarget{{Name: "empty"}}
			},
			wantErr: true,
		},
		{
			name: "capture target with both path and command",
			mutate: func(s *Settings) {
				s.Capture.Targets = []CaptureTarget{{Name: "both", Path: "/tmp/x", Command: []string{"cat"}}}
			},
			wantErr: true,
		},
		{
			name: "valid file target",
			mutate: func(s *Settings) {
				s.Capture.Targets = []CaptureTarget{{Name: "notes", Path: "/tmp/notes.md"}}
			},
		},
		{
			name: "valid command target",
			mutate: func(s *Settings) {
				s.Capture.Targets = []CaptureTarget{{Name: "clip", Command: []string{"pbpaste"}}}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestCaptureTargetByName(t *testing.T) {
	s := Default()
	s.Capture.Targets = []CaptureTarget{
		{Name: "notes", Path: "/tmp/notes.md"},
		{Name: "clip", Command: []string{"pbpaste"}},
	}

	if got := s.CaptureTargetByName("clip"); got == nil || got.Command[0] != "pbpaste" {
		t.Errorf("lookup failed: %+v", got)
	}
	if got := s.CaptureTargetByName("missing"); got != nil {
		t.Errorf("unknown name must resolve to nil, got %+v", got)
	}
}
