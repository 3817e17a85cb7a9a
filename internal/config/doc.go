// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for DraftPatch.
//
// # Key Types
//
//   - Settings: the one aggregate holding all installation settings
//   - OllamaSettings / CloudSettings: per-provider configuration
//   - CaptureSettings: external text capture targets
//   - Watcher: live reload on config file changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DRAFTPATCH_*)
//   - ~/.draftpatch/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	settings, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// API keys are never stored here; CloudSettings.APIKeyIdentifier names a
// credential in the secret store.
package config
