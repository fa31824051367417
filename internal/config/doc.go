// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for polychat.
//
// Settings come from a TOML file, then environment variables, on top of
// built-in defaults. The core packages never read configuration themselves;
// main maps a Config onto their option structs.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ProviderConfig: Credentials and endpoint for one model provider
//   - StorageConfig: Persistence backend selection
//   - Watcher: Reloads the file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, POLYCHAT_*, ...)
//   - ~/.polychat/config.toml, or the path given to Load
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load(config.LoadOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	keys := provider.NewKeyring(cfg.Keys())
package config
