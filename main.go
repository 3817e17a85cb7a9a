// DraftPatch - multi-provider streaming LLM chat for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Robdel12/DraftPatch/internal/capture"
	"github.com/Robdel12/DraftPatch/internal/chat"
	"github.com/Robdel12/DraftPatch/internal/config"
	"github.com/Robdel12/DraftPatch/internal/llm"
	"github.com/Robdel12/DraftPatch/internal/llm/anthropic"
	"github.com/Robdel12/DraftPatch/internal/llm/gemini"
	"github.com/Robdel12/DraftPatch/internal/llm/ollama"
	"github.com/Robdel12/DraftPatch/internal/llm/openai"
	"github.com/Robdel12/DraftPatch/internal/secrets"
	"github.com/Robdel12/DraftPatch/internal/storage"
	uichat "github.com/Robdel12/DraftPatch/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "", "tui":
		runTUI()
	case "auth":
		runAuth(args[1:])
	case "models":
		runModels(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("draftpatch %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`DraftPatch - multi-provider streaming LLM chat

Usage:
  draftpatch              Start the chat TUI
  draftpatch auth <provider> [--delete]
                          Store (or remove) a provider API key
  draftpatch models       List models discovered across enabled providers
  draftpatch models pull <name>
                          Download a model to the local Ollama server
  draftpatch models rm <name>
                          Remove a model from the local Ollama server
  draftpatch version      Print version information

Providers: openai, gemini, anthropic`)
}

// =============================================================================
// WIRING
// =============================================================================

// loadSettings loads the config file, falling back to defaults so a
// broken config never blocks startup.
func loadSettings() *config.Settings {
	settings, err := config.Load()
	if err != nil {
		log.Printf("config: %v (using defaults)", err)
		return config.Default()
	}
	return settings
}

// openSecrets opens the credential store. A nil store degrades cloud
// providers to unauthenticated.
func openSecrets() *secrets.Store {
	dir, err := secrets.DefaultDir()
	if err != nil {
		log.Printf("secrets: %v", err)
		return nil
	}
	store, err := secrets.Open(dir)
	if err != nil {
		log.Printf("secrets: %v", err)
		return nil
	}
	return store
}

// keyFunc resolves a credential by name on every request, so keys added
// through `draftpatch auth` take effect without a restart.
func keyFunc(store *secrets.Store, name string) func() string {
	return func() string {
		if store == nil {
			return ""
		}
		key, err := store.Load(name)
		if err != nil {
			return ""
		}
		return key
	}
}

// buildRegistry wires one client per provider.
func buildRegistry(settings *config.Settings, store *secrets.Store) *llm.Registry {
	ollamaCfg := ollama.DefaultConfig()
	if settings.Ollama.EndpointURL != "" {
		ollamaCfg.BaseURL = settings.Ollama.EndpointURL
	}

	openaiCfg := openai.DefaultConfig()
	openaiCfg.KeyFunc = keyFunc(store, settings.OpenAI.APIKeyIdentifier)

	geminiCfg := gemini.DefaultConfig()
	geminiCfg.KeyFunc = keyFunc(store, settings.Gemini.APIKeyIdentifier)

	anthropicCfg := anthropic.DefaultConfig()
	anthropicCfg.KeyFunc = keyFunc(store, settings.Anthropic.APIKeyIdentifier)

	return llm.NewRegistry(map[llm.Provider]llm.Service{
		llm.ProviderOllama:    ollama.NewClientWithConfig(ollamaCfg),
		llm.ProviderOpenAI:    openai.NewClientWithConfig(openaiCfg),
		llm.ProviderGemini:    gemini.NewClientWithConfig(geminiCfg),
		llm.ProviderAnthropic: anthropic.NewClientWithConfig(anthropicCfg),
	})
}

// enabledProviders lists the providers that participate in discovery.
func enabledProviders(settings *config.Settings) []llm.Provider {
	var enabled []llm.Provider
	if settings.Ollama.Enabled {
		enabled = append(enabled, llm.ProviderOllama)
	}
	if settings.OpenAI.Enabled {
		enabled = append(enabled, llm.ProviderOpenAI)
	}
	if settings.Gemini.Enabled {
		enabled = append(enabled, llm.ProviderGemini)
	}
	if settings.Anthropic.Enabled {
		enabled = append(enabled, llm.ProviderAnthropic)
	}
	return enabled
}

// captureSource builds the configured capture source, nil when capture
// is disabled or unconfigured.
func captureSource(settings *config.Settings) capture.Source {
	if !settings.Capture.Enabled || settings.Capture.Target == "" {
		return nil
	}
	return capture.NewSource(settings.CaptureTargetByName(settings.Capture.Target))
}

// =============================================================================
// TUI
// =============================================================================

func runTUI() {
	settings := loadSettings()
	secretStore := openSecrets()

	dbPath, err := storage.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := buildRegistry(settings, secretStore)
	manager := llm.NewManager(registry)
	orch := chat.NewOrchestrator(manager, store).
		WithCapture(captureSource(settings))

	ctx := context.Background()
	threads := orch.Restore(ctx)
	if len(threads) > 0 {
		orch.SetThread(threads[0])
	} else {
		orch.NewThread()
	}
	applyDefaultModel(orch, settings)

	program := tea.NewProgram(uichat.New(orch), tea.WithAltScreen())
	orch.OnChange(func() {
		program.Send(uichat.RefreshMsg{})
	})

	// Model discovery runs in the background so a slow or down provider
	// never blocks first paint.
	go func() {
		_, errs := orch.RefreshModels(ctx, enabledProviders(settings))
		for provider, err := range errs {
			log.Printf("discovery: %s: %v", provider, err)
		}
		applyDefaultModel(orch, settings)
		program.Send(uichat.RefreshMsg{})
	}()

	// Live-reload capture and provider toggles on config edits.
	watcher, err := config.NewWatcher(func(updated *config.Settings) {
		orch.WithCapture(captureSource(updated))
		program.Send(uichat.RefreshMsg{})
	})
	if err != nil {
		log.Printf("config watch: %v", err)
	} else if err := watcher.Watch(); err != nil {
		log.Printf("config watch: %v", err)
	} else {
		defer watcher.Close()
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyDefaultModel pins the configured default model when it is known.
func applyDefaultModel(orch *chat.Orchestrator, settings *config.Settings) {
	if settings.DefaultModel == "" {
		return
	}
	if _, ok := orch.SelectedModel(); ok {
		return
	}
	for _, m := range orch.Models() {
		if m.Name != settings.DefaultModel {
			continue
		}
		if settings.DefaultProvider != "" && string(m.Provider) != settings.DefaultProvider {
			continue
		}
		orch.SelectModel(m)
		return
	}
}

// =============================================================================
// AUTH SUBCOMMAND
// =============================================================================

func runAuth(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: draftpatch auth <openai|gemini|anthropic> [--delete]")
		os.Exit(1)
	}

	settings := loadSettings()
	identifier := ""
	switch strings.ToLower(args[0]) {
	case "openai":
		identifier = settings.OpenAI.APIKeyIdentifier
	case "gemini":
		identifier = settings.Gemini.APIKeyIdentifier
	case "anthropic":
		identifier = settings.Anthropic.APIKeyIdentifier
	default:
		fmt.Fprintf(os.Stderr, "Unknown provider: %s\n", args[0])
		os.Exit(1)
	}

	store := openSecrets()
	if store == nil {
		fmt.Fprintln(os.Stderr, "Error: credential store unavailable")
		os.Exit(1)
	}

	if len(args) > 1 && args[1] == "--delete" {
		if err := store.Delete(identifier); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed credential %s\n", identifier)
		return
	}

	// SECURITY: Read the key without echoing it to the terminal.
	fmt.Printf("API key for %s: ", args[0])
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(key) == 0 {
		fmt.Fprintln(os.Stderr, "Error: empty key")
		os.Exit(1)
	}

	if err := store.Save(identifier, string(key)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stored credential %s\n", identifier)
}

// =============================================================================
// MODELS SUBCOMMAND
// =============================================================================

func runModels(args []string) {
	settings := loadSettings()

	if len(args) > 0 {
		switch args[0] {
		case "pull":
			runModelPull(settings, args[1:])
		case "rm":
			runModelRemove(settings, args[1:])
		default:
			fmt.Fprintf(os.Stderr, "Unknown models subcommand: %s\n", args[0])
			os.Exit(1)
		}
		return
	}

	registry := buildRegistry(settings, openSecrets())
	manager := llm.NewManager(registry)

	models, errs := manager.LoadModels(context.Background(), enabledProviders(settings), nil)
	for provider, err := range errs {
		fmt.Fprintf(os.Stderr, "%s: %v\n", provider, err)
	}
	if len(models) == 0 {
		fmt.Println("No models discovered.")
		return
	}

	fmt.Printf("%-12s %s\n", "PROVIDER", "MODEL")
	for _, m := range models {
		fmt.Printf("%-12s %s\n", m.Provider, m.Label())
	}
}

// localClient builds an Ollama client for model management. Pull and
// delete are local-server operations, so no registry is needed.
func localClient(settings *config.Settings) *ollama.Client {
	cfg := ollama.DefaultConfig()
	if settings.Ollama.EndpointURL != "" {
		cfg.BaseURL = settings.Ollama.EndpointURL
	}
	return ollama.NewClientWithConfig(cfg)
}

func runModelPull(settings *config.Settings, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: draftpatch models pull <name>")
		os.Exit(1)
	}
	name := args[0]

	lastStatus := ""
	err := localClient(settings).PullModel(context.Background(), name, func(p ollama.PullProgress) {
		if p.Total > 0 {
			fmt.Printf("\r%-24s %3d%%", p.Status, p.Completed*100/p.Total)
			lastStatus = p.Status
			return
		}
		if p.Status != lastStatus {
			if lastStatus != "" {
				fmt.Println()
			}
			fmt.Print(p.Status)
			lastStatus = p.Status
		}
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pulled %s\n", name)
}

func runModelRemove(settings *config.Settings, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: draftpatch models rm <name>")
		os.Exit(1)
	}
	name := args[0]
	if err := localClient(settings).DeleteModel(context.Background(), name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s\n", name)
}
