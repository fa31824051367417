// polychat - A terminal chat client for several AI model providers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jeranaias/polychat/internal/cli"
	"github.com/jeranaias/polychat/internal/config"
	"github.com/jeranaias/polychat/internal/dispatch"
	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
	"github.com/jeranaias/polychat/internal/response"
	"github.com/jeranaias/polychat/internal/state"
	"github.com/jeranaias/polychat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds the final flush of pending saves.
const shutdownTimeout = 10 * time.Second

const usageText = `polychat - chat with OpenAI, Claude, Llama and Gemini models

Usage:
  polychat [flags]

Flags:
  --config PATH     Config file (default ~/.polychat/config.toml)
  --model ID        Model for new chats (see /models)
  --temp            Start in temporary mode (nothing is saved)
  --quiet           Skip the banner and timing lines
  --no-color        Disable colors
  --print-config    Print the effective config with keys masked and exit
  --version         Print version and exit
  --help            Show this help

Environment:
  OPENAI_API_KEY, ANTHROPIC_API_KEY, LLAMA_API_KEY, GOOGLE_API_KEY
  POLYCHAT_STORAGE (file, sqlite, postgres, mongo, memory)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "polychat: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	args := cli.NewArgParser(argv, "help", "version", "temp", "quiet", "no-color", "print-config")
	switch {
	case args.BoolFlag("help"):
		fmt.Print(usageText)
		return nil
	case args.BoolFlag("version"):
		fmt.Printf("polychat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	}

	loadOpts := config.LoadOptions{Path: args.Flag("config")}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return err
	}
	if id := args.Flag("model"); id != "" {
		cfg.DefaultModel = id
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if args.BoolFlag("no-color") {
		cfg.Log.NoColor = true
	}
	if args.BoolFlag("print-config") {
		fmt.Print(cfg.String())
		return nil
	}

	log, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	cli.ConfigureColor(cfg.Log.NoColor)

	// Storage
	storeOpts := cfg.StorageOptions()
	storeOpts.Logger = log
	store, err := storage.Open(storeOpts)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	gwOpts := cfg.GatewayOptions()
	gwOpts.Logger = log
	gateway := storage.NewGateway(store, gwOpts)

	chats := state.New(state.Options{Persister: gateway, DefaultModelID: cfg.DefaultModel})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loadChats(ctx, gateway, chats, log)

	// Providers
	keys := provider.NewKeyring(cfg.Keys())
	registry := provider.NewRegistry(
		provider.NewOpenAI(keys, cfg.ProviderOptions(model.ProviderOpenAI)),
		provider.NewClaude(keys, cfg.ProviderOptions(model.ProviderClaude)),
		provider.NewLlama(keys, cfg.ProviderOptions(model.ProviderLlama)),
		provider.NewGemini(keys, cfg.ProviderOptions(model.ProviderGemini)),
	)
	if len(cfg.Keys()) == 0 {
		log.Warn("no provider API keys configured", "hint", "set OPENAI_API_KEY or edit the config file")
	}

	orch := dispatch.New(dispatch.Options{
		State:    chats,
		Invoker:  registry,
		Resolver: response.NewNormalizer(response.NewHTTPMaterializer(nil), log),
		Notifier: cli.NewNoticePrinter(os.Stdout),
		Logger:   log,
	})

	// Credentials follow edits to the config file.
	watcher, err := config.Watch(config.WatchOptions{
		Load: loadOpts,
		OnChange: func(c *config.Config) {
			keys.Replace(c.Keys())
			log.Info("config reloaded", "providers", len(c.Keys()))
		},
		OnError: func(err error) {
			log.Warn("config reload failed", logger.Err(err))
		},
	})
	if err != nil {
		log.Debug("config watch disabled", logger.Err(err))
	} else {
		defer watcher.Close()
	}

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			if n := orch.StopAll(); n > 0 {
				log.Debug("stopped pending replies", "count", n)
			}
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := gateway.Close(sctx); err != nil {
				log.Error("storage shutdown failed", logger.Err(err))
			}
		})
	}
	defer shutdown()

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM)
	defer signal.Stop(term)
	go func() {
		if _, ok := <-term; ok {
			log.Info("terminating")
			shutdown()
			os.Exit(143)
		}
	}()

	if args.BoolFlag("temp") {
		chats.SetTemporaryMode(true)
	}

	// Shell
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	input := cli.NewLineInput(cfg.UI.HistoryFile)
	sh := cli.NewShell(cli.Options{
		State:        chats,
		Orchestrator: orch,
		Sync:         gateway,
		Input:        input,
		Out:          os.Stdout,
		Interrupts:   interrupts,
		Renderer: cli.NewRenderer(cli.RenderOptions{
			Markdown: cfg.UI.Markdown && cli.IsStdoutTTY(),
			Style:    cfg.UI.Style,
			Width:    cli.TerminalWidth(cfg.UI.Width),
		}),
		DefaultModel: cfg.DefaultModel,
		Quiet:        args.BoolFlag("quiet"),
		Logger:       log,
	})
	input.SetCommands(sh.CommandNames())

	runErr := sh.Run(ctx)
	if err := input.Close(); err != nil {
		log.Warn("saving input history failed", logger.Err(err))
	}
	return runErr
}

// loadChats restores persisted chats into the store. A storage failure
// leaves the store empty and the shell usable.
func loadChats(ctx context.Context, gateway *storage.Gateway, chats *state.Store, log *slog.Logger) {
	chats.SetLoading(true)
	defer chats.SetLoading(false)

	if err := gateway.Initialize(ctx); err != nil {
		log.Warn("storage unavailable, chats will be saved once it recovers", logger.Err(err))
		return
	}
	loaded, ok := gateway.LoadAll(ctx)
	if !ok {
		return
	}
	chats.LoadChats(loaded)
	log.Debug("chats loaded", "count", len(loaded))
}

// openLogger builds the process logger. A log file gets plain text.
func openLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	opts := cfg.LoggerOptions()
	var out io.Writer = os.Stderr
	closer := func() {}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		opts.NoColor = true
		closer = func() { f.Close() }
	}

	log := slog.New(logger.NewHandler(out, opts))
	slog.SetDefault(log)
	return log, closer, nil
}
