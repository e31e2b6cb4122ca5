// chatmux - A terminal client for streaming LLM chat with resilient retries.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatmux/internal/config"
	"github.com/jeranaias/chatmux/internal/provider"
	"github.com/jeranaias/chatmux/internal/retry"
	"github.com/jeranaias/chatmux/internal/session"
	"github.com/jeranaias/chatmux/internal/store"
	"github.com/jeranaias/chatmux/internal/tools"
	"github.com/jeranaias/chatmux/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("chatmux %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.shutdown()

	if len(args) == 0 {
		err = app.runNew()
	} else {
		switch args[0] {
		case "list":
			err = app.runList()
		case "open":
			if len(args) < 2 {
				err = fmt.Errorf("usage: chatmux open <conversation-id>")
			} else {
				err = app.runOpen(args[1])
			}
		case "delete":
			if len(args) < 2 {
				err = fmt.Errorf("usage: chatmux delete <conversation-id>")
			} else {
				err = app.runDelete(args[1])
			}
		default:
			printUsage()
			err = fmt.Errorf("unknown command: %s", args[0])
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		app.shutdown()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`chatmux - streaming LLM chat

Usage:
  chatmux              Start a new conversation
  chatmux list         List saved conversations
  chatmux open <id>    Reopen a conversation
  chatmux delete <id>  Delete a conversation
  chatmux version      Print version information

Configuration lives in ~/.chatmux/config.toml.`)
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the wired application collaborators.
type app struct {
	cfg       *config.Config
	store     store.Store
	providers *provider.Manager
	registry  *session.Registry
	watcher   *config.Watcher
	logFile   *os.File
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	// The TUI owns stdout; logs go to a file next to the config.
	if dir, err := config.ConfigDir(); err == nil {
		if err := os.MkdirAll(dir, 0755); err == nil {
			if f, err := os.OpenFile(filepath.Join(dir, "chatmux.log"),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
				log.SetOutput(f)
				a.logFile = f
			}
		}
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	a.store = st

	a.providers = provider.NewManager()
	applyProviders(a.providers, cfg)

	toolReg := tools.NewRegistry()
	if cfg.Tools.Enabled {
		root := cfg.Tools.Root
		if root == "" {
			root, _ = os.Getwd()
		}
		if err := tools.RegisterBuiltins(toolReg, root); err != nil {
			return nil, err
		}
	}

	a.registry = session.NewRegistry(st, a.providers, toolReg, session.Options{
		GracePeriod: cfg.GracePeriod(),
		Retry: retry.Policy{
			BaseDelay:      cfg.BaseDelay(),
			MaxDelay:       cfg.MaxDelay(),
			JitterFraction: retry.DefaultJitterFraction,
			MaxRetries:     cfg.Retry.MaxRetries,
		},
		MaxToolTurns:    cfg.Session.MaxToolTurns,
		ToolCallTimeout: time.Duration(cfg.Tools.CallTimeoutSecs) * time.Second,
		SystemPrompt:    cfg.SystemPrompt,
	})

	// Config edits take effect without a restart: provider instances
	// are re-registered, which invalidates cached clients and models.
	if path, err := config.ConfigPath(); err == nil {
		if w, err := config.NewWatcher(path, func(next *config.Config) {
			applyProviders(a.providers, next)
		}); err == nil {
			a.watcher = w
		} else {
			log.Printf("config watcher unavailable: %v", err)
		}
	}

	return a, nil
}

// applyProviders syncs the provider manager with the configured set.
func applyProviders(m *provider.Manager, cfg *config.Config) {
	known := make(map[string]bool)
	for _, p := range cfg.Providers {
		known[p.ID] = true
		m.Upsert(provider.Instance{
			ID:       p.ID,
			Name:     p.Name,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			ModelTTL: time.Duration(p.ModelTTLSecs) * time.Second,
		})
	}
	for _, inst := range m.Instances() {
		if !known[inst.ID] {
			m.Remove(inst.ID)
		}
	}
}

func (a *app) shutdown() {
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	if a.registry != nil {
		a.registry.Shutdown()
		a.registry = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (a *app) runNew() error {
	handle, err := a.registry.Create(context.Background(), a.cfg.DefaultProvider, a.cfg.DefaultModel)
	if err != nil {
		return err
	}
	return a.runTUI(handle)
}

func (a *app) runOpen(id string) error {
	handle, err := a.registry.Open(context.Background(), id)
	if err != nil {
		return err
	}
	return a.runTUI(handle)
}

func (a *app) runTUI(handle *session.Handle) error {
	defer handle.Close()
	p := tea.NewProgram(chat.New(a.registry, handle), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *app) runList() error {
	metas, err := a.store.List(context.Background())
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-40s  %3d msgs  %s\n",
			m.ID, title, m.MessageCount, m.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *app) runDelete(id string) error {
	if err := a.store.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %s\n", id)
	return nil
}
