package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/overclockedllc/overseer/internal/config"
	"github.com/overclockedllc/overseer/internal/logging"
	"github.com/overclockedllc/overseer/internal/orchestrator"
	"github.com/overclockedllc/overseer/internal/registry"
	"github.com/overclockedllc/overseer/internal/store"
	"github.com/overclockedllc/overseer/internal/tmux"
	"github.com/overclockedllc/overseer/internal/worktree"
)

// appDeps bundles the shared wiring every subcommand needs.
type appDeps struct {
	cfg      *config.Config
	logger   *logging.Logger
	repoRoot string
	registry *registry.Registry
	store    store.Store
	tmux     *tmux.Client
}

// buildDeps resolves configuration and opens the registry and store for the
// current repository. The returned closer must be called before exit.
func buildDeps() (*appDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	logger, err := logging.New(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	stateDir := cfg.Paths.ResolveStateDir(repoRoot)
	reg, err := registry.New(filepath.Join(stateDir, "registry"))
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = store.OpenSQLite(cfg.ResolveDatabasePath(repoRoot))
		if err != nil {
			logger.Close()
			return nil, nil, err
		}
	}

	deps := &appDeps{
		cfg:      cfg,
		logger:   logger,
		repoRoot: repoRoot,
		registry: reg,
		store:    st,
		tmux:     tmux.NewClient(),
	}
	closer := func() {
		st.Close()
		logger.Close()
	}
	return deps, closer, nil
}

// coordinator builds the orchestrator wired to this repo's worktree manager.
func (d *appDeps) coordinator() *orchestrator.Coordinator {
	return orchestrator.New(d.store, d.registry, worktree.NewManager(d.repoRoot), d.cfg, d.logger)
}
