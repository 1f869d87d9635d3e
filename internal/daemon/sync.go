// Package daemon implements the background sync loop that keeps the remote
// store's view of commits and plan documents current for every actively
// orchestrated worktree.
package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/overclockedllc/overseer/internal/logging"
	"github.com/overclockedllc/overseer/internal/registry"
	"github.com/overclockedllc/overseer/internal/state"
	"github.com/overclockedllc/overseer/internal/store"
	"github.com/overclockedllc/overseer/internal/worktree"
)

// GitLog is the read-only git surface the syncer needs per worktree.
type GitLog interface {
	HeadSHA() (string, error)
	CommitsSince(sinceSHA string) ([]worktree.Commit, error)
}

// GitOpener opens a GitLog for a worktree directory. The default wraps the
// real git CLI; tests substitute a fake.
type GitOpener func(dir string) GitLog

func defaultGitOpener(dir string) GitLog {
	return worktree.NewGit(dir)
}

// planFileRegex matches date-prefixed plan documents, e.g.
// 2026-08-30-auth-rework.md.
var planFileRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-.+\.md$`)

// CycleStats summarizes one sync cycle.
type CycleStats struct {
	Worktrees     int
	CommitsSynced int
	PlansSynced   int
	Failures      int
}

// Syncer reconciles worktrees against the remote store.
type Syncer struct {
	registry *registry.Registry
	store    store.Store
	openGit  GitOpener
	plansDir string
	logger   *logging.Logger
}

// NewSyncer creates a Syncer. plansDir is the plan-document directory
// relative to each worktree root.
func NewSyncer(reg *registry.Registry, st store.Store, plansDir string, logger *logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Syncer{
		registry: reg,
		store:    st,
		openGit:  defaultGitOpener,
		plansDir: plansDir,
		logger:   logger,
	}
}

// WithGitOpener overrides how worktree git handles are opened, for testing.
func (s *Syncer) WithGitOpener(open GitOpener) *Syncer {
	s.openGit = open
	return s
}

// RunCycle reconciles every active worktree once. A failure on one worktree
// is logged and skipped; it never aborts the cycle.
func (s *Syncer) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats

	records, err := s.registry.List()
	if err != nil {
		s.logger.Error("failed to enumerate registry", "error", err)
		stats.Failures++
		return stats
	}

	for _, rec := range records {
		log := s.logger.WithFeature(rec.Feature)

		orch, err := s.store.FetchOrchestrationByFeature(ctx, rec.Feature)
		if err != nil {
			log.Warn("orchestration not in store, skipping worktree", "error", err)
			stats.Failures++
			continue
		}
		if orch.Status == state.StatusComplete {
			continue
		}

		stats.Worktrees++

		commits, err := s.syncCommits(ctx, rec, orch)
		if err != nil {
			log.Error("commit sync failed, skipping worktree for this cycle", "error", err)
			stats.Failures++
			continue
		}
		stats.CommitsSynced += commits

		plans, err := s.syncPlans(ctx, rec)
		if err != nil {
			log.Error("plan sync failed, skipping worktree for this cycle", "error", err)
			stats.Failures++
			continue
		}
		stats.PlansSynced += plans
	}

	return stats
}

// syncCommits upserts every commit newer than the last-synced SHA, oldest
// first so phase attribution by timestamp stays consistent.
func (s *Syncer) syncCommits(ctx context.Context, rec *registry.Record, orch *state.Orchestration) (int, error) {
	git := s.openGit(rec.Worktree)

	lastSHA, err := s.store.LastSyncedSHA(ctx, rec.Feature)
	if err != nil {
		return 0, err
	}

	commits, err := git.CommitsSince(lastSHA)
	if err != nil {
		return 0, err
	}
	if len(commits) == 0 {
		return 0, nil
	}

	synced := 0
	for _, c := range commits {
		inserted, err := s.store.UpsertCommit(ctx, rec.Feature, store.CommitRecord{
			SHA:       c.SHA,
			Phase:     attributePhase(orch, c.Timestamp),
			Author:    c.Author,
			Timestamp: c.Timestamp,
			Subject:   c.Subject,
		})
		if err != nil {
			return synced, err
		}
		if inserted {
			synced++
		}
	}

	if err := s.store.SetLastSyncedSHA(ctx, rec.Feature, commits[len(commits)-1].SHA); err != nil {
		return synced, err
	}
	return synced, nil
}

// attributePhase maps a commit timestamp to a phase number. Commits landing
// before any phase started belong to phase 1; commits inside a phase's
// [started, ended] window belong to that phase; commits after the last
// window belong to the most recently started phase.
func attributePhase(orch *state.Orchestration, ts time.Time) int {
	attributed := 0
	for _, p := range orch.Phases {
		if p.StartedAt == nil {
			continue
		}
		if ts.Before(*p.StartedAt) {
			break
		}
		attributed = p.Number
		if p.EndedAt == nil || !ts.After(*p.EndedAt) {
			return p.Number
		}
	}
	if attributed == 0 {
		return 1
	}
	return attributed
}

// syncPlans upserts every changed plan document in the worktree's plan
// directory. An absent directory means no plans yet, not an error.
func (s *Syncer) syncPlans(ctx context.Context, rec *registry.Record) (int, error) {
	dir := filepath.Join(rec.Worktree, s.plansDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	synced := 0
	for _, entry := range entries {
		if entry.IsDir() || !planFileRegex.MatchString(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			// A plan removed mid-scan just waits for the next cycle.
			continue
		}
		sum := sha256.Sum256(data)

		relPath := filepath.Join(s.plansDir, entry.Name())
		changed, err := s.store.UpsertPlan(ctx, rec.Feature, store.PlanRecord{
			Path:      relPath,
			Digest:    hex.EncodeToString(sum[:]),
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return synced, err
		}
		if changed {
			synced++
		}
	}
	return synced, nil
}
