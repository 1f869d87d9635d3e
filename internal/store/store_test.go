package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/state"
)

// openStores returns every backend under test keyed by name.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "overseer.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func seedOrchestration(t *testing.T, s Store, feature string) *state.Orchestration {
	t.Helper()
	o, err := state.NewOrchestration(feature, "/work/"+feature, "overseer/"+feature, 2)
	if err != nil {
		t.Fatalf("NewOrchestration() error = %v", err)
	}
	if err := s.CreateOrchestration(context.Background(), o); err != nil {
		t.Fatalf("CreateOrchestration() error = %v", err)
	}
	return o
}

func TestCreateAndFetchOrchestration(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := seedOrchestration(t, s, "auth-flow")
			if created.ID == "" {
				t.Error("CreateOrchestration() did not assign an ID")
			}

			got, err := s.FetchOrchestrationByFeature(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("FetchOrchestrationByFeature() error = %v", err)
			}
			if got.Feature != "auth-flow" || got.Worktree != "/work/auth-flow" {
				t.Errorf("fetched orchestration = %+v", got)
			}
			if got.Status != state.StatusPlanning {
				t.Errorf("Status = %v, want planning", got.Status)
			}
			if len(got.Phases) != 2 {
				t.Fatalf("len(Phases) = %d, want 2", len(got.Phases))
			}
			if got.Phases[0].Number != 1 || got.Phases[1].Number != 2 {
				t.Errorf("phases out of order: %v, %v", got.Phases[0].Number, got.Phases[1].Number)
			}
		})
	}
}

func TestFetchMissingOrchestration(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FetchOrchestrationByFeature(context.Background(), "ghost")
			if !overseererrors.IsNotFound(err) {
				t.Errorf("error = %v, want not found", err)
			}
		})
	}
}

func TestUpdateOrchestrationPersistsTransitions(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			o := seedOrchestration(t, s, "auth-flow")

			if err := o.Transition(state.StatusPlanned); err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if err := o.Transition(state.StatusExecuting); err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if err := o.Phases[0].Transition(state.PhaseRunning); err != nil {
				t.Fatalf("phase Transition() error = %v", err)
			}
			o.Phases[0].Team = "core-team"

			if err := s.UpdateOrchestration(ctx, o); err != nil {
				t.Fatalf("UpdateOrchestration() error = %v", err)
			}

			got, err := s.FetchOrchestrationByFeature(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("FetchOrchestrationByFeature() error = %v", err)
			}
			if got.Status != state.StatusExecuting {
				t.Errorf("Status = %v, want executing", got.Status)
			}
			phase := got.Phase(1)
			if phase.Status != state.PhaseRunning {
				t.Errorf("phase status = %v, want running", phase.Status)
			}
			if phase.Team != "core-team" {
				t.Errorf("Team = %q, want core-team", phase.Team)
			}
			if phase.StartedAt == nil {
				t.Error("StartedAt not persisted")
			}
		})
	}
}

func TestUpdateMissingOrchestration(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			o, err := state.NewOrchestration("ghost", "/work/ghost", "branch", 1)
			if err != nil {
				t.Fatalf("NewOrchestration() error = %v", err)
			}
			if err := s.UpdateOrchestration(context.Background(), o); !overseererrors.IsNotFound(err) {
				t.Errorf("error = %v, want not found", err)
			}
		})
	}
}

func TestUpsertCommitIdempotent(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			commit := CommitRecord{
				SHA:       "abc123",
				Phase:     1,
				Author:    "dev",
				Timestamp: time.Now().UTC(),
				Subject:   "add login form",
			}

			inserted, err := s.UpsertCommit(ctx, "auth-flow", commit)
			if err != nil {
				t.Fatalf("UpsertCommit() error = %v", err)
			}
			if !inserted {
				t.Error("first upsert: inserted = false, want true")
			}

			inserted, err = s.UpsertCommit(ctx, "auth-flow", commit)
			if err != nil {
				t.Fatalf("second UpsertCommit() error = %v", err)
			}
			if inserted {
				t.Error("second upsert of same SHA: inserted = true, want false")
			}
		})
	}
}

func TestUpsertPlanDigestChange(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			plan := PlanRecord{
				Path:      "docs/plans/2026-08-30-auth.md",
				Digest:    "digest-1",
				UpdatedAt: time.Now().UTC(),
			}

			changed, err := s.UpsertPlan(ctx, "auth-flow", plan)
			if err != nil {
				t.Fatalf("UpsertPlan() error = %v", err)
			}
			if !changed {
				t.Error("first upsert: changed = false, want true")
			}

			changed, err = s.UpsertPlan(ctx, "auth-flow", plan)
			if err != nil {
				t.Fatalf("second UpsertPlan() error = %v", err)
			}
			if changed {
				t.Error("unchanged digest: changed = true, want false")
			}

			plan.Digest = "digest-2"
			changed, err = s.UpsertPlan(ctx, "auth-flow", plan)
			if err != nil {
				t.Fatalf("third UpsertPlan() error = %v", err)
			}
			if !changed {
				t.Error("new digest: changed = false, want true")
			}
		})
	}
}

func TestComments(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			if _, err := s.AddComment(ctx, "auth-flow", "daemon", "phase 1 started"); err != nil {
				t.Fatalf("AddComment() error = %v", err)
			}
			if _, err := s.AddComment(ctx, "auth-flow", "daemon", "phase 1 complete"); err != nil {
				t.Fatalf("AddComment() error = %v", err)
			}

			comments, err := s.ListComments(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("ListComments() error = %v", err)
			}
			if len(comments) != 2 {
				t.Fatalf("len(comments) = %d, want 2", len(comments))
			}
			if comments[0].Body != "phase 1 started" {
				t.Errorf("comments[0].Body = %q, want oldest first", comments[0].Body)
			}
		})
	}
}

func TestDesignAndTicket(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			if _, err := s.GetDesign(ctx, "auth-flow"); !overseererrors.IsNotFound(err) {
				t.Errorf("GetDesign() before update: error = %v, want not found", err)
			}
			if err := s.UpdateDesign(ctx, "auth-flow", "docs/design/auth.md"); err != nil {
				t.Fatalf("UpdateDesign() error = %v", err)
			}
			design, err := s.GetDesign(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("GetDesign() error = %v", err)
			}
			if design != "docs/design/auth.md" {
				t.Errorf("GetDesign() = %q", design)
			}

			if _, err := s.GetTicket(ctx, "auth-flow"); !overseererrors.IsNotFound(err) {
				t.Errorf("GetTicket() before update: error = %v, want not found", err)
			}
			if err := s.UpdateTicket(ctx, "auth-flow", "PROJ-421"); err != nil {
				t.Fatalf("UpdateTicket() error = %v", err)
			}
			ticket, err := s.GetTicket(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("GetTicket() error = %v", err)
			}
			if ticket != "PROJ-421" {
				t.Errorf("GetTicket() = %q, want PROJ-421", ticket)
			}
		})
	}
}

func TestLastSyncedSHA(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			sha, err := s.LastSyncedSHA(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("LastSyncedSHA() error = %v", err)
			}
			if sha != "" {
				t.Errorf("initial LastSyncedSHA() = %q, want empty", sha)
			}

			if err := s.SetLastSyncedSHA(ctx, "auth-flow", "abc123"); err != nil {
				t.Fatalf("SetLastSyncedSHA() error = %v", err)
			}
			sha, err = s.LastSyncedSHA(ctx, "auth-flow")
			if err != nil {
				t.Fatalf("LastSyncedSHA() error = %v", err)
			}
			if sha != "abc123" {
				t.Errorf("LastSyncedSHA() = %q, want abc123", sha)
			}

			if err := s.SetLastSyncedSHA(ctx, "auth-flow", "def456"); err != nil {
				t.Fatalf("SetLastSyncedSHA() update error = %v", err)
			}
			sha, _ = s.LastSyncedSHA(ctx, "auth-flow")
			if sha != "def456" {
				t.Errorf("LastSyncedSHA() after update = %q, want def456", sha)
			}
		})
	}
}

func TestRegisterTeam(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedOrchestration(t, s, "auth-flow")

			team := &state.Team{
				Name: "core-team",
				Lead: state.Agent{Name: "lead-1", Role: state.RoleLead, Alive: true},
				Workers: []state.Agent{
					{Name: "worker-1", Role: state.RoleWorker, Alive: true},
				},
			}
			if err := s.RegisterTeam(ctx, "auth-flow", 1, team); err != nil {
				t.Fatalf("RegisterTeam() error = %v", err)
			}

			// Re-registering the same phase replaces, not duplicates.
			if err := s.RegisterTeam(ctx, "auth-flow", 1, team); err != nil {
				t.Fatalf("RegisterTeam() replace error = %v", err)
			}
		})
	}
}

func TestSQLiteSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overseer.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}

	version, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != CurrentVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, CurrentVersion)
	}
	s.Close()

	// Reopening an existing database must not duplicate version rows or
	// lose data.
	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen OpenSQLite() error = %v", err)
	}
	defer s.Close()
	version, err = s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() after reopen error = %v", err)
	}
	if version != CurrentVersion {
		t.Errorf("SchemaVersion() after reopen = %d, want %d", version, CurrentVersion)
	}
}
