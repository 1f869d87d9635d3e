// Package orchestrator coordinates the full lifecycle of a feature's work
// session: planning the orchestration, starting phase sessions, advancing
// and blocking the state machine, and tearing everything down.
//
// The Coordinator validates every transition before touching tmux or the
// store, so a rejected operation leaves no partial side effects behind.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/overclockedllc/overseer/internal/config"
	"github.com/overclockedllc/overseer/internal/detect"
	"github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/logging"
	"github.com/overclockedllc/overseer/internal/registry"
	"github.com/overclockedllc/overseer/internal/state"
	"github.com/overclockedllc/overseer/internal/store"
	"github.com/overclockedllc/overseer/internal/tmux"
	"github.com/overclockedllc/overseer/internal/watch"
)

// commentAuthor is the author recorded on audit-trail comments the
// coordinator writes.
const commentAuthor = "overseer"

// SessionManager is the tmux surface the coordinator needs. tmux.Client
// satisfies it; tests substitute a fake.
type SessionManager interface {
	Exists(ctx context.Context, session string) bool
	Create(ctx context.Context, session, workdir, command string) error
	SendKeys(ctx context.Context, session, text string) error
	Capture(ctx context.Context, session string, maxLines int) (string, error)
	GracefulShutdown(ctx context.Context, session string, grace time.Duration) error
}

// WorktreeCreator creates git worktrees. worktree.Manager satisfies it.
type WorktreeCreator interface {
	Add(path, branch string) error
}

// Coordinator drives orchestrations end to end.
type Coordinator struct {
	store     store.Store
	registry  *registry.Registry
	sessions  SessionManager
	worktrees WorktreeCreator
	cfg       *config.Config
	logger    *logging.Logger

	// waiterFor builds the readiness waiter for a session; overridable so
	// tests can skip real polling delays.
	waiterFor func() *detect.Waiter
}

// New creates a Coordinator wired to the real tmux client.
func New(st store.Store, reg *registry.Registry, worktrees WorktreeCreator, cfg *config.Config, logger *logging.Logger) *Coordinator {
	return NewWithSessions(st, reg, tmux.NewClient(), worktrees, cfg, logger)
}

// NewWithSessions creates a Coordinator with an explicit session manager,
// for testing.
func NewWithSessions(st store.Store, reg *registry.Registry, sessions SessionManager, worktrees WorktreeCreator, cfg *config.Config, logger *logging.Logger) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	c := &Coordinator{
		store:     st,
		registry:  reg,
		sessions:  sessions,
		worktrees: worktrees,
		cfg:       cfg,
		logger:    logger,
	}
	c.waiterFor = func() *detect.Waiter {
		return detect.NewWaiter(sessions, cfg.Session.ReadyPollInterval(), cfg.Session.CaptureLines)
	}
	return c
}

// WithWaiterFactory overrides readiness-waiter construction, for testing.
func (c *Coordinator) WithWaiterFactory(f func() *detect.Waiter) *Coordinator {
	c.waiterFor = f
	return c
}

// PlanRequest describes a new orchestration.
type PlanRequest struct {
	Feature     string
	Worktree    string
	Branch      string
	TotalPhases int
	DesignDoc   string
	Ticket      string
}

// Plan creates the orchestration, its git worktree and branch, and the
// registry record. The orchestration starts in planning.
func (c *Coordinator) Plan(ctx context.Context, req PlanRequest) (*state.Orchestration, error) {
	// Reject bad names before any side effect; the registry would refuse
	// them anyway, but only after the worktree and store writes happened.
	if !registry.ValidFeature(req.Feature) {
		return nil, fmt.Errorf("feature %q: %w", req.Feature, errors.ErrInvalidFeature)
	}
	if c.registry.Exists(req.Feature) {
		return nil, fmt.Errorf("feature %q: %w", req.Feature, errors.ErrAlreadyExists)
	}

	orch, err := state.NewOrchestration(req.Feature, req.Worktree, req.Branch, req.TotalPhases)
	if err != nil {
		return nil, err
	}
	orch.DesignDoc = req.DesignDoc

	if err := c.worktrees.Add(req.Worktree, req.Branch); err != nil {
		return nil, err
	}

	if err := c.store.CreateOrchestration(ctx, orch); err != nil {
		return nil, err
	}
	if req.DesignDoc != "" {
		if err := c.store.UpdateDesign(ctx, req.Feature, req.DesignDoc); err != nil {
			return nil, err
		}
	}
	if req.Ticket != "" {
		if err := c.store.UpdateTicket(ctx, req.Feature, req.Ticket); err != nil {
			return nil, err
		}
	}

	if _, err := c.registry.Register(req.Feature, req.Worktree); err != nil {
		return nil, err
	}

	c.logger.WithFeature(req.Feature).Info("orchestration planned",
		"worktree", req.Worktree, "branch", req.Branch, "phases", req.TotalPhases)
	return orch, nil
}

// Start moves a planning orchestration to executing and launches its first
// phase session with the given kickoff prompt.
func (c *Coordinator) Start(ctx context.Context, feature, prompt string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}

	// A blocked orchestration re-enters execution through Recover, which
	// clears the blocked reason and restarts the session.
	if orch.Status == state.StatusBlocked {
		return errors.Wrapf(errors.NewInvalidStatusError("orchestration", string(orch.Status)),
			"start %s: use recover to resume a blocked orchestration", feature)
	}

	if orch.Status == state.StatusPlanning {
		if err := orch.Transition(state.StatusPlanned); err != nil {
			return err
		}
	}
	if err := orch.Transition(state.StatusExecuting); err != nil {
		return err
	}

	if err := c.startPhaseSession(ctx, orch, orch.CurrentPhase, prompt); err != nil {
		return err
	}

	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, fmt.Sprintf("phase %d started", orch.CurrentPhase))
	return nil
}

// StartNextPhase completes nothing; it launches the session for the current
// phase after AdvancePhase has moved the pointer forward.
func (c *Coordinator) StartNextPhase(ctx context.Context, feature, prompt string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}
	if orch.Status != state.StatusExecuting {
		return errors.NewInvalidStatusError("orchestration", string(orch.Status))
	}

	if err := c.startPhaseSession(ctx, orch, orch.CurrentPhase, prompt); err != nil {
		return err
	}
	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, fmt.Sprintf("phase %d started", orch.CurrentPhase))
	return nil
}

// startPhaseSession creates the phase's tmux session, waits for the agent
// prompt, sends the kickoff prompt, and marks the phase running. The phase
// transition is validated before any session is created.
func (c *Coordinator) startPhaseSession(ctx context.Context, orch *state.Orchestration, phaseNum int, prompt string) error {
	phase := orch.Phase(phaseNum)
	if phase == nil {
		return errors.NewNotFoundError("phase", fmt.Sprintf("%s/phase-%d", orch.Feature, phaseNum))
	}
	if !phase.Status.CanTransitionTo(state.PhaseRunning) {
		return errors.NewInvalidTransitionError("phase", string(phase.Status), string(state.PhaseRunning))
	}

	session := orch.SessionName(phaseNum)
	if err := c.sessions.Create(ctx, session, orch.Worktree, c.cfg.Session.AgentCommand); err != nil {
		return err
	}

	if err := c.waiterFor().WaitForReady(ctx, session, c.cfg.Session.ReadyTimeout()); err != nil {
		// The agent never became ready; tear the session down rather than
		// leaving a half-started phase behind.
		c.sessions.GracefulShutdown(ctx, session, c.cfg.Session.KillGrace())
		return err
	}

	if prompt != "" {
		if err := c.sessions.SendKeys(ctx, session, prompt); err != nil {
			return err
		}
	}

	return phase.Transition(state.PhaseRunning)
}

// AssignTeam records the team working the current phase, both on the phase
// record and in the store.
func (c *Coordinator) AssignTeam(ctx context.Context, feature string, team *state.Team) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}

	phase := orch.Phase(orch.CurrentPhase)
	phase.Team = team.Name

	if err := c.store.RegisterTeam(ctx, feature, orch.CurrentPhase, team); err != nil {
		return err
	}
	return c.store.UpdatePhase(ctx, feature, phase)
}

// CompletePhase marks the current phase complete. It refuses unless the
// phase's status artifact reports complete, so a phase cannot be closed out
// from the CLI while the agent still considers it running.
func (c *Coordinator) CompletePhase(ctx context.Context, feature string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}

	sf, err := watch.ReadStatusFile(watch.StatusFilePath(orch.Worktree, orch.CurrentPhase))
	if err != nil {
		return err
	}
	if sf == nil || sf.Status != watch.ResultComplete {
		return errors.NewInvalidStatusError("phase status artifact", artifactStatus(sf))
	}

	phase := orch.Phase(orch.CurrentPhase)
	if err := phase.Transition(state.PhaseComplete); err != nil {
		return err
	}

	completed := orch.CurrentPhase
	session := orch.SessionName(completed)
	if c.sessions.Exists(ctx, session) {
		if err := c.sessions.GracefulShutdown(ctx, session, c.cfg.Session.KillGrace()); err != nil {
			c.logger.WithFeature(feature).WithPhase(completed).Warn("session shutdown failed", "error", err)
		}
	}

	if completed == orch.TotalPhases {
		if err := orch.Transition(state.StatusReviewing); err != nil {
			return err
		}
	} else {
		if err := orch.AdvancePhase(); err != nil {
			return err
		}
	}

	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, fmt.Sprintf("phase %d complete", completed))
	return nil
}

// Finish closes out a reviewing orchestration.
func (c *Coordinator) Finish(ctx context.Context, feature string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}
	if err := orch.Transition(state.StatusComplete); err != nil {
		return err
	}
	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, "orchestration complete")
	return nil
}

// Block marks the orchestration and its current phase blocked. The reason
// is required and lands on the phase record and the comment trail.
func (c *Coordinator) Block(ctx context.Context, feature, reason string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}
	if err := orch.Block(reason); err != nil {
		return err
	}
	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, fmt.Sprintf("phase %d blocked: %s", orch.CurrentPhase, reason))
	return nil
}

// Recover moves a blocked orchestration back to executing and restarts the
// blocked phase's session with the given prompt.
func (c *Coordinator) Recover(ctx context.Context, feature, prompt string) error {
	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err != nil {
		return err
	}
	if err := orch.Recover(); err != nil {
		return err
	}

	session := orch.SessionName(orch.CurrentPhase)
	if c.sessions.Exists(ctx, session) {
		if err := c.sessions.GracefulShutdown(ctx, session, c.cfg.Session.KillGrace()); err != nil {
			return err
		}
	}
	if err := c.sessions.Create(ctx, session, orch.Worktree, c.cfg.Session.AgentCommand); err != nil {
		return err
	}
	if err := c.waiterFor().WaitForReady(ctx, session, c.cfg.Session.ReadyTimeout()); err != nil {
		c.sessions.GracefulShutdown(ctx, session, c.cfg.Session.KillGrace())
		return err
	}
	if prompt != "" {
		if err := c.sessions.SendKeys(ctx, session, prompt); err != nil {
			return err
		}
	}

	if err := c.store.UpdateOrchestration(ctx, orch); err != nil {
		return err
	}
	c.comment(ctx, feature, fmt.Sprintf("phase %d recovered", orch.CurrentPhase))
	return nil
}

// Cleanup shuts down every phase session and removes the registry record.
// The orchestration row stays in the store as history. An unknown feature
// returns NotFoundError.
func (c *Coordinator) Cleanup(ctx context.Context, feature string) error {
	if _, err := c.registry.Get(feature); err != nil {
		return err
	}

	orch, err := c.store.FetchOrchestrationByFeature(ctx, feature)
	if err == nil {
		for n := 1; n <= orch.TotalPhases; n++ {
			session := orch.SessionName(n)
			if !c.sessions.Exists(ctx, session) {
				continue
			}
			if err := c.sessions.GracefulShutdown(ctx, session, c.cfg.Session.KillGrace()); err != nil {
				c.logger.WithFeature(feature).WithPhase(n).Warn("session shutdown failed", "error", err)
			}
		}
	} else if !errors.IsNotFound(err) {
		return err
	}

	return c.registry.Delete(feature)
}

func (c *Coordinator) comment(ctx context.Context, feature, body string) {
	if _, err := c.store.AddComment(ctx, feature, commentAuthor, body); err != nil {
		c.logger.WithFeature(feature).Warn("failed to record comment", "error", err)
	}
}

func artifactStatus(sf *watch.StatusFile) string {
	if sf == nil {
		return "absent"
	}
	return sf.Status
}
