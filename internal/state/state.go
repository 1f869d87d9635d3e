// Package state holds the orchestration lifecycle model: orchestrations,
// their phases, the teams and tasks working on them, and the transition
// rules between statuses.
//
// Every status change goes through a validated transition. Transitions
// absent from the table fail with InvalidTransitionError and leave the
// entity unchanged. Validation always happens before mutation.
package state

import (
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/tmux"
)

// ----- Orchestration status -----

// OrchestrationStatus is the lifecycle status of an orchestration.
type OrchestrationStatus string

const (
	StatusPlanning  OrchestrationStatus = "planning"
	StatusPlanned   OrchestrationStatus = "planned"
	StatusExecuting OrchestrationStatus = "executing"
	StatusReviewing OrchestrationStatus = "reviewing"
	StatusComplete  OrchestrationStatus = "complete"
	StatusBlocked   OrchestrationStatus = "blocked"
)

// orchestrationTransitions is the full transition table. The success path is
// planning through complete; executing and reviewing can fall into blocked;
// blocked recovers only to executing.
var orchestrationTransitions = map[OrchestrationStatus][]OrchestrationStatus{
	StatusPlanning:  {StatusPlanned},
	StatusPlanned:   {StatusExecuting},
	StatusExecuting: {StatusReviewing, StatusBlocked},
	StatusReviewing: {StatusComplete, StatusBlocked},
	StatusBlocked:   {StatusExecuting},
	StatusComplete:  {},
}

// Valid reports whether s is a known orchestration status.
func (s OrchestrationStatus) Valid() bool {
	_, ok := orchestrationTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s OrchestrationStatus) CanTransitionTo(next OrchestrationStatus) bool {
	for _, allowed := range orchestrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s OrchestrationStatus) IsTerminal() bool {
	return s == StatusComplete
}

// ----- Phase status -----

// PhaseStatus is the lifecycle status of a single phase.
type PhaseStatus string

const (
	PhasePending  PhaseStatus = "pending"
	PhaseRunning  PhaseStatus = "running"
	PhaseComplete PhaseStatus = "complete"
	PhaseBlocked  PhaseStatus = "blocked"
)

var phaseTransitions = map[PhaseStatus][]PhaseStatus{
	PhasePending:  {PhaseRunning},
	PhaseRunning:  {PhaseComplete, PhaseBlocked},
	PhaseBlocked:  {PhaseRunning},
	PhaseComplete: {},
}

// Valid reports whether s is a known phase status.
func (s PhaseStatus) Valid() bool {
	_, ok := phaseTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s PhaseStatus) CanTransitionTo(next PhaseStatus) bool {
	for _, allowed := range phaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ----- Task status -----

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// ----- Agent roles -----

// AgentRole distinguishes the lead agent from workers on a team.
type AgentRole string

const (
	RoleLead   AgentRole = "lead"
	RoleWorker AgentRole = "worker"
)

// ----- Entities -----

// Orchestration is a multi-phase unit of automated work identified by a
// feature name.
type Orchestration struct {
	ID           string              `json:"id"`
	Feature      string              `json:"feature"`
	Worktree     string              `json:"worktree"`
	Branch       string              `json:"branch"`
	DesignDoc    string              `json:"design_doc,omitempty"`
	TotalPhases  int                 `json:"total_phases"`
	CurrentPhase int                 `json:"current_phase"`
	Status       OrchestrationStatus `json:"status"`
	Phases       []*Phase            `json:"phases,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Phase is one sequential stage of an orchestration, executed by a team of
// agents in one tmux session.
type Phase struct {
	Number        int         `json:"number"`
	Status        PhaseStatus `json:"status"`
	Team          string      `json:"team,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	EndedAt       *time.Time  `json:"ended_at,omitempty"`
	BlockedReason string      `json:"blocked_reason,omitempty"`
}

// Team is the set of agents assigned to a running phase.
type Team struct {
	Name    string  `json:"name"`
	Lead    Agent   `json:"lead"`
	Workers []Agent `json:"workers,omitempty"`
}

// Agent is one agent process on a team.
type Agent struct {
	Name  string    `json:"name"`
	Role  AgentRole `json:"role"`
	Alive bool      `json:"alive"`
}

// Task is the finest-grained progress unit surfaced by the watch engine.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Agent     string     `json:"agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ----- Construction -----

// NewOrchestration creates an orchestration in the planning state with the
// given number of pending phases. totalPhases must be at least 1.
func NewOrchestration(feature, worktree, branch string, totalPhases int) (*Orchestration, error) {
	if totalPhases < 1 {
		return nil, overseererrors.Wrapf(overseererrors.New("total phases must be at least 1"),
			"create orchestration %s", feature)
	}
	now := time.Now().UTC()
	o := &Orchestration{
		Feature:      feature,
		Worktree:     worktree,
		Branch:       branch,
		TotalPhases:  totalPhases,
		CurrentPhase: 1,
		Status:       StatusPlanning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for n := 1; n <= totalPhases; n++ {
		o.Phases = append(o.Phases, &Phase{Number: n, Status: PhasePending})
	}
	return o, nil
}

// ----- Orchestration transitions -----

// Transition moves the orchestration to next after validating it against the
// transition table. On failure the orchestration is unchanged.
func (o *Orchestration) Transition(next OrchestrationStatus) error {
	if !next.Valid() {
		return overseererrors.NewInvalidStatusError("orchestration", string(next))
	}
	if !o.Status.CanTransitionTo(next) {
		return overseererrors.NewInvalidTransitionError("orchestration", string(o.Status), string(next))
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Block moves the orchestration to blocked and records reason on the current
// phase. A blocked orchestration always carries a non-empty reason.
func (o *Orchestration) Block(reason string) error {
	if reason == "" {
		return overseererrors.New("blocked reason cannot be empty")
	}
	if !o.Status.CanTransitionTo(StatusBlocked) {
		return overseererrors.NewInvalidTransitionError("orchestration", string(o.Status), string(StatusBlocked))
	}
	phase := o.Phase(o.CurrentPhase)
	if phase != nil {
		if err := phase.Block(reason); err != nil {
			return err
		}
	}
	o.Status = StatusBlocked
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Recover moves a blocked orchestration back to executing and restarts the
// current phase.
func (o *Orchestration) Recover() error {
	if o.Status != StatusBlocked {
		return overseererrors.NewInvalidTransitionError("orchestration", string(o.Status), string(StatusExecuting))
	}
	phase := o.Phase(o.CurrentPhase)
	if phase != nil && phase.Status == PhaseBlocked {
		if err := phase.Transition(PhaseRunning); err != nil {
			return err
		}
		phase.BlockedReason = ""
	}
	o.Status = StatusExecuting
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// AdvancePhase moves current_phase to the next phase number. The current
// phase must be complete, and the pointer never moves backward.
func (o *Orchestration) AdvancePhase() error {
	phase := o.Phase(o.CurrentPhase)
	if phase == nil || phase.Status != PhaseComplete {
		return overseererrors.Wrapf(overseererrors.New("current phase is not complete"),
			"advance orchestration %s past phase %d", o.Feature, o.CurrentPhase)
	}
	if o.CurrentPhase >= o.TotalPhases {
		return overseererrors.Wrapf(overseererrors.New("already at final phase"),
			"advance orchestration %s", o.Feature)
	}
	o.CurrentPhase++
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Phase returns the phase with the given number, or nil if out of range.
func (o *Orchestration) Phase(number int) *Phase {
	for _, p := range o.Phases {
		if p.Number == number {
			return p
		}
	}
	return nil
}

// SessionName returns the deterministic session identifier for a phase of
// this orchestration. It is recomputed on demand, never stored.
func (o *Orchestration) SessionName(phase int) string {
	return tmux.SessionName(o.Feature, phase)
}

// ----- Phase transitions -----

// Transition moves the phase to next after validating it against the phase
// transition table. Timestamps are maintained as a side effect: entering
// running sets StartedAt (first time only), entering a terminal or blocked
// state sets EndedAt.
func (p *Phase) Transition(next PhaseStatus) error {
	if !next.Valid() {
		return overseererrors.NewInvalidStatusError("phase", string(next))
	}
	if !p.Status.CanTransitionTo(next) {
		return overseererrors.NewInvalidTransitionError("phase", string(p.Status), string(next))
	}

	now := time.Now().UTC()
	switch next {
	case PhaseRunning:
		if p.StartedAt == nil {
			p.StartedAt = &now
		}
		p.EndedAt = nil
	case PhaseComplete, PhaseBlocked:
		p.EndedAt = &now
	}
	p.Status = next
	return nil
}

// Block moves the phase to blocked with the given reason. The reason must be
// non-empty.
func (p *Phase) Block(reason string) error {
	if reason == "" {
		return overseererrors.New("blocked reason cannot be empty")
	}
	if err := p.Transition(PhaseBlocked); err != nil {
		return err
	}
	p.BlockedReason = reason
	return nil
}
