// Package store defines the remote orchestration store boundary and its
// reference implementations.
//
// The store is the durable source of truth for orchestration, phase, team,
// commit, and plan records shared between CLI invocations and the daemon.
// Consumers depend only on the Store interface and its idempotency
// guarantees: upserts are keyed by stable identifiers (commit SHA, plan
// path) and re-observing the same artifact never creates a duplicate.
package store

import (
	"context"
	"time"

	"github.com/overclockedllc/overseer/internal/state"
)

// CommitRecord is one synced commit, keyed by SHA.
type CommitRecord struct {
	SHA       string    `json:"sha"`
	Phase     int       `json:"phase"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
}

// PlanRecord is one synced plan document, keyed by (orchestration, path).
type PlanRecord struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is one audit-trail comment on an orchestration.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the remote orchestration store boundary. Implementations must
// serialize concurrent mutations on their own; callers treat the store as a
// transactional RPC boundary, not a lock they manage.
type Store interface {
	// CreateOrchestration persists a new orchestration and assigns its ID.
	CreateOrchestration(ctx context.Context, o *state.Orchestration) error

	// FetchOrchestrationByFeature returns the orchestration for a feature,
	// including its phases, or NotFoundError.
	FetchOrchestrationByFeature(ctx context.Context, feature string) (*state.Orchestration, error)

	// UpdateOrchestration persists the orchestration's mutable fields and
	// all of its phases.
	UpdateOrchestration(ctx context.Context, o *state.Orchestration) error

	// UpdatePhase persists one phase of a feature's orchestration.
	UpdatePhase(ctx context.Context, feature string, phase *state.Phase) error

	// RegisterTeam records the team assigned to a feature's running phase.
	RegisterTeam(ctx context.Context, feature string, phase int, team *state.Team) error

	// UpsertCommit records a commit for a feature. Returns true when a new
	// record was inserted, false when the SHA was already known.
	UpsertCommit(ctx context.Context, feature string, commit CommitRecord) (bool, error)

	// UpsertPlan records a plan document for a feature. Returns true when
	// the record was created or its digest changed, false when unchanged.
	UpsertPlan(ctx context.Context, feature string, plan PlanRecord) (bool, error)

	// AddComment appends an audit-trail comment to a feature.
	AddComment(ctx context.Context, feature, author, body string) (*Comment, error)

	// ListComments returns a feature's comments oldest first.
	ListComments(ctx context.Context, feature string) ([]*Comment, error)

	// GetDesign returns the feature's design document, or NotFoundError
	// when none was ever recorded.
	GetDesign(ctx context.Context, feature string) (string, error)

	// UpdateDesign replaces the feature's design document.
	UpdateDesign(ctx context.Context, feature, content string) error

	// GetTicket returns the feature's ticket reference, or NotFoundError.
	GetTicket(ctx context.Context, feature string) (string, error)

	// UpdateTicket replaces the feature's ticket reference.
	UpdateTicket(ctx context.Context, feature, content string) error

	// LastSyncedSHA returns the last commit SHA the daemon synced for a
	// feature, or empty string when nothing was synced yet.
	LastSyncedSHA(ctx context.Context, feature string) (string, error)

	// SetLastSyncedSHA records the daemon's sync high-water mark.
	SetLastSyncedSHA(ctx context.Context, feature, sha string) error

	// Close releases the store's resources.
	Close() error
}
