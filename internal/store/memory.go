package store

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/state"
)

// Interface checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu sync.RWMutex

	orchestrations map[string]*state.Orchestration
	teams          map[string]map[int]*state.Team
	commits        map[string]map[string]CommitRecord
	plans          map[string]map[string]PlanRecord
	comments       map[string][]*Comment
	tickets        map[string]string
	lastSHA        map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orchestrations: make(map[string]*state.Orchestration),
		teams:          make(map[string]map[int]*state.Team),
		commits:        make(map[string]map[string]CommitRecord),
		plans:          make(map[string]map[string]PlanRecord),
		comments:       make(map[string][]*Comment),
		tickets:        make(map[string]string),
		lastSHA:        make(map[string]string),
	}
}

func cloneOrchestration(o *state.Orchestration) *state.Orchestration {
	clone := *o
	clone.Phases = make([]*state.Phase, len(o.Phases))
	for i, p := range o.Phases {
		phase := *p
		clone.Phases[i] = &phase
	}
	return &clone
}

// CreateOrchestration stores a copy of the orchestration and assigns its ID.
func (m *MemoryStore) CreateOrchestration(_ context.Context, o *state.Orchestration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[o.Feature]; ok {
		return overseererrors.NewRemoteStoreError("create orchestration", overseererrors.ErrAlreadyExists).
			WithFeature(o.Feature)
	}
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	m.orchestrations[o.Feature] = cloneOrchestration(o)
	return nil
}

// FetchOrchestrationByFeature returns a copy of the stored orchestration.
func (m *MemoryStore) FetchOrchestrationByFeature(_ context.Context, feature string) (*state.Orchestration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orchestrations[feature]
	if !ok {
		return nil, overseererrors.NewNotFoundError("orchestration", feature)
	}
	return cloneOrchestration(o), nil
}

// UpdateOrchestration replaces the stored orchestration.
func (m *MemoryStore) UpdateOrchestration(_ context.Context, o *state.Orchestration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[o.Feature]; !ok {
		return overseererrors.NewNotFoundError("orchestration", o.Feature)
	}
	m.orchestrations[o.Feature] = cloneOrchestration(o)
	return nil
}

// UpdatePhase replaces one stored phase.
func (m *MemoryStore) UpdatePhase(_ context.Context, feature string, phase *state.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orchestrations[feature]
	if !ok {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	copied := *phase
	for i, p := range o.Phases {
		if p.Number == phase.Number {
			o.Phases[i] = &copied
			return nil
		}
	}
	o.Phases = append(o.Phases, &copied)
	return nil
}

// RegisterTeam records the team for a feature's phase.
func (m *MemoryStore) RegisterTeam(_ context.Context, feature string, phase int, team *state.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	if m.teams[feature] == nil {
		m.teams[feature] = make(map[int]*state.Team)
	}
	copied := *team
	m.teams[feature][phase] = &copied
	return nil
}

// UpsertCommit records a commit keyed by SHA.
func (m *MemoryStore) UpsertCommit(_ context.Context, feature string, commit CommitRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return false, overseererrors.NewNotFoundError("orchestration", feature)
	}
	if m.commits[feature] == nil {
		m.commits[feature] = make(map[string]CommitRecord)
	}
	if _, ok := m.commits[feature][commit.SHA]; ok {
		return false, nil
	}
	m.commits[feature][commit.SHA] = commit
	return true, nil
}

// Commits returns the recorded commits for a feature, for test assertions.
func (m *MemoryStore) Commits(feature string) []CommitRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CommitRecord
	for _, c := range m.commits[feature] {
		out = append(out, c)
	}
	return out
}

// UpsertPlan records a plan document keyed by path.
func (m *MemoryStore) UpsertPlan(_ context.Context, feature string, plan PlanRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return false, overseererrors.NewNotFoundError("orchestration", feature)
	}
	if m.plans[feature] == nil {
		m.plans[feature] = make(map[string]PlanRecord)
	}
	if existing, ok := m.plans[feature][plan.Path]; ok && existing.Digest == plan.Digest {
		return false, nil
	}
	m.plans[feature][plan.Path] = plan
	return true, nil
}

// AddComment appends a comment.
func (m *MemoryStore) AddComment(_ context.Context, feature, author, body string) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return nil, overseererrors.NewNotFoundError("orchestration", feature)
	}
	comment := &Comment{
		ID:        ulid.Make().String(),
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	m.comments[feature] = append(m.comments[feature], comment)
	return comment, nil
}

// ListComments returns comments oldest first.
func (m *MemoryStore) ListComments(_ context.Context, feature string) ([]*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return nil, overseererrors.NewNotFoundError("orchestration", feature)
	}
	out := make([]*Comment, len(m.comments[feature]))
	copy(out, m.comments[feature])
	return out, nil
}

// GetDesign returns the feature's design document.
func (m *MemoryStore) GetDesign(_ context.Context, feature string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orchestrations[feature]
	if !ok {
		return "", overseererrors.NewNotFoundError("orchestration", feature)
	}
	if o.DesignDoc == "" {
		return "", overseererrors.NewNotFoundError("design", feature)
	}
	return o.DesignDoc, nil
}

// UpdateDesign replaces the feature's design document.
func (m *MemoryStore) UpdateDesign(_ context.Context, feature, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orchestrations[feature]
	if !ok {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	o.DesignDoc = content
	return nil
}

// GetTicket returns the feature's ticket reference.
func (m *MemoryStore) GetTicket(_ context.Context, feature string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return "", overseererrors.NewNotFoundError("orchestration", feature)
	}
	ticket, ok := m.tickets[feature]
	if !ok || ticket == "" {
		return "", overseererrors.NewNotFoundError("ticket", feature)
	}
	return ticket, nil
}

// UpdateTicket replaces the feature's ticket reference.
func (m *MemoryStore) UpdateTicket(_ context.Context, feature, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	m.tickets[feature] = content
	return nil
}

// LastSyncedSHA returns the sync high-water mark.
func (m *MemoryStore) LastSyncedSHA(_ context.Context, feature string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return "", overseererrors.NewNotFoundError("orchestration", feature)
	}
	return m.lastSHA[feature], nil
}

// SetLastSyncedSHA records the sync high-water mark.
func (m *MemoryStore) SetLastSyncedSHA(_ context.Context, feature, sha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orchestrations[feature]; !ok {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	m.lastSHA[feature] = sha
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
