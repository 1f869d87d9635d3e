package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/state"
)

// CurrentVersion is the current schema version.
const CurrentVersion = 1

// SQLiteStore is the reference Store implementation backed by a local
// SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes if needed) the database at path,
// creating parent directories as necessary.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Serialize writers through a single connection; SQLite handles its own
	// file locking underneath.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createVersionTable(tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	if err := createTables(tx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := setSchemaVersion(tx, CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func createVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	var existing int
	err := tx.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&existing)
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createTables(tx *sql.Tx) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS orchestrations (
			id            TEXT PRIMARY KEY,
			feature       TEXT NOT NULL UNIQUE,
			worktree      TEXT NOT NULL,
			branch        TEXT NOT NULL,
			design_doc    TEXT NOT NULL DEFAULT '',
			ticket        TEXT NOT NULL DEFAULT '',
			total_phases  INTEGER NOT NULL,
			current_phase INTEGER NOT NULL,
			status        TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS phases (
			orchestration_id TEXT NOT NULL,
			number           INTEGER NOT NULL,
			status           TEXT NOT NULL,
			team             TEXT NOT NULL DEFAULT '',
			started_at       TEXT,
			ended_at         TEXT,
			blocked_reason   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (orchestration_id, number)
		)`,

		`CREATE TABLE IF NOT EXISTS teams (
			orchestration_id TEXT NOT NULL,
			phase            INTEGER NOT NULL,
			name             TEXT NOT NULL,
			agents           TEXT NOT NULL,
			PRIMARY KEY (orchestration_id, phase)
		)`,

		`CREATE TABLE IF NOT EXISTS commits (
			sha              TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL,
			phase            INTEGER NOT NULL,
			author           TEXT NOT NULL,
			committed_at     TEXT NOT NULL,
			subject          TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS plans (
			orchestration_id TEXT NOT NULL,
			path             TEXT NOT NULL,
			digest           TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			PRIMARY KEY (orchestration_id, path)
		)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id               TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL,
			author           TEXT NOT NULL,
			body             TEXT NOT NULL,
			created_at       TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sync_state (
			orchestration_id TEXT PRIMARY KEY,
			last_sha         TEXT NOT NULL
		)`,
	}

	for _, table := range tables {
		if _, err := tx.Exec(table); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// storeFailure wraps a database error in the remote-store taxonomy.
func storeFailure(op, feature string, err error) error {
	return overseererrors.NewRemoteStoreError(op, err).WithFeature(feature)
}

// orchestrationID resolves the store ID for a feature.
func (s *SQLiteStore) orchestrationID(ctx context.Context, feature string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM orchestrations WHERE feature = ?", feature).Scan(&id)
	if err == sql.ErrNoRows {
		return "", overseererrors.NewNotFoundError("orchestration", feature)
	}
	if err != nil {
		return "", storeFailure("resolve orchestration", feature, err)
	}
	return id, nil
}

// CreateOrchestration persists a new orchestration and its phase rows.
func (s *SQLiteStore) CreateOrchestration(ctx context.Context, o *state.Orchestration) error {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("create orchestration", o.Feature, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orchestrations
			(id, feature, worktree, branch, design_doc, total_phases, current_phase, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Feature, o.Worktree, o.Branch, o.DesignDoc,
		o.TotalPhases, o.CurrentPhase, string(o.Status),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return storeFailure("create orchestration", o.Feature, err)
	}

	for _, p := range o.Phases {
		if err := upsertPhaseTx(ctx, tx, o.ID, p); err != nil {
			return storeFailure("create orchestration phases", o.Feature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeFailure("create orchestration", o.Feature, err)
	}
	return nil
}

func upsertPhaseTx(ctx context.Context, tx *sql.Tx, orchestrationID string, p *state.Phase) error {
	var started, ended any
	if p.StartedAt != nil {
		started = formatTime(*p.StartedAt)
	}
	if p.EndedAt != nil {
		ended = formatTime(*p.EndedAt)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO phases (orchestration_id, number, status, team, started_at, ended_at, blocked_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (orchestration_id, number) DO UPDATE SET
			status = excluded.status,
			team = excluded.team,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			blocked_reason = excluded.blocked_reason`,
		orchestrationID, p.Number, string(p.Status), p.Team, started, ended, p.BlockedReason)
	return err
}

// FetchOrchestrationByFeature loads an orchestration and its phases.
func (s *SQLiteStore) FetchOrchestrationByFeature(ctx context.Context, feature string) (*state.Orchestration, error) {
	var (
		o                  state.Orchestration
		status             string
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, feature, worktree, branch, design_doc, total_phases, current_phase, status, created_at, updated_at
		FROM orchestrations WHERE feature = ?`, feature).
		Scan(&o.ID, &o.Feature, &o.Worktree, &o.Branch, &o.DesignDoc,
			&o.TotalPhases, &o.CurrentPhase, &status, &createdAt, &updated)
	if err == sql.ErrNoRows {
		return nil, overseererrors.NewNotFoundError("orchestration", feature)
	}
	if err != nil {
		return nil, storeFailure("fetch orchestration", feature, err)
	}
	o.Status = state.OrchestrationStatus(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, status, team, started_at, ended_at, blocked_reason
		FROM phases WHERE orchestration_id = ? ORDER BY number`, o.ID)
	if err != nil {
		return nil, storeFailure("fetch phases", feature, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p              state.Phase
			phaseStatus    string
			started, ended sql.NullString
		)
		if err := rows.Scan(&p.Number, &phaseStatus, &p.Team, &started, &ended, &p.BlockedReason); err != nil {
			return nil, storeFailure("scan phase", feature, err)
		}
		p.Status = state.PhaseStatus(phaseStatus)
		if started.Valid {
			t := parseTime(started.String)
			p.StartedAt = &t
		}
		if ended.Valid {
			t := parseTime(ended.String)
			p.EndedAt = &t
		}
		o.Phases = append(o.Phases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("fetch phases", feature, err)
	}
	return &o, nil
}

// UpdateOrchestration persists the orchestration's mutable fields and all
// of its phases.
func (s *SQLiteStore) UpdateOrchestration(ctx context.Context, o *state.Orchestration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("update orchestration", o.Feature, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orchestrations
		SET worktree = ?, branch = ?, design_doc = ?, current_phase = ?, status = ?, updated_at = ?
		WHERE feature = ?`,
		o.Worktree, o.Branch, o.DesignDoc, o.CurrentPhase, string(o.Status),
		formatTime(o.UpdatedAt), o.Feature)
	if err != nil {
		return storeFailure("update orchestration", o.Feature, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeFailure("update orchestration", o.Feature, err)
	}
	if affected == 0 {
		return overseererrors.NewNotFoundError("orchestration", o.Feature)
	}

	for _, p := range o.Phases {
		if err := upsertPhaseTx(ctx, tx, o.ID, p); err != nil {
			return storeFailure("update phases", o.Feature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeFailure("update orchestration", o.Feature, err)
	}
	return nil
}

// UpdatePhase persists a single phase of a feature's orchestration.
func (s *SQLiteStore) UpdatePhase(ctx context.Context, feature string, phase *state.Phase) error {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("update phase", feature, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertPhaseTx(ctx, tx, id, phase); err != nil {
		return storeFailure("update phase", feature, err)
	}
	if err := tx.Commit(); err != nil {
		return storeFailure("update phase", feature, err)
	}
	return nil
}

// RegisterTeam records the team assigned to a feature's phase.
func (s *SQLiteStore) RegisterTeam(ctx context.Context, feature string, phase int, team *state.Team) error {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return err
	}

	agents, err := json.Marshal(team)
	if err != nil {
		return storeFailure("encode team", feature, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (orchestration_id, phase, name, agents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (orchestration_id, phase) DO UPDATE SET
			name = excluded.name,
			agents = excluded.agents`,
		id, phase, team.Name, string(agents))
	if err != nil {
		return storeFailure("register team", feature, err)
	}
	return nil
}

// UpsertCommit records a commit keyed by SHA. Re-observing a known SHA is a
// no-op and returns false.
func (s *SQLiteStore) UpsertCommit(ctx context.Context, feature string, commit CommitRecord) (bool, error) {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO commits (sha, orchestration_id, phase, author, committed_at, subject)
		VALUES (?, ?, ?, ?, ?, ?)`,
		commit.SHA, id, commit.Phase, commit.Author, formatTime(commit.Timestamp), commit.Subject)
	if err != nil {
		return false, storeFailure("upsert commit", feature, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeFailure("upsert commit", feature, err)
	}
	return affected > 0, nil
}

// UpsertPlan records a plan document keyed by (orchestration, path). Returns
// false when the stored digest already matches.
func (s *SQLiteStore) UpsertPlan(ctx context.Context, feature string, plan PlanRecord) (bool, error) {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return false, err
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT digest FROM plans WHERE orchestration_id = ? AND path = ?", id, plan.Path).
		Scan(&existing)
	if err == nil && existing == plan.Digest {
		return false, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return false, storeFailure("upsert plan", feature, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (orchestration_id, path, digest, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (orchestration_id, path) DO UPDATE SET
			digest = excluded.digest,
			updated_at = excluded.updated_at`,
		id, plan.Path, plan.Digest, formatTime(plan.UpdatedAt))
	if err != nil {
		return false, storeFailure("upsert plan", feature, err)
	}
	return true, nil
}

// AddComment appends an audit-trail comment.
func (s *SQLiteStore) AddComment(ctx context.Context, feature, author, body string) (*Comment, error) {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:        ulid.Make().String(),
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, orchestration_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		comment.ID, id, author, body, formatTime(comment.CreatedAt))
	if err != nil {
		return nil, storeFailure("add comment", feature, err)
	}
	return comment, nil
}

// ListComments returns a feature's comments oldest first. ULIDs sort
// lexicographically by creation time.
func (s *SQLiteStore) ListComments(ctx context.Context, feature string) ([]*Comment, error) {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, body, created_at
		FROM comments WHERE orchestration_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, storeFailure("list comments", feature, err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var (
			c         Comment
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Author, &c.Body, &createdAt); err != nil {
			return nil, storeFailure("scan comment", feature, err)
		}
		c.CreatedAt = parseTime(createdAt)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("list comments", feature, err)
	}
	return comments, nil
}

func (s *SQLiteStore) getTextColumn(ctx context.Context, feature, column, resourceType string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT "+column+" FROM orchestrations WHERE feature = ?", feature).Scan(&value)
	if err == sql.ErrNoRows {
		return "", overseererrors.NewNotFoundError("orchestration", feature)
	}
	if err != nil {
		return "", storeFailure("get "+resourceType, feature, err)
	}
	if value == "" {
		return "", overseererrors.NewNotFoundError(resourceType, feature)
	}
	return value, nil
}

func (s *SQLiteStore) setTextColumn(ctx context.Context, feature, column, resourceType, content string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orchestrations SET "+column+" = ?, updated_at = ? WHERE feature = ?",
		content, formatTime(time.Now()), feature)
	if err != nil {
		return storeFailure("update "+resourceType, feature, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeFailure("update "+resourceType, feature, err)
	}
	if affected == 0 {
		return overseererrors.NewNotFoundError("orchestration", feature)
	}
	return nil
}

// GetDesign returns the feature's design document.
func (s *SQLiteStore) GetDesign(ctx context.Context, feature string) (string, error) {
	return s.getTextColumn(ctx, feature, "design_doc", "design")
}

// UpdateDesign replaces the feature's design document.
func (s *SQLiteStore) UpdateDesign(ctx context.Context, feature, content string) error {
	return s.setTextColumn(ctx, feature, "design_doc", "design", content)
}

// GetTicket returns the feature's ticket reference.
func (s *SQLiteStore) GetTicket(ctx context.Context, feature string) (string, error) {
	return s.getTextColumn(ctx, feature, "ticket", "ticket")
}

// UpdateTicket replaces the feature's ticket reference.
func (s *SQLiteStore) UpdateTicket(ctx context.Context, feature, content string) error {
	return s.setTextColumn(ctx, feature, "ticket", "ticket", content)
}

// LastSyncedSHA returns the daemon's sync high-water mark for a feature.
func (s *SQLiteStore) LastSyncedSHA(ctx context.Context, feature string) (string, error) {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return "", err
	}

	var sha string
	err = s.db.QueryRowContext(ctx,
		"SELECT last_sha FROM sync_state WHERE orchestration_id = ?", id).Scan(&sha)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeFailure("get last synced sha", feature, err)
	}
	return sha, nil
}

// SetLastSyncedSHA records the daemon's sync high-water mark.
func (s *SQLiteStore) SetLastSyncedSHA(ctx context.Context, feature, sha string) error {
	id, err := s.orchestrationID(ctx, feature)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_state (orchestration_id, last_sha)
		VALUES (?, ?)
		ON CONFLICT (orchestration_id) DO UPDATE SET last_sha = excluded.last_sha`,
		id, sha)
	if err != nil {
		return storeFailure("set last synced sha", feature, err)
	}
	return nil
}
