// Package planstore persists plans and execution reports in SQLite.
//
// Step content is append-only: SavePlan only ever inserts, and a new
// plan version is required for any behavioral change. Trust metadata is
// the single mutable part of a stored plan and is updated through an
// optimistic compare-and-swap on a per-row revision counter, so
// concurrent executions of the same plan never lose updates.
package planstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a plan or execution does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePlan is returned when saving an (id, version) pair that is
// already stored. Step content is immutable; bump the version instead.
var ErrDuplicatePlan = errors.New("plan version already stored")

// casRetries bounds the optimistic trust update loop.
const casRetries = 25

// Store manages the SQLite database holding plans and execution history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// planDocument is the immutable JSON payload stored per plan version.
type planDocument struct {
	Preconditions  []models.Validation `json:"preconditions,omitempty"`
	Postconditions []models.Validation `json:"postconditions,omitempty"`
	Steps          []models.Step       `json:"steps"`
}

// NewStore creates a Store and initializes the database at dbPath.
// ":memory:" creates an in-process database, used by tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	// busy_timeout first so the remaining pragmas wait on locks held by
	// concurrent initializations of the same file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff on
// "database is locked" errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePlan inserts a new plan version. It never updates an existing row:
// saving an already-stored (id, version) returns ErrDuplicatePlan.
func (s *Store) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(planDocument{
		Preconditions:  plan.Preconditions,
		Postconditions: plan.Postconditions,
		Steps:          plan.Steps,
	})
	if err != nil {
		return fmt.Errorf("marshal plan document: %w", err)
	}
	tags, err := json.Marshal(plan.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	createdAt := plan.Trust.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (
			id, version, goal_signature, tags, risk_level,
			estimated_cost, estimated_time_ns, document,
			confidence, usage_count, success_rate, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		plan.ID, plan.Version, plan.GoalSignature, string(tags), plan.RiskLevel,
		plan.EstimatedCost, int64(plan.EstimatedTime), string(doc),
		plan.Trust.Confidence, plan.Trust.UsageCount, plan.Trust.SuccessRate,
		createdAt, nullableTime(plan.Trust.LastUsedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicatePlan, plan.Key())
		}
		return fmt.Errorf("insert plan: %w", err)
	}

	return nil
}

// GetPlan fetches one plan version. Version 0 means the latest stored
// version of the id.
func (s *Store) GetPlan(ctx context.Context, id string, version int) (*models.Plan, error) {
	query := `
		SELECT id, version, goal_signature, tags, risk_level,
		       estimated_cost, estimated_time_ns, document,
		       confidence, usage_count, success_rate, created_at, last_used_at
		FROM plans WHERE id = ?`
	args := []interface{}{id}
	if version > 0 {
		query += " AND version = ?"
		args = append(args, version)
	} else {
		query += " ORDER BY version DESC LIMIT 1"
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return plan, err
}

// ListLatest returns the newest version of every stored plan.
func (s *Store) ListLatest(ctx context.Context) ([]*models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.version, p.goal_signature, p.tags, p.risk_level,
		       p.estimated_cost, p.estimated_time_ns, p.document,
		       p.confidence, p.usage_count, p.success_rate, p.created_at, p.last_used_at
		FROM plans p
		JOIN (SELECT id, MAX(version) AS version FROM plans GROUP BY id) latest
		  ON p.id = latest.id AND p.version = latest.version
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanPlan.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row scanner) (*models.Plan, error) {
	var (
		plan       models.Plan
		tagsJSON   string
		docJSON    string
		timeNS     int64
		lastUsedAt sql.NullTime
	)

	err := row.Scan(
		&plan.ID, &plan.Version, &plan.GoalSignature, &tagsJSON, &plan.RiskLevel,
		&plan.EstimatedCost, &timeNS, &docJSON,
		&plan.Trust.Confidence, &plan.Trust.UsageCount, &plan.Trust.SuccessRate,
		&plan.Trust.CreatedAt, &lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.EstimatedTime = time.Duration(timeNS)
	if lastUsedAt.Valid {
		plan.Trust.LastUsedAt = lastUsedAt.Time
	}

	if err := json.Unmarshal([]byte(tagsJSON), &plan.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for %s: %w", plan.ID, err)
	}
	var doc planDocument
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document for %s: %w", plan.ID, err)
	}
	plan.Preconditions = doc.Preconditions
	plan.Postconditions = doc.Postconditions
	plan.Steps = doc.Steps

	return &plan, nil
}

// RecordExecution appends an execution report to the history.
func (s *Store) RecordExecution(ctx context.Context, report *models.ExecutionReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (run_id, plan_id, plan_version, status, total_time_ns, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, report.RunID, report.PlanID, report.PlanVersion, report.Status,
		int64(report.TotalTime), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution fetches a stored execution report by run id.
func (s *Store) GetExecution(ctx context.Context, runID string) (*models.ExecutionReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM executions WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	var report models.ExecutionReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// SuccessRate recomputes a plan's success rate from its execution
// history. Which runs count, and which count as successes, is decided
// by the report model so the taxonomy lives in one place. A plan with
// no counted runs reports 0 total.
func (s *Store) SuccessRate(ctx context.Context, planID string, version int) (rate float64, total int, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM executions
		WHERE plan_id = ? AND plan_version = ?
	`, planID, version)
	if err != nil {
		return 0, 0, fmt.Errorf("query execution history: %w", err)
	}
	defer rows.Close()

	var successes int
	for rows.Next() {
		var run models.ExecutionReport
		if err := rows.Scan(&run.Status); err != nil {
			return 0, 0, fmt.Errorf("scan execution status: %w", err)
		}
		if !run.CountsForSuccessRate() {
			continue
		}
		total++
		if run.Succeeded() {
			successes++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate execution history: %w", err)
	}

	if total == 0 {
		return 0, 0, nil
	}
	return float64(successes) / float64(total), total, nil
}

// ApplyTrust atomically updates a plan's trust metadata through
// mutate. It re-reads the row and retries on revision conflicts, so
// concurrent updates never lose increments.
func (s *Store) ApplyTrust(ctx context.Context, planID string, version int, mutate func(models.TrustMetadata) models.TrustMetadata) (models.TrustMetadata, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var (
			trust      models.TrustMetadata
			revision   int64
			lastUsedAt sql.NullTime
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT confidence, usage_count, success_rate, created_at, last_used_at, revision
			FROM plans WHERE id = ? AND version = ?
		`, planID, version).Scan(
			&trust.Confidence, &trust.UsageCount, &trust.SuccessRate,
			&trust.CreatedAt, &lastUsedAt, &revision,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return models.TrustMetadata{}, fmt.Errorf("%w: plan %s v%d", ErrNotFound, planID, version)
		}
		if err != nil {
			return models.TrustMetadata{}, fmt.Errorf("read trust: %w", err)
		}
		if lastUsedAt.Valid {
			trust.LastUsedAt = lastUsedAt.Time
		}

		updated := mutate(trust)

		result, err := s.db.ExecContext(ctx, `
			UPDATE plans
			SET confidence = ?, usage_count = ?, success_rate = ?, last_used_at = ?, revision = revision + 1
			WHERE id = ? AND version = ? AND revision = ?
		`, updated.Confidence, updated.UsageCount, updated.SuccessRate,
			nullableTime(updated.LastUsedAt), planID, version, revision)
		if err != nil {
			return models.TrustMetadata{}, fmt.Errorf("write trust: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return models.TrustMetadata{}, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return updated, nil
		}
		// Revision moved under us; back off briefly, re-read, retry.
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}

	return models.TrustMetadata{}, fmt.Errorf("update trust for %s v%d: too many concurrent updates", planID, version)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
