package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meliorworks/melior/pkg/errors"

	_ "modernc.org/sqlite"
)

const (
	profileTable  = "agent_profiles"
	capTable      = "agent_capabilities"
	learningTable = "agent_learnings"
	requestTable  = "improvement_requests"
)

// SQLite persists the capability store in a SQLite database.
//
// Counter updates are read-modify-write over two statements, so they are
// serialized per agent with striped mutexes on top of the transaction.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	agentMu map[string]*sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "open sqlite database", err).
			WithContext("path", path)
	}
	// modernc sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY churn under concurrent agents.
	db.SetMaxOpenConns(1)
	return NewSQLite(db)
}

// NewSQLite wraps an existing handle and ensures the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, errors.New(errors.CodeStoreError, "ensure sqlite schema", err)
	}
	return &SQLite{db: db, agentMu: make(map[string]*sync.Mutex)}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + profileTable + ` (
			id TEXT PRIMARY KEY,
			definition_name TEXT NOT NULL,
			performance_rating REAL NOT NULL,
			success_rate REAL NOT NULL,
			tasks_completed INTEGER NOT NULL,
			avg_response_time REAL NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + capTable + ` (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(agent_id, type, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + capTable + `_agent ON ` + capTable + `(agent_id);`,
		`CREATE TABLE IF NOT EXISTS ` + learningTable + ` (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			text TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + learningTable + `_agent_created ON ` + learningTable + `(agent_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS ` + requestTable + ` (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			request_type TEXT NOT NULL,
			description TEXT NOT NULL,
			benefit TEXT NOT NULL,
			cost_estimate INTEGER NOT NULL,
			risk TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + requestTable + `_agent_status ON ` + requestTable + `(agent_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_` + requestTable + `_agent_created ON ` + requestTable + `(agent_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// lockAgent serializes writes for one agent while leaving others free.
func (s *SQLite) lockAgent(agentID string) func() {
	s.mu.Lock()
	lock, ok := s.agentMu[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.agentMu[agentID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *SQLite) CreateProfile(ctx context.Context, profile *AgentProfile, seed []Capability) error {
	if profile == nil || profile.ID == "" {
		return errors.New(errors.CodeInvalidInput, "profile with id is required", nil)
	}
	defer s.lockAgent(profile.ID)()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin create profile", err)
	}
	now := time.Now().UTC().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+profileTable+` (id, definition_name, performance_rating, success_rate,
			tasks_completed, avg_response_time, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		profile.ID, profile.DefinitionName, profile.PerformanceRating, profile.SuccessRate,
		profile.TasksCompleted, profile.AvgResponseTime,
		profile.CreatedAt.UnixMilli(), now)
	if err != nil {
		_ = tx.Rollback()
		return storeErr("insert profile", err)
	}
	for _, c := range seed {
		if err := insertCapability(ctx, tx, profile.ID, c); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit create profile", err)
	}
	return nil
}

func insertCapability(ctx context.Context, tx *sql.Tx, agentID string, c Capability) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+capTable+` (id, agent_id, type, name, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id, type, name) DO UPDATE SET description = excluded.description`,
		c.ID, agentID, string(c.Type), c.Name, c.Description, created.UnixMilli())
	if err != nil {
		return storeErr("insert capability", err)
	}
	return nil
}

func (s *SQLite) GetProfile(ctx context.Context, agentID string) (*AgentProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, definition_name, performance_rating, success_rate, tasks_completed,
			avg_response_time, archived, created_at, updated_at
		 FROM `+profileTable+` WHERE id = ?`, agentID)
	return scanProfile(row, agentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, agentID string) (*AgentProfile, error) {
	var p AgentProfile
	var archived int
	var created, updated int64
	err := row.Scan(&p.ID, &p.DefinitionName, &p.PerformanceRating, &p.SuccessRate,
		&p.TasksCompleted, &p.AvgResponseTime, &archived, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	if err != nil {
		return nil, storeErr("scan profile", err)
	}
	p.Archived = archived != 0
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return &p, nil
}

func (s *SQLite) ListProfiles(ctx context.Context) ([]*AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, definition_name, performance_rating, success_rate, tasks_completed,
			avg_response_time, archived, created_at, updated_at
		 FROM `+profileTable+` WHERE archived = 0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, storeErr("list profiles", err)
	}
	defer rows.Close()

	var out []*AgentProfile
	for rows.Next() {
		p, err := scanProfile(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list profiles", err)
	}
	return out, nil
}

func (s *SQLite) ArchiveProfile(ctx context.Context, agentID string) error {
	defer s.lockAgent(agentID)()
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+profileTable+` SET archived = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().UnixMilli(), agentID)
	if err != nil {
		return storeErr("archive profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	return nil
}

func (s *SQLite) ListCapabilities(ctx context.Context, agentID string) ([]Capability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, type, name, description, created_at
		 FROM `+capTable+` WHERE agent_id = ? ORDER BY type ASC, name ASC`, agentID)
	if err != nil {
		return nil, storeErr("list capabilities", err)
	}
	defer rows.Close()

	var out []Capability
	for rows.Next() {
		var c Capability
		var typ string
		var created int64
		if err := rows.Scan(&c.ID, &c.AgentID, &typ, &c.Name, &c.Description, &created); err != nil {
			return nil, storeErr("scan capability", err)
		}
		c.Type = CapabilityType(typ)
		c.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list capabilities", err)
	}
	return out, nil
}

func (s *SQLite) AddCapability(ctx context.Context, cap Capability, approvedRequestID string) error {
	req, err := s.GetImprovementRequest(ctx, approvedRequestID)
	if err != nil || req.AgentID != cap.AgentID || req.Status != StatusApproved {
		return errors.New(errors.CodeGovernance,
			"capability creation requires an approved improvement request", nil).
			WithContext("agent_id", cap.AgentID).
			WithContext("request_id", approvedRequestID)
	}
	defer s.lockAgent(cap.AgentID)()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin add capability", err)
	}
	if err := insertCapability(ctx, tx, cap.AgentID, cap); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit add capability", err)
	}
	return nil
}

func (s *SQLite) RecordExecution(ctx context.Context, agentID string, success bool, durationMs float64) error {
	defer s.lockAgent(agentID)()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin record execution", err)
	}
	row := tx.QueryRowContext(ctx,
		`SELECT id, definition_name, performance_rating, success_rate, tasks_completed,
			avg_response_time, archived, created_at, updated_at
		 FROM `+profileTable+` WHERE id = ?`, agentID)
	p, err := scanProfile(row, agentID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	foldExecution(p, success, durationMs)
	_, err = tx.ExecContext(ctx,
		`UPDATE `+profileTable+` SET performance_rating = ?, success_rate = ?,
			tasks_completed = ?, avg_response_time = ?, updated_at = ?
		 WHERE id = ?`,
		p.PerformanceRating, p.SuccessRate, p.TasksCompleted, p.AvgResponseTime,
		p.UpdatedAt.UnixMilli(), agentID)
	if err != nil {
		_ = tx.Rollback()
		return storeErr("update counters", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit record execution", err)
	}
	return nil
}

func (s *SQLite) AppendLearning(ctx context.Context, agentID, text string, source LearningSource) error {
	if err := s.requireAgent(ctx, agentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+learningTable+` (id, agent_id, text, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), agentID, text, string(source), time.Now().UTC().UnixMilli())
	if err != nil {
		return storeErr("append learning", err)
	}
	return nil
}

func (s *SQLite) requireAgent(ctx context.Context, agentID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+profileTable+` WHERE id = ?`, agentID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	if err != nil {
		return storeErr("check agent", err)
	}
	return nil
}

func (s *SQLite) ListRecentLearnings(ctx context.Context, agentID string, since time.Time) ([]Learning, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, text, source, created_at
		 FROM `+learningTable+` WHERE agent_id = ? AND created_at >= ?
		 ORDER BY created_at ASC`, agentID, since.UTC().UnixMilli())
	if err != nil {
		return nil, storeErr("list learnings", err)
	}
	defer rows.Close()

	var out []Learning
	for rows.Next() {
		var l Learning
		var source string
		var created int64
		if err := rows.Scan(&l.ID, &l.AgentID, &l.Text, &source, &created); err != nil {
			return nil, storeErr("scan learning", err)
		}
		l.Source = LearningSource(source)
		l.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list learnings", err)
	}
	return out, nil
}

func (s *SQLite) CreateImprovementRequest(ctx context.Context, req *ImprovementRequest) (string, error) {
	if req == nil {
		return "", errors.New(errors.CodeInvalidInput, "request is required", nil)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	created := req.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+requestTable+` (id, agent_id, request_type, description, benefit,
			cost_estimate, risk, priority, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.AgentID, string(req.RequestType), req.Description, req.Benefit,
		req.CostEstimate, string(req.Risk), string(req.Priority), string(StatusPending),
		created.UnixMilli(), now.UnixMilli())
	if err != nil {
		return "", storeErr("insert improvement request", err)
	}
	return id, nil
}

func (s *SQLite) GetImprovementRequest(ctx context.Context, requestID string) (*ImprovementRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, request_type, description, benefit, cost_estimate,
			risk, priority, status, created_at, updated_at
		 FROM `+requestTable+` WHERE id = ?`, requestID)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, "improvement request not found", nil).
			WithContext("request_id", requestID)
	}
	if err != nil {
		return nil, storeErr("scan improvement request", err)
	}
	return req, nil
}

func scanRequest(row rowScanner) (*ImprovementRequest, error) {
	var req ImprovementRequest
	var typ, risk, priority, status string
	var created, updated int64
	err := row.Scan(&req.ID, &req.AgentID, &typ, &req.Description, &req.Benefit,
		&req.CostEstimate, &risk, &priority, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	req.RequestType = RequestType(typ)
	req.Risk = RiskLevel(risk)
	req.Priority = Priority(priority)
	req.Status = RequestStatus(status)
	req.CreatedAt = time.UnixMilli(created).UTC()
	req.UpdatedAt = time.UnixMilli(updated).UTC()
	return &req, nil
}

func (s *SQLite) ListPendingImprovementRequests(ctx context.Context, agentID string) ([]ImprovementRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, request_type, description, benefit, cost_estimate,
			risk, priority, status, created_at, updated_at
		 FROM `+requestTable+` WHERE agent_id = ? AND status = ?
		 ORDER BY created_at ASC`, agentID, string(StatusPending))
	if err != nil {
		return nil, storeErr("list pending requests", err)
	}
	defer rows.Close()

	var out []ImprovementRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storeErr("scan improvement request", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list pending requests", err)
	}
	return out, nil
}

func (s *SQLite) UpdateRequestStatus(ctx context.Context, requestID string, status RequestStatus) error {
	if status != StatusApproved && status != StatusRejected {
		return errors.New(errors.CodeGovernance, "requests may only be approved or rejected", nil).
			WithContext("status", string(status))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+requestTable+` SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC().UnixMilli(), requestID, string(StatusPending))
	if err != nil {
		return storeErr("update request status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either missing or already decided; distinguish for the caller.
		if _, err := s.GetImprovementRequest(ctx, requestID); err != nil {
			return err
		}
		return errors.New(errors.CodeGovernance, "request is not pending", nil).
			WithContext("request_id", requestID)
	}
	return nil
}

func (s *SQLite) RecentRequestExists(ctx context.Context, agentID, description string, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+requestTable+`
		 WHERE agent_id = ? AND created_at >= ? AND TRIM(LOWER(description)) = LOWER(?)`,
		agentID, since.UTC().UnixMilli(), strings.TrimSpace(description)).Scan(&count)
	if err != nil {
		return false, storeErr("count recent requests", err)
	}
	return count > 0, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func storeErr(msg string, err error) error {
	return errors.New(errors.CodeStoreError, msg, err)
}

var _ Store = (*SQLite)(nil)
