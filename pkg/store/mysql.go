package store

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meliorworks/melior/pkg/errors"
)

type profileRow struct {
	ID                string  `gorm:"primaryKey;size:64"`
	DefinitionName    string  `gorm:"size:64;not null"`
	PerformanceRating float64 `gorm:"not null"`
	SuccessRate       float64 `gorm:"not null"`
	TasksCompleted    int64   `gorm:"not null"`
	AvgResponseTime   float64 `gorm:"not null"`
	Archived          bool    `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (profileRow) TableName() string { return profileTable }

type capabilityRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	AgentID     string `gorm:"size:64;not null;uniqueIndex:uq_cap,priority:1"`
	Type        string `gorm:"size:16;not null;uniqueIndex:uq_cap,priority:2"`
	Name        string `gorm:"size:128;not null;uniqueIndex:uq_cap,priority:3"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (capabilityRow) TableName() string { return capTable }

type learningRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	AgentID   string    `gorm:"size:64;not null;index:idx_learn_agent_created,priority:1"`
	Text      string    `gorm:"type:text;not null"`
	Source    string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"index:idx_learn_agent_created,priority:2"`
}

func (learningRow) TableName() string { return learningTable }

type requestRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	AgentID      string `gorm:"size:64;not null;index:idx_req_agent_status,priority:1"`
	RequestType  string `gorm:"size:32;not null"`
	Description  string `gorm:"type:text;not null"`
	Benefit      string `gorm:"type:text"`
	CostEstimate int    `gorm:"not null"`
	Risk         string `gorm:"size:16;not null"`
	Priority     string `gorm:"size:16;not null"`
	Status       string `gorm:"size:16;not null;index:idx_req_agent_status,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (requestRow) TableName() string { return requestTable }

// MySQL backs the capability store with a shared MySQL server, for
// deployments where several orchestrator replicas share one fleet.
// Per-agent serialization is delegated to row locks, so it holds across
// processes, not just within one.
type MySQL struct {
	db *gorm.DB
}

// OpenMySQL connects with the given DSN and migrates the schema.
func OpenMySQL(dsn string) (*MySQL, error) {
	dsn = ensureParam(dsn, "parseTime", "true")
	dsn = ensureParam(dsn, "loc", "UTC")
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "connect to mysql", err)
	}
	return NewMySQL(db)
}

// NewMySQL wraps an existing gorm handle and migrates the schema.
func NewMySQL(db *gorm.DB) (*MySQL, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := db.AutoMigrate(&profileRow{}, &capabilityRow{}, &learningRow{}, &requestRow{}); err != nil {
		return nil, errors.New(errors.CodeStoreError, "migrate mysql schema", err)
	}
	return &MySQL{db: db}, nil
}

// ensureParam appends key=value to a DSN unless the key is already present.
func ensureParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}

func (s *MySQL) CreateProfile(ctx context.Context, profile *AgentProfile, seed []Capability) error {
	if profile == nil || profile.ID == "" {
		return errors.New(errors.CodeInvalidInput, "profile with id is required", nil)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := profileRow{
			ID:                profile.ID,
			DefinitionName:    profile.DefinitionName,
			PerformanceRating: profile.PerformanceRating,
			SuccessRate:       profile.SuccessRate,
			TasksCompleted:    profile.TasksCompleted,
			AvgResponseTime:   profile.AvgResponseTime,
			CreatedAt:         profile.CreatedAt,
			UpdatedAt:         time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return storeErr("insert profile", err)
		}
		for _, c := range seed {
			if err := upsertCapabilityRow(tx, profile.ID, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertCapabilityRow(tx *gorm.DB, agentID string, c Capability) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	row := capabilityRow{
		ID:          c.ID,
		AgentID:     agentID,
		Type:        string(c.Type),
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}, {Name: "type"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description"}),
	}).Create(&row).Error
	if err != nil {
		return storeErr("insert capability", err)
	}
	return nil
}

func (s *MySQL) GetProfile(ctx context.Context, agentID string) (*AgentProfile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", agentID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return profileFromRow(row), nil
}

func profileFromRow(row profileRow) *AgentProfile {
	return &AgentProfile{
		ID:                row.ID,
		DefinitionName:    row.DefinitionName,
		PerformanceRating: row.PerformanceRating,
		SuccessRate:       row.SuccessRate,
		TasksCompleted:    row.TasksCompleted,
		AvgResponseTime:   row.AvgResponseTime,
		Archived:          row.Archived,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (s *MySQL) ListProfiles(ctx context.Context) ([]*AgentProfile, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).
		Where("archived = ?", false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("list profiles", err)
	}
	out := make([]*AgentProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, profileFromRow(row))
	}
	return out, nil
}

func (s *MySQL) ArchiveProfile(ctx context.Context, agentID string) error {
	res := s.db.WithContext(ctx).Model(&profileRow{}).
		Where("id = ?", agentID).
		Updates(map[string]any{"archived": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return storeErr("archive profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	return nil
}

func (s *MySQL) ListCapabilities(ctx context.Context, agentID string) ([]Capability, error) {
	var rows []capabilityRow
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("type ASC, name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("list capabilities", err)
	}
	out := make([]Capability, 0, len(rows))
	for _, row := range rows {
		out = append(out, Capability{
			ID:          row.ID,
			AgentID:     row.AgentID,
			Type:        CapabilityType(row.Type),
			Name:        row.Name,
			Description: row.Description,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *MySQL) AddCapability(ctx context.Context, cap Capability, approvedRequestID string) error {
	req, err := s.GetImprovementRequest(ctx, approvedRequestID)
	if err != nil || req.AgentID != cap.AgentID || req.Status != StatusApproved {
		return errors.New(errors.CodeGovernance,
			"capability creation requires an approved improvement request", nil).
			WithContext("agent_id", cap.AgentID).
			WithContext("request_id", approvedRequestID)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertCapabilityRow(tx, cap.AgentID, cap)
	})
}

func (s *MySQL) RecordExecution(ctx context.Context, agentID string, success bool, durationMs float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row profileRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", agentID).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeNotFound, "agent profile not found", nil).
				WithContext("agent_id", agentID)
		}
		if err != nil {
			return storeErr("lock profile", err)
		}
		p := profileFromRow(row)
		foldExecution(p, success, durationMs)
		return tx.Model(&profileRow{}).Where("id = ?", agentID).Updates(map[string]any{
			"performance_rating": p.PerformanceRating,
			"success_rate":       p.SuccessRate,
			"tasks_completed":    p.TasksCompleted,
			"avg_response_time":  p.AvgResponseTime,
			"updated_at":         p.UpdatedAt,
		}).Error
	})
}

func (s *MySQL) AppendLearning(ctx context.Context, agentID, text string, source LearningSource) error {
	if err := s.requireAgent(ctx, agentID); err != nil {
		return err
	}
	row := learningRow{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Text:      text,
		Source:    string(source),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storeErr("append learning", err)
	}
	return nil
}

func (s *MySQL) requireAgent(ctx context.Context, agentID string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&profileRow{}).
		Where("id = ?", agentID).
		Count(&count).Error
	if err != nil {
		return storeErr("check agent", err)
	}
	if count == 0 {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	return nil
}

func (s *MySQL) ListRecentLearnings(ctx context.Context, agentID string, since time.Time) ([]Learning, error) {
	var rows []learningRow
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND created_at >= ?", agentID, since.UTC()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("list learnings", err)
	}
	out := make([]Learning, 0, len(rows))
	for _, row := range rows {
		out = append(out, Learning{
			ID:        row.ID,
			AgentID:   row.AgentID,
			Text:      row.Text,
			Source:    LearningSource(row.Source),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *MySQL) CreateImprovementRequest(ctx context.Context, req *ImprovementRequest) (string, error) {
	if req == nil {
		return "", errors.New(errors.CodeInvalidInput, "request is required", nil)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	row := requestRow{
		ID:           id,
		AgentID:      req.AgentID,
		RequestType:  string(req.RequestType),
		Description:  req.Description,
		Benefit:      req.Benefit,
		CostEstimate: req.CostEstimate,
		Risk:         string(req.Risk),
		Priority:     string(req.Priority),
		Status:       string(StatusPending),
		CreatedAt:    created,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", storeErr("insert improvement request", err)
	}
	return id, nil
}

func (s *MySQL) GetImprovementRequest(ctx context.Context, requestID string) (*ImprovementRequest, error) {
	var row requestRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", requestID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeNotFound, "improvement request not found", nil).
			WithContext("request_id", requestID)
	}
	if err != nil {
		return nil, storeErr("get improvement request", err)
	}
	return requestFromRow(row), nil
}

func requestFromRow(row requestRow) *ImprovementRequest {
	return &ImprovementRequest{
		ID:           row.ID,
		AgentID:      row.AgentID,
		RequestType:  RequestType(row.RequestType),
		Description:  row.Description,
		Benefit:      row.Benefit,
		CostEstimate: row.CostEstimate,
		Risk:         RiskLevel(row.Risk),
		Priority:     Priority(row.Priority),
		Status:       RequestStatus(row.Status),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (s *MySQL) ListPendingImprovementRequests(ctx context.Context, agentID string) ([]ImprovementRequest, error) {
	var rows []requestRow
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, string(StatusPending)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("list pending requests", err)
	}
	out := make([]ImprovementRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, *requestFromRow(row))
	}
	return out, nil
}

func (s *MySQL) UpdateRequestStatus(ctx context.Context, requestID string, status RequestStatus) error {
	if status != StatusApproved && status != StatusRejected {
		return errors.New(errors.CodeGovernance, "requests may only be approved or rejected", nil).
			WithContext("status", string(status))
	}
	res := s.db.WithContext(ctx).Model(&requestRow{}).
		Where("id = ? AND status = ?", requestID, string(StatusPending)).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return storeErr("update request status", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetImprovementRequest(ctx, requestID); err != nil {
			return err
		}
		return errors.New(errors.CodeGovernance, "request is not pending", nil).
			WithContext("request_id", requestID)
	}
	return nil
}

func (s *MySQL) RecentRequestExists(ctx context.Context, agentID, description string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&requestRow{}).
		Where("agent_id = ? AND created_at >= ? AND TRIM(LOWER(description)) = LOWER(?)",
			agentID, since.UTC(), strings.TrimSpace(description)).
		Count(&count).Error
	if err != nil {
		return false, storeErr("count recent requests", err)
	}
	return count > 0, nil
}

// Close releases the underlying connection pool.
func (s *MySQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*MySQL)(nil)
