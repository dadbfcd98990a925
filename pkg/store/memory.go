package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meliorworks/melior/pkg/errors"
)

// Memory is an in-process Store used by tests and demos. A single mutex
// guards all maps; every read-modify-write is atomic under it, which
// trivially satisfies the per-agent serialization contract.
type Memory struct {
	mu        sync.RWMutex
	profiles  map[string]*AgentProfile
	caps      map[string]map[string]Capability // agentID -> type/name -> capability
	learnings map[string][]Learning
	requests  map[string]*ImprovementRequest
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles:  make(map[string]*AgentProfile),
		caps:      make(map[string]map[string]Capability),
		learnings: make(map[string][]Learning),
		requests:  make(map[string]*ImprovementRequest),
	}
}

func capKey(t CapabilityType, name string) string {
	return string(t) + "/" + strings.ToLower(name)
}

func (m *Memory) CreateProfile(_ context.Context, profile *AgentProfile, seed []Capability) error {
	if profile == nil || profile.ID == "" {
		return errors.New(errors.CodeInvalidInput, "profile with id is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; ok {
		return errors.New(errors.CodeInvalidInput, "profile already exists", nil).
			WithContext("agent_id", profile.ID)
	}
	clone := *profile
	m.profiles[profile.ID] = &clone
	caps := make(map[string]Capability, len(seed))
	for _, c := range seed {
		c.AgentID = profile.ID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		caps[capKey(c.Type, c.Name)] = c
	}
	m.caps[profile.ID] = caps
	return nil
}

func (m *Memory) GetProfile(_ context.Context, agentID string) (*AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[agentID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	clone := *p
	return &clone, nil
}

func (m *Memory) ListProfiles(_ context.Context) ([]*AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AgentProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if p.Archived {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ArchiveProfile(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[agentID]
	if !ok {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	p.Archived = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ListCapabilities(_ context.Context, agentID string) ([]Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	caps := m.caps[agentID]
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) AddCapability(ctx context.Context, cap Capability, approvedRequestID string) error {
	if err := m.checkApproval(cap.AgentID, approvedRequestID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[cap.AgentID]; !ok {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", cap.AgentID)
	}
	if cap.ID == "" {
		cap.ID = uuid.NewString()
	}
	if cap.CreatedAt.IsZero() {
		cap.CreatedAt = time.Now().UTC()
	}
	if m.caps[cap.AgentID] == nil {
		m.caps[cap.AgentID] = make(map[string]Capability)
	}
	// Upsert keeps the tuple unique.
	m.caps[cap.AgentID][capKey(cap.Type, cap.Name)] = cap
	return nil
}

func (m *Memory) checkApproval(agentID, requestID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[requestID]
	if !ok || req.AgentID != agentID || req.Status != StatusApproved {
		return errors.New(errors.CodeGovernance,
			"capability creation requires an approved improvement request", nil).
			WithContext("agent_id", agentID).
			WithContext("request_id", requestID)
	}
	return nil
}

func (m *Memory) RecordExecution(_ context.Context, agentID string, success bool, durationMs float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[agentID]
	if !ok {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	foldExecution(p, success, durationMs)
	return nil
}

func (m *Memory) AppendLearning(_ context.Context, agentID, text string, source LearningSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[agentID]; !ok {
		return errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", agentID)
	}
	m.learnings[agentID] = append(m.learnings[agentID], Learning{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Text:      text,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListRecentLearnings(_ context.Context, agentID string, since time.Time) ([]Learning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Learning
	for _, l := range m.learnings[agentID] {
		if !l.CreatedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) CreateImprovementRequest(_ context.Context, req *ImprovementRequest) (string, error) {
	if req == nil {
		return "", errors.New(errors.CodeInvalidInput, "request is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[req.AgentID]; !ok {
		return "", errors.New(errors.CodeNotFound, "agent profile not found", nil).
			WithContext("agent_id", req.AgentID)
	}
	clone := *req
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	clone.Status = StatusPending
	m.requests[clone.ID] = &clone
	return clone.ID, nil
}

func (m *Memory) GetImprovementRequest(_ context.Context, requestID string) (*ImprovementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "improvement request not found", nil).
			WithContext("request_id", requestID)
	}
	clone := *req
	return &clone, nil
}

func (m *Memory) ListPendingImprovementRequests(_ context.Context, agentID string) ([]ImprovementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ImprovementRequest
	for _, req := range m.requests {
		if req.AgentID == agentID && req.Status == StatusPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateRequestStatus(_ context.Context, requestID string, status RequestStatus) error {
	if status != StatusApproved && status != StatusRejected {
		return errors.New(errors.CodeGovernance, "requests may only be approved or rejected", nil).
			WithContext("status", string(status))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return errors.New(errors.CodeNotFound, "improvement request not found", nil).
			WithContext("request_id", requestID)
	}
	if req.Status != StatusPending {
		return errors.New(errors.CodeGovernance, "request is not pending", nil).
			WithContext("request_id", requestID).
			WithContext("status", string(req.Status))
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) RecentRequestExists(_ context.Context, agentID, description string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.TrimSpace(strings.ToLower(description))
	for _, req := range m.requests {
		if req.AgentID != agentID || req.CreatedAt.Before(since) {
			continue
		}
		if strings.TrimSpace(strings.ToLower(req.Description)) == needle {
			return true, nil
		}
	}
	return false, nil
}

var _ Store = (*Memory)(nil)
