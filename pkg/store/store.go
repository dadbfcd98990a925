package store

import (
	"context"
	"time"
)

// Store is the entire persistence contract the core requires. Any backend
// satisfying these read/write semantics is acceptable.
//
// Writes for a single agent are serialized relative to each other; writes
// for different agents may proceed fully in parallel.
type Store interface {
	// CreateProfile persists a new profile together with its seed
	// capabilities from the agent definition.
	CreateProfile(ctx context.Context, profile *AgentProfile, seed []Capability) error

	// GetProfile returns a profile, or errors.CodeNotFound.
	GetProfile(ctx context.Context, agentID string) (*AgentProfile, error)

	// ListProfiles returns all non-archived profiles.
	ListProfiles(ctx context.Context) ([]*AgentProfile, error)

	// ArchiveProfile soft-archives a retired agent. Profiles are never deleted.
	ArchiveProfile(ctx context.Context, agentID string) error

	// ListCapabilities returns an agent's current capabilities.
	ListCapabilities(ctx context.Context, agentID string) ([]Capability, error)

	// AddCapability attributes a new capability to an agent. The call must
	// carry the id of an approved improvement request for that agent;
	// anything else is a governance contract violation. Duplicate
	// (agent, type, name) tuples are upserted, never duplicated.
	AddCapability(ctx context.Context, cap Capability, approvedRequestID string) error

	// RecordExecution folds one task outcome into the agent's counters
	// using a cumulative-average update. TasksCompleted never decreases.
	RecordExecution(ctx context.Context, agentID string, success bool, durationMs float64) error

	// AppendLearning appends to the agent's learning log.
	AppendLearning(ctx context.Context, agentID, text string, source LearningSource) error

	// ListRecentLearnings returns learnings created at or after since,
	// oldest first.
	ListRecentLearnings(ctx context.Context, agentID string, since time.Time) ([]Learning, error)

	// CreateImprovementRequest persists a pending request and returns its id.
	CreateImprovementRequest(ctx context.Context, req *ImprovementRequest) (string, error)

	// GetImprovementRequest returns a request, or errors.CodeNotFound.
	GetImprovementRequest(ctx context.Context, requestID string) (*ImprovementRequest, error)

	// ListPendingImprovementRequests returns an agent's pending requests.
	ListPendingImprovementRequests(ctx context.Context, agentID string) ([]ImprovementRequest, error)

	// UpdateRequestStatus transitions pending -> approved|rejected. Any
	// other transition is rejected as a governance violation.
	UpdateRequestStatus(ctx context.Context, requestID string, status RequestStatus) error

	// RecentRequestExists reports whether an identical description was
	// already requested for the agent at or after since, regardless of
	// status. Used to suppress re-proposals.
	RecentRequestExists(ctx context.Context, agentID, description string, since time.Time) (bool, error)
}

// foldExecution applies the cumulative-average counter update shared by all
// backends. The profile must be loaded under the agent's write lock.
func foldExecution(p *AgentProfile, success bool, durationMs float64) {
	n := float64(p.TasksCompleted + 1)
	outcome := 0.0
	if success {
		outcome = 100.0
	}
	p.SuccessRate = (p.SuccessRate*(n-1) + outcome) / n
	p.AvgResponseTime = (p.AvgResponseTime*(n-1) + durationMs) / n
	// Rating follows outcomes with a slow exponential pull so that a single
	// bad task does not crater a mature agent.
	p.PerformanceRating = p.PerformanceRating*0.9 + outcome*0.1
	p.TasksCompleted++
	p.UpdatedAt = time.Now().UTC()
}
