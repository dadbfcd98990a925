// Package triage evaluates improvement opportunities and turns the eligible
// ones into pending improvement requests for human review. It never moves a
// request out of pending; that is a governance action.
package triage

import (
	"context"
	"log/slog"
	"time"

	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/telemetry"
)

// OpportunityType classifies an in-memory improvement candidate.
type OpportunityType string

const (
	OpportunityAPI          OpportunityType = "api"
	OpportunityTool         OpportunityType = "tool"
	OpportunitySkill        OpportunityType = "skill"
	OpportunityFramework    OpportunityType = "framework"
	OpportunityBestPractice OpportunityType = "best_practice"
)

// CostBucket buckets the estimated implementation effort.
type CostBucket string

const (
	CostLow    CostBucket = "low"
	CostMedium CostBucket = "medium"
	CostHigh   CostBucket = "high"
)

// Opportunity is a transient, unvetted candidate enhancement. It exists
// only in memory until triage turns it into an ImprovementRequest.
type Opportunity struct {
	Type             OpportunityType
	Name             string
	Description      string
	Relevance        int // 0-100
	EstimatedBenefit string
	Cost             CostBucket
	Risk             store.RiskLevel
}

const (
	relevanceFloor = 70
	highPriorityAt = 85

	costPointsLow    = 5
	costPointsMedium = 15
	costPointsHigh   = 30
)

// DefaultSuppressionWindow is how long an identical description stays
// suppressed after being proposed, whatever the outcome of that proposal.
const DefaultSuppressionWindow = 14 * 24 * time.Hour

// Triage gates opportunities into the store.
type Triage struct {
	store       store.Store
	suppression time.Duration
	logger      *slog.Logger
}

// New creates a Triage. A zero suppression window falls back to the default.
func New(st store.Store, suppression time.Duration, logger *slog.Logger) *Triage {
	if suppression == 0 {
		suppression = DefaultSuppressionWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Triage{store: st, suppression: suppression, logger: logger}
}

// ProposeIfEligible creates a pending ImprovementRequest for the opportunity
// if it passes the eligibility gate: relevance >= 70 and risk below high.
// Identical descriptions proposed within the suppression window are skipped
// so a rejected idea is not re-litigated every research cycle.
func (t *Triage) ProposeIfEligible(ctx context.Context, agentID string, opp Opportunity) (bool, error) {
	if opp.Relevance < relevanceFloor || opp.Risk == store.RiskHigh {
		telemetry.RecordTriage(ctx, agentID, false)
		return false, nil
	}

	since := time.Now().Add(-t.suppression)
	exists, err := t.store.RecentRequestExists(ctx, agentID, opp.Description, since)
	if err != nil {
		return false, err
	}
	if exists {
		t.logger.Debug("opportunity suppressed as recent duplicate",
			"agent_id", agentID,
			"description", opp.Description)
		telemetry.RecordTriage(ctx, agentID, false)
		return false, nil
	}

	req := &store.ImprovementRequest{
		AgentID:      agentID,
		RequestType:  requestTypeFor(opp.Type),
		Description:  opp.Description,
		Benefit:      opp.EstimatedBenefit,
		CostEstimate: costPoints(opp.Cost),
		Risk:         opp.Risk,
		Priority:     priorityFor(opp.Relevance),
	}
	id, err := t.store.CreateImprovementRequest(ctx, req)
	if err != nil {
		return false, err
	}
	telemetry.RecordTriage(ctx, agentID, true)
	t.logger.Info("improvement request created",
		"agent_id", agentID,
		"request_id", id,
		"type", req.RequestType,
		"priority", req.Priority)
	return true, nil
}

func requestTypeFor(t OpportunityType) store.RequestType {
	switch t {
	case OpportunityAPI:
		return store.RequestNewAPI
	case OpportunityTool:
		return store.RequestNewTool
	case OpportunitySkill:
		return store.RequestNewSkill
	default:
		// Framework and best-practice candidates change how the agent
		// works rather than what it owns.
		return store.RequestProcessChange
	}
}

func costPoints(c CostBucket) int {
	switch c {
	case CostLow:
		return costPointsLow
	case CostHigh:
		return costPointsHigh
	default:
		return costPointsMedium
	}
}

func priorityFor(relevance int) store.Priority {
	switch {
	case relevance >= highPriorityAt:
		return store.PriorityHigh
	case relevance >= relevanceFloor:
		return store.PriorityMedium
	default:
		return store.PriorityLow
	}
}
