// Package store implements the capability store: durable state for agent
// profiles, capabilities, learnings and improvement requests.
package store

import (
	"time"

	"github.com/google/uuid"
)

// CapabilityType classifies one concrete capability of an agent.
type CapabilityType string

const (
	CapabilitySkill     CapabilityType = "skill"
	CapabilityTool      CapabilityType = "tool"
	CapabilityAPI       CapabilityType = "api"
	CapabilityFramework CapabilityType = "framework"
)

// LearningSource records where a learning came from.
type LearningSource string

const (
	LearningFromTask     LearningSource = "task"
	LearningFromResearch LearningSource = "research"
)

// RequestType classifies an improvement request.
type RequestType string

const (
	RequestNewSkill      RequestType = "new_skill"
	RequestNewTool       RequestType = "new_tool"
	RequestNewAPI        RequestType = "new_api"
	RequestProcessChange RequestType = "process_change"
)

// RiskLevel buckets the risk of applying an improvement.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Priority buckets an improvement request for review ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RequestStatus is the governance state of an improvement request.
// Only an external governance action moves a request out of pending.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// AgentProfile is the durable record of one agent instance with its live
// performance counters. Counters are mutated only through RecordExecution;
// capability additions only through the governance approval path.
type AgentProfile struct {
	ID                string    `json:"id"`
	DefinitionName    string    `json:"definition_name"`
	PerformanceRating float64   `json:"performance_rating"` // 0-100
	SuccessRate       float64   `json:"success_rate"`       // 0-100
	TasksCompleted    int64     `json:"tasks_completed"`
	AvgResponseTime   float64   `json:"avg_response_time_ms"` // cumulative average
	Archived          bool      `json:"archived"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewProfile creates a profile for a definition with baseline counters.
func NewProfile(definitionName string) *AgentProfile {
	now := time.Now().UTC()
	return &AgentProfile{
		ID:                uuid.NewString(),
		DefinitionName:    definitionName,
		PerformanceRating: 70,
		SuccessRate:       0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Capability is one concrete skill/tool/api/framework attributed to an agent.
// The (AgentID, Type, Name) tuple is unique per store.
type Capability struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	Type        CapabilityType `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Learning is one append-only textual record. Learnings are never edited
// or deleted.
type Learning struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Text      string         `json:"text"`
	Source    LearningSource `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// ImprovementRequest is a persisted, governance-reviewable proposal.
type ImprovementRequest struct {
	ID           string        `json:"id"`
	AgentID      string        `json:"agent_id"`
	RequestType  RequestType   `json:"request_type"`
	Description  string        `json:"description"`
	Benefit      string        `json:"benefit"`
	CostEstimate int           `json:"cost_estimate"`
	Risk         RiskLevel     `json:"risk"`
	Priority     Priority      `json:"priority"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
