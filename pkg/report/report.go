// Package report derives daily performance reports from the capability
// store. Reports are recomputed on demand and never persisted here.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meliorworks/melior/pkg/store"
)

// Policy thresholds are fixed so reports stay comparable across agents.
const (
	excellentSuccessRateAt = 90.0
	highRatingAt           = 85.0
	activeLearningAbove    = 5

	lowSuccessRateBelow = 70.0
	slowResponseAboveMs = 10000.0
	pendingBacklogAbove = 10
)

// Counters is the profile snapshot embedded in a report.
type Counters struct {
	PerformanceRating float64 `json:"performance_rating"`
	SuccessRate       float64 `json:"success_rate"`
	TasksCompleted    int64   `json:"tasks_completed"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// PerformanceReport is one day's view of an agent, with derived highlights
// and concerns for human review.
type PerformanceReport struct {
	AgentID             string    `json:"agent_id"`
	DefinitionName      string    `json:"definition_name"`
	Date                string    `json:"date"`
	Counters            Counters  `json:"counters"`
	Learnings           []string  `json:"learnings"`
	PendingImprovements int       `json:"pending_improvements"`
	Highlights          []string  `json:"highlights"`
	Concerns            []string  `json:"concerns"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Reporter builds reports from the store.
type Reporter struct {
	store  store.Store
	logger *slog.Logger

	// now is overridable in tests to pin the local-midnight boundary.
	now func() time.Time
}

// New creates a Reporter.
func New(st store.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{store: st, logger: logger, now: time.Now}
}

// GenerateDailyReport assembles the agent's report for today. Reading twice
// without intervening writes yields identical highlights and concerns.
func (r *Reporter) GenerateDailyReport(ctx context.Context, agentID string) (*PerformanceReport, error) {
	profile, err := r.store.GetProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	learnings, err := r.store.ListRecentLearnings(ctx, agentID, midnight)
	if err != nil {
		return nil, err
	}
	pending, err := r.store.ListPendingImprovementRequests(ctx, agentID)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(learnings))
	for _, l := range learnings {
		texts = append(texts, l.Text)
	}

	rep := &PerformanceReport{
		AgentID:        agentID,
		DefinitionName: profile.DefinitionName,
		Date:           now.Format("2006-01-02"),
		Counters: Counters{
			PerformanceRating: profile.PerformanceRating,
			SuccessRate:       profile.SuccessRate,
			TasksCompleted:    profile.TasksCompleted,
			AvgResponseTimeMs: profile.AvgResponseTime,
		},
		Learnings:           texts,
		PendingImprovements: len(pending),
		GeneratedAt:         now,
	}
	rep.Highlights = highlights(profile, len(learnings))
	rep.Concerns = concerns(profile, len(pending))

	r.logger.Debug("daily report generated",
		"agent_id", agentID,
		"highlights", len(rep.Highlights),
		"concerns", len(rep.Concerns))
	return rep, nil
}

func highlights(p *store.AgentProfile, learningsToday int) []string {
	var out []string
	if p.SuccessRate >= excellentSuccessRateAt {
		out = append(out, fmt.Sprintf("Excellent success rate: %.0f%%", p.SuccessRate))
	}
	if p.PerformanceRating >= highRatingAt {
		out = append(out, fmt.Sprintf("High performance rating: %.0f/100", p.PerformanceRating))
	}
	if learningsToday > activeLearningAbove {
		out = append(out, fmt.Sprintf("Active learning: %d new learnings today", learningsToday))
	}
	return out
}

func concerns(p *store.AgentProfile, pendingCount int) []string {
	var out []string
	if p.SuccessRate < lowSuccessRateBelow {
		out = append(out, fmt.Sprintf("Success rate below target: %.0f%%", p.SuccessRate))
	}
	if p.AvgResponseTime > slowResponseAboveMs {
		out = append(out, fmt.Sprintf("Response time high: %.0fms", p.AvgResponseTime))
	}
	if pendingCount > pendingBacklogAbove {
		out = append(out, fmt.Sprintf("Pending improvement requests need review: %d", pendingCount))
	}
	return out
}
