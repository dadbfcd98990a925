// Package research runs the daily learning cycle: topic selection, delegated
// research, learning capture and improvement-opportunity scoring.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"github.com/meliorworks/melior/pkg/catalog"
	"github.com/meliorworks/melior/pkg/errors"
	"github.com/meliorworks/melior/pkg/llm"
	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/telemetry"
	"github.com/meliorworks/melior/pkg/triage"
)

const (
	maxTopicsPerRun = 3
	maxFocusTopics  = 2
	maxProposalsFed = 10
)

// TopicResult captures what one research topic produced.
type TopicResult struct {
	Topic           string   `json:"topic"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Sources         []string `json:"sources,omitempty"`
	Confidence      int      `json:"confidence"`
}

// Result summarizes one daily research run for an agent.
type Result struct {
	AgentID           string               `json:"agent_id"`
	Topics            []TopicResult        `json:"topics"`
	LearningsRecorded int                  `json:"learnings_recorded"`
	Opportunities     []triage.Opportunity `json:"-"`
	ProposalsCreated  int                  `json:"proposals_created"`
}

// Cycle wires the research pipeline. Cadence ("at most once per day") is
// the caller's responsibility; each invocation is an independent run.
type Cycle struct {
	store    store.Store
	registry *catalog.Registry
	gateway  *llm.Gateway
	triage   *triage.Triage
	logger   *slog.Logger

	// sampleFocus picks up to n focus topics; overridable in tests.
	sampleFocus func(topics []string, n int) []string
}

// New creates a Cycle.
func New(st store.Store, registry *catalog.Registry, gateway *llm.Gateway, tr *triage.Triage, logger *slog.Logger) *Cycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycle{
		store:       st,
		registry:    registry,
		gateway:     gateway,
		triage:      tr,
		logger:      logger,
		sampleFocus: sampleFocusTopics,
	}
}

// PerformDailyResearch researches up to three topics for the agent, records
// every finding as a learning, scores recommendations as opportunities and
// feeds the best of them into triage. Provider failures degrade per topic;
// only an unknown agent or definition is fatal.
func (c *Cycle) PerformDailyResearch(ctx context.Context, agentID string) (*Result, error) {
	profile, err := c.store.GetProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}
	def, ok := c.registry.Get(profile.DefinitionName)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "agent definition not found", nil).
			WithContext("agent_id", agentID).
			WithContext("definition", profile.DefinitionName)
	}

	result := &Result{AgentID: agentID}
	for _, topic := range c.selectTopics(def) {
		reply := c.researchTopic(ctx, def, topic)
		telemetry.RecordResearchTopic(ctx, agentID)
		result.Topics = append(result.Topics, TopicResult{
			Topic:           topic,
			Findings:        reply.Findings,
			Recommendations: reply.Recommendations,
			Sources:         reply.Sources,
			Confidence:      reply.Confidence,
		})

		for _, finding := range reply.Findings {
			if err := c.store.AppendLearning(ctx, agentID, finding, store.LearningFromResearch); err != nil {
				return nil, err
			}
			result.LearningsRecorded++
		}
		for _, rec := range reply.Recommendations {
			result.Opportunities = append(result.Opportunities,
				buildOpportunity(rec, reply.Confidence, profile.PerformanceRating))
		}
	}

	// Highest relevance first; only the strongest candidates reach triage.
	sort.SliceStable(result.Opportunities, func(i, j int) bool {
		return result.Opportunities[i].Relevance > result.Opportunities[j].Relevance
	})
	if len(result.Opportunities) > maxProposalsFed {
		result.Opportunities = result.Opportunities[:maxProposalsFed]
	}
	for _, opp := range result.Opportunities {
		created, err := c.triage.ProposeIfEligible(ctx, agentID, opp)
		if err != nil {
			return nil, err
		}
		if created {
			result.ProposalsCreated++
		}
	}

	c.logger.Info("daily research completed",
		"agent_id", agentID,
		"topics", len(result.Topics),
		"learnings", result.LearningsRecorded,
		"proposals", result.ProposalsCreated)
	return result, nil
}

// selectTopics samples up to two declared focus topics, then pads with a
// category-trend topic and a specialization-depth topic, keeping three.
func (c *Cycle) selectTopics(def catalog.Definition) []string {
	topics := c.sampleFocus(def.LearningFocus, maxFocusTopics)
	topics = append(topics, fmt.Sprintf("Latest trends in %s", def.Category))
	topics = append(topics, fmt.Sprintf("Advanced techniques for %s", def.Specialization))
	if len(topics) > maxTopicsPerRun {
		topics = topics[:maxTopicsPerRun]
	}
	return topics
}

func sampleFocusTopics(topics []string, n int) []string {
	if len(topics) <= n {
		return append([]string{}, topics...)
	}
	idx := rand.Perm(len(topics))[:n]
	sort.Ints(idx)
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, topics[i])
	}
	return out
}

func (c *Cycle) researchTopic(ctx context.Context, def catalog.Definition, topic string) llm.ResearchReply {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: researchPersona(def)},
		{Role: llm.RoleUser, Content: researchPrompt(topic)},
	}
	raw := c.gateway.Complete(ctx, messages, llm.Options{})
	return llm.ParseResearchReply(raw)
}

func researchPersona(def catalog.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a research assistant for %s, a specialist in %s.\n", def.Name, def.Specialization)
	b.WriteString("Respond with a single JSON object containing: ")
	b.WriteString(`"findings" (array of 3-5 strings), "recommendations" (array of strings), `)
	b.WriteString(`"sources" (array of strings), "confidence" (number 0-100).`)
	return b.String()
}

func researchPrompt(topic string) string {
	return fmt.Sprintf("Research the topic %q. Summarize current findings, recommend concrete improvements the agent could adopt, cite sources, and rate your confidence. Reply with the requested JSON object only.", topic)
}
