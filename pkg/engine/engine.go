// Package engine runs the task execution pipeline: brief composition,
// delegated reasoning, lenient interpretation, counter updates and
// learning capture.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meliorworks/melior/pkg/catalog"
	"github.com/meliorworks/melior/pkg/errors"
	"github.com/meliorworks/melior/pkg/llm"
	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/telemetry"
)

// Priority orders tasks for the executing agent's attention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is one unit of work handed to an agent.
type Task struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Priority    Priority          `json:"priority"`
	Context     map[string]string `json:"context,omitempty"`
	Deadline    *time.Time        `json:"deadline,omitempty"`
}

// ExecutionResult is the immutable record of one task execution. A failed
// execution still produces a complete result so reporting always has data.
type ExecutionResult struct {
	TaskID                string   `json:"task_id"`
	AgentID               string   `json:"agent_id"`
	Success               bool     `json:"success"`
	Output                string   `json:"output"`
	Reasoning             string   `json:"reasoning,omitempty"`
	ToolsUsed             []string `json:"tools_used,omitempty"`
	DurationMs            float64  `json:"duration_ms"`
	Learnings             []string `json:"learnings,omitempty"`
	SuggestedImprovements []string `json:"suggested_improvements,omitempty"`
}

// Engine coordinates the capability store, the agent catalog and the
// reasoning gateway.
type Engine struct {
	store    store.Store
	registry *catalog.Registry
	gateway  *llm.Gateway
	logger   *slog.Logger

	// pickTopic selects the exploration topic for rule-based suggestions;
	// overridable in tests.
	pickTopic func(topics []string) string
}

// New creates an Engine.
func New(st store.Store, registry *catalog.Registry, gateway *llm.Gateway, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		registry: registry,
		gateway:  gateway,
		logger:   logger,
		pickTopic: func(topics []string) string {
			return topics[rand.Intn(len(topics))]
		},
	}
}

// CreateAgent instantiates a profile for a catalog definition, seeding the
// capability list from the definition's declared skills, tools, APIs and
// frameworks.
func (e *Engine) CreateAgent(ctx context.Context, definitionName string) (*store.AgentProfile, error) {
	def, ok := e.registry.Get(definitionName)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "agent definition not found", nil).
			WithContext("definition", definitionName)
	}
	profile := store.NewProfile(def.Name)
	seed := seedCapabilities(profile.ID, def)
	if err := e.store.CreateProfile(ctx, profile, seed); err != nil {
		return nil, err
	}
	e.logger.Info("agent created",
		"agent_id", profile.ID,
		"definition", def.Name,
		"capabilities", len(seed))
	return profile, nil
}

func seedCapabilities(agentID string, def catalog.Definition) []store.Capability {
	var seed []store.Capability
	add := func(t store.CapabilityType, names []string) {
		for _, name := range names {
			seed = append(seed, store.Capability{
				AgentID:     agentID,
				Type:        t,
				Name:        name,
				Description: fmt.Sprintf("seeded from the %s definition", def.Name),
			})
		}
	}
	add(store.CapabilitySkill, def.Skills)
	add(store.CapabilityTool, def.Tools)
	add(store.CapabilityAPI, def.APIs)
	add(store.CapabilityFramework, def.Frameworks)
	return seed
}

// ExecuteTask runs one task through the agent. Only unknown agents or
// definitions are fatal; reasoning failures surface as a success=false
// result, never as an error.
func (e *Engine) ExecuteTask(ctx context.Context, agentID string, task Task) (*ExecutionResult, error) {
	profile, err := e.store.GetProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}
	def, ok := e.registry.Get(profile.DefinitionName)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "agent definition not found", nil).
			WithContext("agent_id", agentID).
			WithContext("definition", profile.DefinitionName)
	}
	caps, err := e.store.ListCapabilities(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: personaPrompt(def)},
		{Role: llm.RoleUser, Content: executionBrief(def, profile, caps, task)},
	}

	// Wall-clock duration covers exactly the reasoning call, success or not.
	start := time.Now()
	raw := e.gateway.Complete(ctx, messages, llm.Options{})
	durationMs := float64(time.Since(start).Milliseconds())

	var reply llm.TaskReply
	if raw == llm.DegradedResponse {
		// Completion leniency does not extend to total provider failure.
		reply = llm.TaskReply{Success: false, Output: raw}
	} else {
		reply = llm.ParseStructuredReply(raw)
	}

	result := &ExecutionResult{
		TaskID:     task.ID,
		AgentID:    agentID,
		Success:    reply.Success,
		Output:     reply.Output,
		Reasoning:  reply.Reasoning,
		ToolsUsed:  reply.ToolsUsed,
		DurationMs: durationMs,
		Learnings:  deriveLearnings(reply, task),
	}

	// Writes happen strictly after the reasoning call: a crash in between
	// loses at most this one result and never double-counts.
	if err := e.store.RecordExecution(ctx, agentID, result.Success, durationMs); err != nil {
		return nil, err
	}
	updated, err := e.store.GetProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}
	result.SuggestedImprovements = e.deriveSuggestions(reply, def, updated)

	for _, learning := range result.Learnings {
		if err := e.store.AppendLearning(ctx, agentID, learning, store.LearningFromTask); err != nil {
			return nil, err
		}
	}

	telemetry.RecordTask(ctx, agentID, result.Success, durationMs)
	e.logger.Info("task executed",
		"agent_id", agentID,
		"task_id", task.ID,
		"success", result.Success,
		"duration_ms", durationMs)
	return result, nil
}

func personaPrompt(def catalog.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a specialist in %s. %s\n\n", def.Name, def.Specialization, def.Description)
	b.WriteString("Respond with a single JSON object containing: ")
	b.WriteString(`"success" (boolean), "output" (string), "reasoning" (string), `)
	b.WriteString(`"toolsUsed" (array of strings), "learnings" (array of strings), `)
	b.WriteString(`"suggestedImprovements" (array of strings).`)
	return b.String()
}

func executionBrief(def catalog.Definition, profile *store.AgentProfile, caps []store.Capability, task Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s (%s)\nSpecialization: %s\n", def.Name, def.Category, def.Specialization)
	if len(def.Skills) > 0 {
		fmt.Fprintf(&b, "Declared skills: %s\n", strings.Join(def.Skills, ", "))
	}
	if len(def.Tools) > 0 {
		fmt.Fprintf(&b, "Declared tools: %s\n", strings.Join(def.Tools, ", "))
	}
	if len(def.APIs) > 0 {
		fmt.Fprintf(&b, "Declared APIs: %s\n", strings.Join(def.APIs, ", "))
	}
	if len(caps) > 0 {
		names := make([]string, 0, len(caps))
		for _, c := range caps {
			names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Type))
		}
		fmt.Fprintf(&b, "Current capabilities: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Performance: rating %.0f/100, success rate %.0f%%, %d tasks completed, avg response %.0fms\n",
		profile.PerformanceRating, profile.SuccessRate, profile.TasksCompleted, profile.AvgResponseTime)
	fmt.Fprintf(&b, "\nTask (%s priority): %s\n", task.Priority, task.Description)
	if task.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", task.Deadline.UTC().Format(time.RFC3339))
	}
	for key, value := range task.Context {
		fmt.Fprintf(&b, "Context %s: %s\n", key, value)
	}
	b.WriteString("\nExecute the task and reply with the requested JSON object only.")
	return b.String()
}

// deriveLearnings unions the parsed learnings with one synthetic entry
// summarizing the outcome.
func deriveLearnings(reply llm.TaskReply, task Task) []string {
	out := append([]string{}, reply.Learnings...)
	if reply.Success {
		out = append(out, fmt.Sprintf("Successfully completed %s priority task", task.Priority))
	} else {
		out = append(out, fmt.Sprintf("Encountered challenges with %s", task.Description))
	}
	return out
}

// deriveSuggestions unions the parsed suggestions with rule-based additions
// computed from the post-update counters, plus one randomly sampled
// learning-focus topic so exploration continues even without model-sourced
// ideas.
func (e *Engine) deriveSuggestions(reply llm.TaskReply, def catalog.Definition, profile *store.AgentProfile) []string {
	out := append([]string{}, reply.SuggestedImprovements...)
	if profile.SuccessRate < 80 {
		out = append(out, "Review failed tasks to improve success rate")
	}
	if profile.AvgResponseTime > 5000 {
		out = append(out, "Optimize execution speed")
	}
	if len(def.LearningFocus) > 0 {
		topic := e.pickTopic(def.LearningFocus)
		out = append(out, fmt.Sprintf("Explore %s", topic))
	}
	return out
}
