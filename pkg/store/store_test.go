package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meliorworks/melior/pkg/errors"
)

// backends lists every Store implementation under test. MySQL needs a live
// server and is exercised in integration environments instead.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "melior.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func mustCreateProfile(t *testing.T, s Store, seed ...Capability) *AgentProfile {
	t.Helper()
	p := NewProfile("email-composer")
	for i := range seed {
		seed[i].AgentID = p.ID
	}
	if err := s.CreateProfile(context.Background(), p, seed); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func TestProfileLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s,
				Capability{Type: CapabilitySkill, Name: "tone-adjustment", Description: "match audience tone"},
			)

			got, err := s.GetProfile(ctx, p.ID)
			if err != nil {
				t.Fatalf("get profile: %v", err)
			}
			if got.DefinitionName != "email-composer" {
				t.Errorf("definition = %q, want email-composer", got.DefinitionName)
			}
			if got.PerformanceRating != 70 {
				t.Errorf("baseline rating = %v, want 70", got.PerformanceRating)
			}
			if got.TasksCompleted != 0 {
				t.Errorf("baseline tasks = %d, want 0", got.TasksCompleted)
			}

			caps, err := s.ListCapabilities(ctx, p.ID)
			if err != nil {
				t.Fatalf("list capabilities: %v", err)
			}
			if len(caps) != 1 || caps[0].Name != "tone-adjustment" {
				t.Errorf("capabilities = %+v, want one seed capability", caps)
			}

			profiles, err := s.ListProfiles(ctx)
			if err != nil {
				t.Fatalf("list profiles: %v", err)
			}
			if len(profiles) != 1 {
				t.Fatalf("profiles = %d, want 1", len(profiles))
			}

			if err := s.ArchiveProfile(ctx, p.ID); err != nil {
				t.Fatalf("archive: %v", err)
			}
			profiles, err = s.ListProfiles(ctx)
			if err != nil {
				t.Fatalf("list after archive: %v", err)
			}
			if len(profiles) != 0 {
				t.Errorf("archived profile still listed: %+v", profiles)
			}
			// The record survives archiving.
			if _, err := s.GetProfile(ctx, p.ID); err != nil {
				t.Errorf("archived profile unreadable: %v", err)
			}
		})
	}
}

func TestGetProfileNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetProfile(context.Background(), "no-such-agent")
			if !errors.IsCode(err, errors.CodeNotFound) {
				t.Errorf("err = %v, want %s", err, errors.CodeNotFound)
			}
		})
	}
}

func TestRecordExecutionCounters(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)

			outcomes := []struct {
				success    bool
				durationMs float64
			}{
				{true, 1000},
				{true, 3000},
				{false, 2000},
				{true, 2000},
			}
			var prevTasks int64
			for _, o := range outcomes {
				if err := s.RecordExecution(ctx, p.ID, o.success, o.durationMs); err != nil {
					t.Fatalf("record execution: %v", err)
				}
				got, err := s.GetProfile(ctx, p.ID)
				if err != nil {
					t.Fatalf("get profile: %v", err)
				}
				if got.TasksCompleted != prevTasks+1 {
					t.Fatalf("tasks = %d, want %d", got.TasksCompleted, prevTasks+1)
				}
				prevTasks = got.TasksCompleted
			}

			got, err := s.GetProfile(ctx, p.ID)
			if err != nil {
				t.Fatalf("get profile: %v", err)
			}
			// 3 of 4 succeeded; durations average to 2000ms exactly.
			if math.Abs(got.SuccessRate-75) > 1e-9 {
				t.Errorf("success rate = %v, want 75", got.SuccessRate)
			}
			if math.Abs(got.AvgResponseTime-2000) > 1e-9 {
				t.Errorf("avg response = %v, want 2000", got.AvgResponseTime)
			}
			if got.PerformanceRating <= 0 || got.PerformanceRating > 100 {
				t.Errorf("rating = %v, want within (0, 100]", got.PerformanceRating)
			}
		})
	}
}

func TestRecordExecutionUnknownAgent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.RecordExecution(context.Background(), "ghost", true, 100)
			if !errors.IsCode(err, errors.CodeNotFound) {
				t.Errorf("err = %v, want %s", err, errors.CodeNotFound)
			}
		})
	}
}

func TestAddCapabilityGovernance(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)
			cap := Capability{
				AgentID:     p.ID,
				Type:        CapabilityTool,
				Name:        "grammar-checker",
				Description: "automated grammar pass",
			}

			// No request at all.
			err := s.AddCapability(ctx, cap, "no-such-request")
			if !errors.IsCode(err, errors.CodeGovernance) {
				t.Fatalf("missing request: err = %v, want %s", err, errors.CodeGovernance)
			}

			reqID, err := s.CreateImprovementRequest(ctx, &ImprovementRequest{
				AgentID:      p.ID,
				RequestType:  RequestNewTool,
				Description:  "adopt grammar-checker",
				Benefit:      "fewer review cycles",
				CostEstimate: 15,
				Risk:         RiskLow,
				Priority:     PriorityMedium,
			})
			if err != nil {
				t.Fatalf("create request: %v", err)
			}

			// Still pending: not a valid authorization.
			err = s.AddCapability(ctx, cap, reqID)
			if !errors.IsCode(err, errors.CodeGovernance) {
				t.Fatalf("pending request: err = %v, want %s", err, errors.CodeGovernance)
			}

			if err := s.UpdateRequestStatus(ctx, reqID, StatusApproved); err != nil {
				t.Fatalf("approve: %v", err)
			}
			if err := s.AddCapability(ctx, cap, reqID); err != nil {
				t.Fatalf("add capability after approval: %v", err)
			}

			// Same tuple again is an upsert, not a duplicate.
			cap.Description = "grammar pass, second wording"
			if err := s.AddCapability(ctx, cap, reqID); err != nil {
				t.Fatalf("upsert capability: %v", err)
			}
			caps, err := s.ListCapabilities(ctx, p.ID)
			if err != nil {
				t.Fatalf("list capabilities: %v", err)
			}
			if len(caps) != 1 {
				t.Fatalf("capabilities = %d, want 1 after upsert", len(caps))
			}
			if caps[0].Description != "grammar pass, second wording" {
				t.Errorf("description = %q, want updated wording", caps[0].Description)
			}
		})
	}
}

func TestAddCapabilityWrongAgent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := mustCreateProfile(t, s)
			other := NewProfile("data-analyst")
			if err := s.CreateProfile(ctx, other, nil); err != nil {
				t.Fatalf("create second profile: %v", err)
			}

			reqID, err := s.CreateImprovementRequest(ctx, &ImprovementRequest{
				AgentID:     owner.ID,
				RequestType: RequestNewSkill,
				Description: "learn summarization",
				Risk:        RiskLow,
				Priority:    PriorityLow,
			})
			if err != nil {
				t.Fatalf("create request: %v", err)
			}
			if err := s.UpdateRequestStatus(ctx, reqID, StatusApproved); err != nil {
				t.Fatalf("approve: %v", err)
			}

			err = s.AddCapability(ctx, Capability{
				AgentID: other.ID,
				Type:    CapabilitySkill,
				Name:    "summarization",
			}, reqID)
			if !errors.IsCode(err, errors.CodeGovernance) {
				t.Errorf("err = %v, want %s", err, errors.CodeGovernance)
			}
		})
	}
}

func TestRequestStatusTransitions(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)
			reqID, err := s.CreateImprovementRequest(ctx, &ImprovementRequest{
				AgentID:     p.ID,
				RequestType: RequestProcessChange,
				Description: "batch outgoing messages",
				Risk:        RiskMedium,
				Priority:    PriorityMedium,
			})
			if err != nil {
				t.Fatalf("create request: %v", err)
			}

			pending, err := s.ListPendingImprovementRequests(ctx, p.ID)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 1 || pending[0].Status != StatusPending {
				t.Fatalf("pending = %+v, want one pending request", pending)
			}

			if err := s.UpdateRequestStatus(ctx, reqID, StatusPending); !errors.IsCode(err, errors.CodeGovernance) {
				t.Errorf("reset to pending: err = %v, want %s", err, errors.CodeGovernance)
			}
			if err := s.UpdateRequestStatus(ctx, reqID, StatusRejected); err != nil {
				t.Fatalf("reject: %v", err)
			}
			// Decisions are final.
			if err := s.UpdateRequestStatus(ctx, reqID, StatusApproved); !errors.IsCode(err, errors.CodeGovernance) {
				t.Errorf("flip rejected: err = %v, want %s", err, errors.CodeGovernance)
			}
			if err := s.UpdateRequestStatus(ctx, "no-such-request", StatusApproved); !errors.IsCode(err, errors.CodeNotFound) {
				t.Errorf("missing request: err = %v, want %s", err, errors.CodeNotFound)
			}

			pending, err = s.ListPendingImprovementRequests(ctx, p.ID)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 0 {
				t.Errorf("pending after decision = %+v, want none", pending)
			}
		})
	}
}

func TestLearningsLog(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)

			if err := s.AppendLearning(ctx, p.ID, "completed task: draft onboarding email", LearningFromTask); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := s.AppendLearning(ctx, p.ID, "tone matters more than length", LearningFromResearch); err != nil {
				t.Fatalf("append: %v", err)
			}

			got, err := s.ListRecentLearnings(ctx, p.ID, time.Now().Add(-time.Hour))
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("learnings = %d, want 2", len(got))
			}
			if got[0].Source != LearningFromTask || got[1].Source != LearningFromResearch {
				t.Errorf("order = %v,%v; want task first", got[0].Source, got[1].Source)
			}

			got, err = s.ListRecentLearnings(ctx, p.ID, time.Now().Add(time.Hour))
			if err != nil {
				t.Fatalf("list future window: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("future window returned %d learnings, want 0", len(got))
			}
		})
	}
}

func TestRecentRequestExists(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)
			_, err := s.CreateImprovementRequest(ctx, &ImprovementRequest{
				AgentID:     p.ID,
				RequestType: RequestNewAPI,
				Description: "Integrate sentiment scoring API",
				Risk:        RiskLow,
				Priority:    PriorityLow,
			})
			if err != nil {
				t.Fatalf("create request: %v", err)
			}

			since := time.Now().Add(-14 * 24 * time.Hour)
			tests := []struct {
				name        string
				description string
				want        bool
			}{
				{"exact", "Integrate sentiment scoring API", true},
				{"case insensitive", "integrate SENTIMENT scoring api", true},
				{"different text", "Integrate translation API", false},
			}
			for _, tc := range tests {
				got, err := s.RecentRequestExists(ctx, p.ID, tc.description, since)
				if err != nil {
					t.Fatalf("%s: %v", tc.name, err)
				}
				if got != tc.want {
					t.Errorf("%s: exists = %v, want %v", tc.name, got, tc.want)
				}
			}

			// Outside the window nothing matches.
			got, err := s.RecentRequestExists(ctx, p.ID, "Integrate sentiment scoring API", time.Now().Add(time.Minute))
			if err != nil {
				t.Fatalf("future window: %v", err)
			}
			if got {
				t.Error("future window matched, want no match")
			}
		})
	}
}

func TestRecordExecutionConcurrent(t *testing.T) {
	const workers = 25
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.RecordExecution(ctx, p.ID, true, 100)
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("record execution: %v", err)
				}
			}

			got, err := s.GetProfile(ctx, p.ID)
			if err != nil {
				t.Fatalf("get profile: %v", err)
			}
			if got.TasksCompleted != workers {
				t.Errorf("tasks = %d, want %d (lost update)", got.TasksCompleted, workers)
			}
			if got.SuccessRate != 100 {
				t.Errorf("success rate = %v, want 100", got.SuccessRate)
			}
			if math.Abs(got.AvgResponseTime-100) > 1e-9 {
				t.Errorf("avg response = %v, want 100", got.AvgResponseTime)
			}
		})
	}
}

func TestAppendLearningUnknownAgent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.AppendLearning(context.Background(), "ghost", "nothing to learn", LearningFromTask)
			if !errors.IsCode(err, errors.CodeNotFound) {
				t.Errorf("err = %v, want %s", err, errors.CodeNotFound)
			}
		})
	}
}

func TestRecentRequestExistsIgnoresStoredWhitespace(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := mustCreateProfile(t, s)
			_, err := s.CreateImprovementRequest(ctx, &ImprovementRequest{
				AgentID:     p.ID,
				RequestType: RequestProcessChange,
				Description: "  Adopt prompt caching  ",
				Risk:        RiskLow,
				Priority:    PriorityLow,
			})
			if err != nil {
				t.Fatalf("create request: %v", err)
			}

			since := time.Now().Add(-14 * 24 * time.Hour)
			got, err := s.RecentRequestExists(ctx, p.ID, "adopt prompt caching", since)
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if !got {
				t.Error("stored whitespace defeated suppression, want match")
			}
		})
	}
}
