// SPDX-License-Identifier: Apache-2.0

// Package runtime hosts the long-running pieces of the orchestrator,
// currently the daily research sweeper.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/meliorworks/melior/pkg/research"
	"github.com/meliorworks/melior/pkg/store"
)

// ResearchRunner runs one agent's daily research cycle.
type ResearchRunner interface {
	PerformDailyResearch(ctx context.Context, agentID string) (*research.Result, error)
}

// ResearchSweeper triggers the daily research cycle for every active agent.
// It ticks on a short interval but runs each agent at most once per local
// day; the cycle itself does not enforce cadence, so the guard lives here.
type ResearchSweeper struct {
	store    store.Store
	runner   ResearchRunner
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	lastDay string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewResearchSweeper creates a sweeper. interval controls tick frequency;
// timeout bounds one whole sweep (zero means unbounded).
func NewResearchSweeper(st store.Store, runner ResearchRunner, interval, timeout time.Duration, logger *slog.Logger) *ResearchSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchSweeper{
		store:    st,
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the sweep loop. A second Start restarts it.
func (s *ResearchSweeper) Start() {
	if s.interval <= 0 {
		s.logger.Info("runtime.research.sweeper.disabled",
			slog.Duration("interval", s.interval))
		return
	}
	s.Stop()
	initSweepMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("runtime.research.sweeper.start",
			slog.Duration("interval", s.interval),
			slog.Duration("timeout", s.timeout))
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("runtime.research.sweeper.stop")
				return
			case <-ticker.C:
				s.sweepIfDue(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *ResearchSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (s *ResearchSweeper) sweepIfDue(ctx context.Context) {
	day := s.now().Format("2006-01-02")
	s.mu.Lock()
	if s.lastDay == day {
		s.mu.Unlock()
		return
	}
	s.lastDay = day
	s.mu.Unlock()
	s.Sweep(ctx)
}

// Sweep runs the research cycle for every active agent immediately,
// ignoring the once-per-day guard. Used by the loop and by manual triggers.
func (s *ResearchSweeper) Sweep(ctx context.Context) {
	initSweepMetrics()
	sweepStart := s.now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("melior/runtime").Start(ctx, "runtime.research.sweep")
	defer span.End()

	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		span.RecordError(err)
		sweepErrorCounter.Add(ctx, 1)
		s.logger.Warn("runtime.research.sweep.list.error",
			slog.String("error", err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("agents", len(profiles)))

	for _, profile := range profiles {
		agentCtx, agentSpan := otel.Tracer("melior/runtime").Start(ctx, "runtime.research.agent",
			trace.WithAttributes(attribute.String("agent_id", profile.ID)))
		start := s.now()
		result, err := s.runner.PerformDailyResearch(agentCtx, profile.ID)
		durationMs := float64(time.Since(start).Milliseconds())
		sweepAgentCounter.Add(ctx, 1)
		sweepAgentLatencyMs.Record(ctx, durationMs)
		if err != nil {
			sweepErrorCounter.Add(ctx, 1)
			agentSpan.RecordError(err)
			s.logger.Warn("runtime.research.agent.error",
				slog.String("agent_id", profile.ID),
				slog.Float64("duration_ms", durationMs),
				slog.String("error", err.Error()))
			agentSpan.End()
			continue
		}
		agentSpan.SetAttributes(
			attribute.Int("learnings", result.LearningsRecorded),
			attribute.Int("proposals", result.ProposalsCreated))
		s.logger.Info("runtime.research.agent.complete",
			slog.String("agent_id", profile.ID),
			slog.Int("learnings", result.LearningsRecorded),
			slog.Int("proposals", result.ProposalsCreated),
			slog.Float64("duration_ms", durationMs))
		agentSpan.End()
	}

	sweepCounter.Add(ctx, 1)
	sweepLatencyMs.Record(ctx, float64(time.Since(sweepStart).Milliseconds()))
	s.logger.Info("runtime.research.sweep.complete",
		slog.Int("agents", len(profiles)))
}

var (
	sweepMetricsOnce    sync.Once
	sweepCounter        metric.Int64Counter
	sweepErrorCounter   metric.Int64Counter
	sweepAgentCounter   metric.Int64Counter
	sweepLatencyMs      metric.Float64Histogram
	sweepAgentLatencyMs metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("melior/runtime")
		sweepCounter, _ = meter.Int64Counter("melior.runtime.research.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("melior.runtime.research.sweep.error.count")
		sweepAgentCounter, _ = meter.Int64Counter("melior.runtime.research.agent.count")
		sweepLatencyMs, _ = meter.Float64Histogram("melior.runtime.research.sweep.latency_ms")
		sweepAgentLatencyMs, _ = meter.Float64Histogram("melior.runtime.research.agent.latency_ms")
	})
}
