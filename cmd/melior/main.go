package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/meliorworks/melior/pkg/config"
	"github.com/meliorworks/melior/pkg/engine"
	"github.com/meliorworks/melior/pkg/governance"
	"github.com/meliorworks/melior/pkg/runtime"
	"github.com/meliorworks/melior/pkg/server"
	"github.com/meliorworks/melior/pkg/telemetry"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}

	switch args[0] {
	case "serve":
		runServe(ctx, global, cfg)
	case "agents":
		runAgents(ctx, global, cfg, args[1:])
	case "execute":
		runExecute(ctx, global, cfg, args[1:])
	case "research":
		runResearch(ctx, global, cfg, args[1:])
	case "report":
		runReport(ctx, global, cfg, args[1:])
	case "review":
		runReview(ctx, cfg, args[1:])
	case "definitions":
		runDefinitions(global, cfg)
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func runServe(ctx context.Context, global globalFlags, cfg *config.Config) {
	shutdown, err := telemetry.InitWithConfig("melior", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	if global.ConfigPath != "" {
		watcher, err := config.NewWatcher([]string{global.ConfigPath}, config.WithWatchLogger(a.logger))
		if err != nil {
			fatal(err)
		}
		watcher.OnChange(a.reload)
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	sweeper := runtime.NewResearchSweeper(
		a.store,
		a.research,
		time.Duration(cfg.Research.SweepIntervalHours)*time.Hour,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second*10,
		a.logger,
	)
	sweeper.Start()
	defer sweeper.Stop()

	handler := server.New(server.Deps{
		Store:    a.store,
		Registry: a.registry,
		Engine:   a.engine,
		Research: a.research,
		Reporter: a.reporter,
		Reviewer: a.reviewer,
		Logger:   a.logger,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fatal(err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fatal(err)
		}
	}
}

func runAgents(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: melior agents <list|create|archive> [args]"))
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	switch args[0] {
	case "list":
		profiles, err := a.store.ListProfiles(ctx)
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(profiles)
			return
		}
		writer := newTabWriter()
		writeRow(writer, "ID", "DEFINITION", "RATING", "SUCCESS", "TASKS", "AVG MS")
		for _, p := range profiles {
			writeRow(writer, p.ID, p.DefinitionName,
				fmt.Sprintf("%.1f", p.PerformanceRating),
				fmt.Sprintf("%.1f%%", p.SuccessRate),
				fmt.Sprintf("%d", p.TasksCompleted),
				fmt.Sprintf("%.0f", p.AvgResponseTime))
		}
		writer.Flush()
	case "create":
		if len(args) != 2 {
			fatal(fmt.Errorf("usage: melior agents create <definition>"))
		}
		profile, err := a.engine.CreateAgent(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(profile)
			return
		}
		fmt.Printf("Created agent %s (%s)\n", profile.ID, profile.DefinitionName)
	case "archive":
		if len(args) != 2 {
			fatal(fmt.Errorf("usage: melior agents archive <agent_id>"))
		}
		if err := a.store.ArchiveProfile(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("Archived agent %s\n", args[1])
	default:
		fatal(fmt.Errorf("unknown agents subcommand %q", args[0]))
	}
}

func runExecute(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	agentID := cmd.String("agent", "", "agent id")
	description := cmd.String("desc", "", "task description")
	priority := cmd.String("priority", "", "task priority (low, medium, high, urgent)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *agentID == "" || *description == "" {
		fatal(fmt.Errorf("usage: melior execute --agent <id> --desc <description> [--priority <p>]"))
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	result, err := a.engine.ExecuteTask(ctx, *agentID, engine.Task{
		Description: *description,
		Priority:    engine.Priority(*priority),
	})
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(result)
		return
	}
	fmt.Printf("Success: %t (%.0fms)\n", result.Success, result.DurationMs)
	fmt.Println(result.Output)
}

func runResearch(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: melior research <agent_id>"))
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	result, err := a.research.PerformDailyResearch(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(result)
		return
	}
	fmt.Printf("Researched %d topics, recorded %d learnings, created %d improvement requests\n",
		len(result.Topics), result.LearningsRecorded, result.ProposalsCreated)
	for _, topic := range result.Topics {
		fmt.Printf("  - %s (confidence %d)\n", topic.Topic, topic.Confidence)
	}
}

func runReport(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: melior report <agent_id>"))
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	rep, err := a.reporter.GenerateDailyReport(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(rep)
		return
	}
	fmt.Printf("Agent %s (%s) %s\n", rep.AgentID, rep.DefinitionName, rep.Date)
	fmt.Printf("  Rating: %.1f  Success: %.1f%%  Tasks: %d  Avg: %.0fms\n",
		rep.Counters.PerformanceRating, rep.Counters.SuccessRate,
		rep.Counters.TasksCompleted, rep.Counters.AvgResponseTimeMs)
	fmt.Printf("  Today: %d learnings, %d pending improvement requests\n",
		len(rep.Learnings), rep.PendingImprovements)
	for _, h := range rep.Highlights {
		fmt.Printf("  + %s\n", h)
	}
	for _, c := range rep.Concerns {
		fmt.Printf("  ! %s\n", c)
	}
}

func runReview(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: melior review <agent_id>"))
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	console := governance.NewConsoleReviewer(a.reviewer)
	approved, rejected, err := console.Review(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Approved %d, rejected %d\n", approved, rejected)
}

func runDefinitions(global globalFlags, cfg *config.Config) {
	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	names := a.registry.Names()
	if global.JSON {
		printJSON(names)
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func printUsage() {
	fmt.Print(`Melior: self-improving agent runtime

Usage:
  melior [global flags] <command> [args]

Global flags:
  --config <path>      Path to config YAML
  --json               JSON output

Commands:
  serve                              Run the HTTP API and research sweeper
  agents list                        List agent profiles
  agents create <definition>         Create an agent from a catalog definition
  agents archive <agent_id>          Archive an agent
  execute --agent <id> --desc <text> [--priority <p>]
  research <agent_id>                Run a daily research cycle now
  report <agent_id>                  Print the daily performance report
  review <agent_id>                  Review pending improvement requests
  definitions                        List catalog definition names
  version
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
