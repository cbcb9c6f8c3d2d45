package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/database"
	"github.com/TobiSchelling/eventfolio/internal/dedupe"
	"github.com/TobiSchelling/eventfolio/internal/pipeline"
)

var runOpts pipeline.Options

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runOpts.IncludeJS, "include-js", false, "Render JavaScript-heavy sources in a headless browser")
	cmd.Flags().BoolVar(&runOpts.UseLLMResearch, "use-llm-research", false, "Let the LLM read each source page instead of scraping")
}

// --- collect command ---

var collectSource string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Preview events from configured sources without saving anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if collectSource != "" {
			src, ok := cfg.SourceBySlug(collectSource)
			if !ok {
				return fmt.Errorf("unknown source %q", collectSource)
			}
			scoped := *cfg
			scoped.Sources = []config.Source{src}
			c = &scoped
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(c, db)
		if err != nil {
			return err
		}

		fmt.Println("Collecting events from sources...")
		result, err := pipe.Collect(cmd.Context(), runOpts)
		if err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", len(result.Events))
		fmt.Printf("  Invalid dropped: %d\n", result.Invalid)
		fmt.Printf("  Sources skipped: %d\n", len(result.Skipped))

		fmt.Println("\nEvents by source:")
		for _, s := range result.Sources {
			switch {
			case s.Err != "":
				fmt.Printf("  %s: error: %s\n", s.Slug, s.Err)
			case s.Skipped:
				fmt.Printf("  %s: skipped\n", s.Slug)
			default:
				fmt.Printf("  %s (%s): %d\n", s.Slug, s.Adapter, len(s.Events))
			}
		}

		if groups := dedupe.NearDuplicates(result.Events); len(groups) > 0 {
			fmt.Println("\nPossible duplicates across sources:")
			for _, g := range groups {
				fmt.Printf("  %s (%s)\n", g[0].Title, g[0].Start.Format("Mon Jan 02 15:04"))
				for _, e := range g {
					fmt.Printf("    - %s %s\n", e.Source, e.UID)
				}
			}
		}
		return nil
	},
}

func init() {
	addRunFlags(collectCmd)
	collectCmd.Flags().StringVar(&collectSource, "source", "", "Only pull the source with this slug")
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: availability -> collect -> dedupe -> score -> select -> archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		periodID := today()
		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(periodID)
		} else {
			result = pipe.Run(cmd.Context(), periodID, runOpts)
		}
		printSteps(result)

		if result.Failed() {
			return fmt.Errorf("run %s failed", periodID)
		}
		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'eventfolio portfolio' or 'eventfolio serve' to view it.")
		}
		return nil
	},
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().BoolVar(&runOpts.RollingUpdate, "rolling-update", false, "Keep events already chosen in the previous portfolio marked as approved")
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
			continue
		}
		fmt.Printf("  %s\n", step.Summary)
		if step.Warning != "" {
			fmt.Printf("  Warning: %s\n", step.Warning)
		}
	}
}

// --- watch command ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := runOpts
		opts.RollingUpdate = true
		c := cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		)
		if _, err := c.AddFunc(cfg.Schedule, func() { runScheduled(ctx, pipe, loc, opts) }); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}

		c.Start()
		fmt.Printf("Watching with schedule %q (%s). Press Ctrl+C to stop.\n", cfg.Schedule, loc)
		<-ctx.Done()
		fmt.Println("Stopping, waiting for a running plan to finish...")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	addRunFlags(watchCmd)
}

func runScheduled(ctx context.Context, pipe *pipeline.Pipeline, loc *time.Location, opts pipeline.Options) {
	periodID := database.PeriodID(pipe.Now().In(loc))
	log.Printf("Scheduled run for %s", periodID)
	result := pipe.Run(ctx, periodID, opts)
	printSteps(result)
	if result.Failed() {
		log.Printf("Scheduled run for %s failed", periodID)
	}
}
