package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventfolio/internal/dedupe"
	"github.com/TobiSchelling/eventfolio/internal/pipeline"
	"github.com/TobiSchelling/eventfolio/internal/portfolio"
	"github.com/TobiSchelling/eventfolio/internal/score"
)

// --- availability command ---

var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Show which evenings of the horizon are free or busy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Availability.Enabled() {
			fmt.Println("No busy calendar configured. Set availability.ics_path or availability.ics_url.")
			return nil
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
		summary, err := pipe.Availability(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading busy calendar: %w", err)
		}

		for _, d := range summary.Days() {
			line := fmt.Sprintf("  %s  %-11s %-4s", d.Date, d.Window, d.Status)
			if d.Notes != "" {
				line += "  " + d.Notes
			}
			fmt.Println(line)
		}
		fmt.Printf("\n%d evenings, %d busy\n", len(summary), summary.BusyCount())
		return nil
	},
}

// --- portfolio command ---

var explain bool

var portfolioCmd = &cobra.Command{
	Use:   "portfolio [period]",
	Short: "Show an archived portfolio (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var periodID string
		if len(args) == 1 {
			periodID = args[0]
		} else {
			list, err := db.ListPortfolios()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No portfolios yet. Create one with: eventfolio run")
				return nil
			}
			periodID = list[0].PeriodID
		}

		pf, err := db.GetPortfolio(periodID)
		if err != nil {
			return err
		}
		if pf == nil {
			return fmt.Errorf("no portfolio for %s", periodID)
		}

		fmt.Printf("Portfolio for %s: %d events across %d weeks\n",
			periodID, pf.Summary.TotalSelected, pf.Summary.WeeksScheduled)

		var scorer *score.Scorer
		if explain {
			scorer = score.New(cfg.Scoring, cfg.Preferences)
		}
		for _, day := range pf.ByDay() {
			fmt.Printf("\n%s %s\n", day.Weekday, day.Date)
			for _, e := range day.Events {
				mark := " "
				if e.Approved {
					mark = "*"
				}
				fmt.Printf("  %s %s-%s  %s  [%.2f]\n", mark, e.Start.Format("15:04"), e.End.Format("15:04"), e.Title, e.Score)
				if e.Location != "" {
					fmt.Printf("      %s\n", e.Location)
				}
				if scorer != nil {
					fmt.Printf("      %s\n", formatBreakdown(scorer.Explain(&e)))
				}
			}
		}

		printQuotas(pf.Summary.QuotaProgress)
		if len(pf.Summary.Rejections) > 0 {
			fmt.Println("\nLeft out:")
			for _, g := range portfolio.Gates {
				if n := pf.Summary.Rejections[g]; n > 0 {
					fmt.Printf("  %s: %d\n", g, n)
				}
			}
		}
		return nil
	},
}

func init() {
	portfolioCmd.Flags().BoolVar(&explain, "explain", false, "Show the score terms of each selected event")
}

func formatBreakdown(b score.Breakdown) string {
	parts := []string{}
	goals := make([]string, 0, len(b.Keywords))
	for g := range b.Keywords {
		goals = append(goals, g)
	}
	sort.Strings(goals)
	for _, g := range goals {
		parts = append(parts, fmt.Sprintf("%s %+.2f", g, b.Keywords[g]))
	}
	for _, term := range []struct {
		name string
		v    float64
	}{
		{"reinforcement", b.Reinforcement},
		{"category", b.Category},
		{"travel", b.Travel},
		{"cost", b.Cost},
		{"novelty", b.Novelty},
		{"late start", b.LateStart},
		{"must see", b.MustSee},
	} {
		if term.v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+.2f", term.name, term.v))
		}
	}
	if len(parts) == 0 {
		return "no scoring terms matched"
	}
	return strings.Join(parts, ", ")
}

func printQuotas(q portfolio.QuotaProgress) {
	if len(q.Weekly) == 0 && len(q.Monthly) == 0 {
		return
	}
	fmt.Println("\nGoal targets:")
	for _, goal := range sortedKeys(q.Weekly) {
		w := q.Weekly[goal]
		fmt.Printf("  %s weekly: best week %d / %d%s\n", goal, w.MaxCount, w.Target, metSuffix(w.Met()))
	}
	for _, goal := range sortedKeys(q.Monthly) {
		m := q.Monthly[goal]
		fmt.Printf("  %s monthly: %d / %d%s\n", goal, m.Count, m.Target, metSuffix(m.Met()))
	}
}

func metSuffix(met bool) string {
	if met {
		return " (met)"
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- registry command ---

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect or move the registry of events already seen",
}

var registryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry size per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetRegistryStats()
		if err != nil {
			return err
		}
		fmt.Printf("Registry: %d uids\n", stats.Total)
		if stats.Total == 0 {
			return nil
		}
		fmt.Printf("  First seen: %s .. %s\n", stats.Oldest, stats.Newest)
		fmt.Println("\nBy source:")
		for _, s := range stats.BySource {
			name := s.Source
			if name == "" {
				name = "(unknown)"
			}
			fmt.Printf("  %s: %d\n", name, s.Count)
		}
		return nil
	},
}

var registryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the registry to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := dedupe.LoadRegistry(db)
		if err != nil {
			return err
		}
		entries := reg.Entries()
		if err := dedupe.WriteFile(args[0], entries); err != nil {
			return err
		}
		fmt.Printf("Exported %d uids to %s\n", len(entries), args[0])
		return nil
	},
}

var registryImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Merge uids from a JSON registry file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := dedupe.ReadFile(args[0])
		if err != nil {
			return err
		}
		before, err := db.GetRegistryStats()
		if err != nil {
			return err
		}
		if err := db.AppendRegistry(entries); err != nil {
			return err
		}
		after, err := db.GetRegistryStats()
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d new uids (%d already known)\n",
			after.Total-before.Total, len(entries)-(after.Total-before.Total))
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryStatsCmd)
	registryCmd.AddCommand(registryExportCmd)
	registryCmd.AddCommand(registryImportCmd)
}
