package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"aide/internal/costs"
	"aide/internal/store"
)

var costDays int

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Report inference spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := store.Open(cfg.Memory.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		tracker := costs.NewTracker(st)
		now := time.Now()
		from := now.AddDate(0, 0, -costDays)

		total, err := tracker.TotalCost(ctx, from, now)
		if err != nil {
			return err
		}
		fmt.Printf("Total (last %d days): $%.4f\n", costDays, total)

		byProvider, err := tracker.CostByProvider(ctx, from, now)
		if err != nil {
			return err
		}
		printBreakdown("By provider", byProvider)

		byTask, err := tracker.CostByTaskType(ctx, from, now)
		if err != nil {
			return err
		}
		printBreakdown("By task type", byTask)

		daily, err := tracker.DailyBreakdown(ctx, costDays)
		if err != nil {
			return err
		}
		if len(daily) > 0 {
			fmt.Println("\nDaily:")
			for _, d := range daily {
				fmt.Printf("  %s  $%.4f\n", d.Day, d.CostUSD)
			}
		}

		projected, err := tracker.ProjectedMonthlyCost(ctx)
		if err == nil {
			fmt.Printf("\nProjected this month: $%.2f (alert at $%.2f)\n",
				projected, cfg.Costs.BudgetAlertThresholdUSD)
		}
		return nil
	},
}

func printBreakdown(title string, m map[string]float64) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("\n" + title + ":")
	for _, k := range keys {
		fmt.Printf("  %-20s $%.4f\n", k, m[k])
	}
}

func init() {
	costCmd.Flags().IntVar(&costDays, "days", 30, "window for the report")
}
