package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aide/internal/store"
	"aide/internal/trust"
)

var (
	trustUserID   int64
	trustCategory string
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Show the trust state for a user and reply category",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Memory.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		tm := trust.NewManager(cfg.Trust, st)
		state, err := tm.State(cmd.Context(), trustUserID, trustCategory)
		if err != nil {
			return err
		}
		fmt.Printf("user %d / %s\n", trustUserID, trustCategory)
		fmt.Printf("  level       %s\n", state.Level)
		fmt.Printf("  approvals   %d\n", state.Approvals)
		fmt.Printf("  rejections  %d\n", state.Rejections)
		fmt.Printf("  edits       %d\n", state.Edits)
		fmt.Printf("  rate        %.0f%% over %d interactions\n",
			state.ApprovalRate()*100, state.TotalInteractions)

		auto, err := tm.ShouldAutoApprove(cmd.Context(), trustUserID, trustCategory)
		if err != nil {
			return err
		}
		fmt.Printf("  auto-approve %v\n", auto)
		return nil
	},
}

func init() {
	trustCmd.Flags().Int64Var(&trustUserID, "user", 1, "user id")
	trustCmd.Flags().StringVar(&trustCategory, "category", "question", "reply category")
}
