package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aide/internal/queue"
	"aide/internal/store"
	"aide/internal/types"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show background queue depths",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Memory.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		depths, err := queue.New(cfg.Queue, st).Depths(cmd.Context())
		if err != nil {
			return err
		}
		for _, status := range []types.TaskStatus{
			types.TaskPending, types.TaskRunning, types.TaskDone,
			types.TaskFailed, types.TaskDeferred,
		} {
			fmt.Printf("%-10s %d\n", status, depths[status])
		}
		return nil
	},
}
