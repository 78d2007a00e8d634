package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatUserID int64

// chatCmd is a local REPL over the full message pipeline. Replies go through
// the chunked transport, same as autonomous sends.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := buildCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.shutdown()

		if !cfg.Queue.ConsumerDisabled {
			c.queue.Start(ctx)
		}

		fmt.Println("aide chat. Ctrl-D to exit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			reply, err := c.orch.HandleMessage(ctx, chatUserID, chatUserID, text)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if err := c.sender.SendMessage(ctx, chatUserID, reply); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().Int64Var(&chatUserID, "user", 1, "user id to chat as")
}
