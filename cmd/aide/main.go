// Command aide runs the personal assistant core: the message orchestrator,
// heartbeat scheduler, priority queue consumer, and skill RPC service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
