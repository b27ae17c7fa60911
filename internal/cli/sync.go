package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Probe the backend and drain the offline queue",
		Run:   runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	res, err := mgr.AttemptRecovery(cmd.Context())
	if err != nil {
		// Partial progress is still worth reporting; the error says where
		// the pass stopped.
		fmt.Fprintf(os.Stderr, "sync stopped: %v\n", err)
	}
	output(res)
	if err != nil {
		os.Exit(1)
	}
}
