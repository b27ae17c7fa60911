package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity state and offline queue statistics",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	stats, err := mgr.Queue().Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "text" {
		fmt.Printf("state:    %s\n", mgr.State())
		fmt.Printf("queue:    %d unsynced, %d synced (%d bytes)\n",
			stats.UnsyncedRecords, stats.SyncedRecords, stats.DBSizeBytes)
		if stats.LastSyncAttempt != nil {
			fmt.Printf("last sync attempt: %s\n", stats.LastSyncAttempt)
		}
		return
	}
	output(map[string]any{
		"state": mgr.State().String(),
		"queue": stats,
	})
}
