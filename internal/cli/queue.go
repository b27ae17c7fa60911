package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/model"
)

func init() {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and compact the offline queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List offline records",
		Run:   runQueueList,
	}
	listCmd.Flags().Bool("all", false, "Include synced records")

	clearCmd := &cobra.Command{
		Use:   "clear-synced",
		Short: "Remove synced records, reclaiming space",
		Run:   runQueueClearSynced,
	}

	queueCmd.AddCommand(listCmd, clearCmd)
	RootCmd.AddCommand(queueCmd)
}

func runQueueList(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	cfg := loadConfig()
	q := openQueue(cfg)
	defer q.Close()

	var (
		recs []model.OfflineRecord
		err  error
	)
	if all {
		recs, err = q.All(cmd.Context())
	} else {
		recs, err = q.Unsynced(cmd.Context(), "")
	}
	if err != nil {
		exitErr("queue list", err)
	}
	output(recs)
}

func runQueueClearSynced(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	q := openQueue(cfg)
	defer q.Close()

	n, err := q.ClearSynced(cmd.Context())
	if err != nil {
		exitErr("clear synced", err)
	}
	fmt.Printf("removed %d synced record(s)\n", n)
}
