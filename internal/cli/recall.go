package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall QUERY",
		Short: "Search stored memories",
		Args:  cobra.ExactArgs(1),
		Run:   runRecall,
	}
	cmd.Flags().IntP("limit", "l", 10, "Maximum results")
	cmd.Flags().String("type", "", "Fact type filter: world, experience, opinion, observation")
	cmd.Flags().Int("budget", 0, "Result size budget in characters (backend-ranked only)")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	factType, _ := cmd.Flags().GetString("type")
	budget, _ := cmd.Flags().GetInt("budget")

	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	items, err := mgr.Recall(cmd.Context(), args[0], backend.RecallOptions{
		Limit:    limit,
		FactType: model.FactType(factType),
		Budget:   budget,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if formatFlag == "text" {
		for _, item := range items {
			fmt.Printf("[%.2f] (%s) %s\n", item.Score, item.Source, item.Text)
		}
		return
	}
	output(items)
}
