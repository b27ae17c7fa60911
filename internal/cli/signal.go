package cli

import (
	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Report whether a recalled memory was useful",
		Run:   runSignal,
	}
	cmd.Flags().String("fact", "", "Fact id of the recalled memory (required)")
	cmd.Flags().String("signal", "", "Signal type: used, helpful, unhelpful, outdated (required)")
	cmd.Flags().String("session", "", "Session id the recall happened in")
	cmd.Flags().Float64("weight", 0, "Optional signal weight")

	cmd.MarkFlagRequired("fact")
	cmd.MarkFlagRequired("signal")

	RootCmd.AddCommand(cmd)
}

func runSignal(cmd *cobra.Command, args []string) {
	factID, _ := cmd.Flags().GetString("fact")
	signalType, _ := cmd.Flags().GetString("signal")
	sessionID, _ := cmd.Flags().GetString("session")
	weight, _ := cmd.Flags().GetFloat64("weight")

	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	queued, err := mgr.Signal(cmd.Context(), []model.FeedbackSignal{{
		FactID:     factID,
		SignalType: signalType,
		SessionID:  sessionID,
		Weight:     weight,
	}})
	if err != nil {
		exitErr("signal", err)
	}
	output(map[string]any{"delivered": !queued, "queued": queued})
}
