package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reflect QUERY",
		Short: "Ask the backend to reason over stored memories",
		Args:  cobra.ExactArgs(1),
		Run:   runReflect,
	}

	RootCmd.AddCommand(cmd)
}

func runReflect(cmd *cobra.Command, args []string) {
	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	refl, err := mgr.Reflect(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, session.ErrRequiresConnection) {
			exitErr("reflect", fmt.Errorf("backend unreachable; reflection has no offline equivalent"))
		}
		exitErr("reflect", err)
	}

	if formatFlag == "text" {
		fmt.Println(refl.Answer)
		for _, op := range refl.Opinions {
			fmt.Printf("- %s\n", op)
		}
		return
	}
	output(refl)
}
