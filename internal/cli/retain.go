package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retain [content]",
		Short: "Store content in long-term memory",
		Long:  "Store content in long-term memory. Content can be a positional arg or piped via stdin.",
		Run:   runRetain,
	}
	cmd.Flags().StringP("context", "c", "", "Where this content came from")
	cmd.Flags().String("type", "", "Fact type: world, experience, opinion, observation")

	RootCmd.AddCommand(cmd)
}

func runRetain(cmd *cobra.Command, args []string) {
	contextNote, _ := cmd.Flags().GetString("context")
	factType, _ := cmd.Flags().GetString("type")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	if strings.TrimSpace(content) == "" {
		exitErr("retain", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	res, err := mgr.Retain(cmd.Context(), strings.TrimSpace(content), contextNote, model.FactType(factType))
	if err != nil {
		exitErr("retain", err)
	}
	output(res)
}
