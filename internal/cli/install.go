package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/installer"
)

func init() {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write session hook scripts and a settings snippet",
		Run:   runInstall,
	}
	cmd.Flags().StringP("dir", "d", "", "Target directory (default: ~/.membank)")

	RootCmd.AddCommand(cmd)
}

func runInstall(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			exitErr("resolve home dir", err)
		}
		dir = filepath.Join(home, ".membank")
	}

	res, err := installer.Install(dir)
	if err != nil {
		exitErr("install", err)
	}
	output(res)
}
