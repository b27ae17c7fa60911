package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Hook commands are invoked by the host editor's session lifecycle. They
// must never exit non-zero or crash: silently losing a memory is preferable
// to breaking the host's session. Every failure is reduced to a one-line
// diagnostic on stderr.

func init() {
	hookCmd := &cobra.Command{
		Use:   "hook",
		Short: "Session lifecycle entry points for the host editor",
	}

	startCmd := &cobra.Command{
		Use:   "session-start",
		Short: "Start a session and print recent context",
		Run:   runHookSessionStart,
	}

	endCmd := &cobra.Command{
		Use:   "session-end",
		Short: "Filter and retain the session transcript from stdin",
		Run:   runHookSessionEnd,
	}
	endCmd.Flags().String("session", "", "Session id (default: generated)")
	endCmd.Flags().String("transcript", "", "Read transcript from file instead of stdin")

	hookCmd.AddCommand(startCmd, endCmd)
	RootCmd.AddCommand(hookCmd)
}

func runHookSessionStart(cmd *cobra.Command, args []string) {
	defer swallowPanics("session-start")

	mgr, cleanup, err := tryNewManager(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "membank: session-start: %v\n", err)
		return
	}
	defer cleanup()

	res, err := mgr.OnSessionStart(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "membank: session-start: %v\n", err)
		return
	}

	if len(res.Recent) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("## Recent memory\n")
	for _, item := range res.Recent {
		line := item.Text
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if res.Degraded {
		b.WriteString("(memory backend unreachable; showing locally queued items)\n")
	}
	fmt.Print(b.String())
}

func runHookSessionEnd(cmd *cobra.Command, args []string) {
	defer swallowPanics("session-end")

	sessionID, _ := cmd.Flags().GetString("session")
	transcriptPath, _ := cmd.Flags().GetString("transcript")

	var transcript string
	if transcriptPath != "" {
		b, err := os.ReadFile(transcriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "membank: session-end: read transcript: %v\n", err)
			return
		}
		transcript = string(b)
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "membank: session-end: read stdin: %v\n", err)
			return
		}
		transcript = string(b)
	}

	mgr, cleanup, err := tryNewManager(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "membank: session-end: %v\n", err)
		return
	}
	defer cleanup()

	res, err := mgr.OnSessionEnd(cmd.Context(), transcript, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "membank: session-end: %v\n", err)
		return
	}
	if res.Skipped {
		fmt.Fprintf(os.Stderr, "membank: session skipped: %s\n", res.SkipReason)
	}
}

// swallowPanics keeps hook entry points from ever crashing the host.
func swallowPanics(op string) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "membank: %s: internal error: %v\n", op, r)
	}
}
