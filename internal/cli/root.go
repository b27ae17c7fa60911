// Package cli implements the membank CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/config"
	"github.com/perchdata/membank/internal/queue"
	"github.com/perchdata/membank/internal/session"
)

var (
	cfgPath    string
	formatFlag string
	quietFlag  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "membank",
	Short: "Session memory bridge for AI coding assistants",
	Long: "membank ships session transcripts to a remote long-term memory backend,\n" +
		"queueing them locally whenever the backend is unreachable.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: $MEMBANK_CONFIG or ~/.membank/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
}

func setupLogging() {
	if quietFlag {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return
	}
	level := slog.LevelInfo
	if os.Getenv("MEMBANK_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig() config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

// openQueue opens the offline queue alone, for inspection commands that
// never talk to the backend.
func openQueue(cfg config.Config) *queue.Queue {
	q, err := queue.New(cfg.DBPath)
	if err != nil {
		exitErr("open queue", err)
	}
	return q
}

// newManager wires a full orchestrator and runs the startup health probe,
// exiting on failure. The returned cleanup closes the queue.
func newManager(ctx context.Context) (*session.Manager, func()) {
	mgr, cleanup, err := tryNewManager(ctx)
	if err != nil {
		exitErr("startup", err)
	}
	return mgr, cleanup
}

// tryNewManager is newManager for the hook entry points, which must never
// exit non-zero: failures are returned so the caller can log one line and
// carry on.
func tryNewManager(ctx context.Context) (*session.Manager, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	q, err := queue.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open queue: %w", err)
	}
	mgr := session.NewManager(cfg, backend.New(cfg.Backend), q, slog.Default())
	mgr.Startup(ctx)
	return mgr, func() { q.Close() }, nil
}

func output(v any) {
	if formatFlag == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(v)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
