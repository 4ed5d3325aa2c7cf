// Command gpuplay replays and inspects GPU trace directories.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpuplay"
	"github.com/gogpu/gpuplay/internal/config"
)

func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:   "gpuplay",
		Short: "Replay and inspect GPU API traces",
		Long: `gpuplay reads trace directories captured by the gpuplay hub: an
action log (trace.ron or trace.cbor) plus the data files it references.
It can replay a trace on a backend, list its actions, or rewrite it in
the other log format.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			gpuplay.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: cfg.LogLevel,
			})))
			return nil
		},
	}

	root.AddCommand(newReplayCmd(&cfg))
	root.AddCommand(newDumpCmd(&cfg))
	root.AddCommand(newConvertCmd(&cfg))
	return root
}

// traceDir picks the directory argument, falling back to GPUPLAY_TRACE_DIR.
func traceDir(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.TraceDir != "" {
		return cfg.TraceDir, nil
	}
	return "", errors.New("no trace directory: pass one or set GPUPLAY_TRACE_DIR")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
