package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpuplay"
	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/backend/halbridge"
	"github.com/gogpu/gpuplay/backend/software"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/internal/config"
)

func newReplayCmd(cfg *config.Config) *cobra.Command {
	var executor string

	cmd := &cobra.Command{
		Use:   "replay [dir]",
		Short: "Replay a trace from its first action",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := traceDir(cfg, args)
			if err != nil {
				return err
			}
			if executor == "" {
				executor = cfg.Backend
			}
			factory, err := executorFactory(executor)
			if err != nil {
				return err
			}

			var opts []gpuplay.Option
			for _, b := range hub.CompiledBackends() {
				opts = append(opts, gpuplay.WithBackendFactory(b, factory))
			}
			r, err := gpuplay.Replay(cmd.Context(), dir, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d actions (%d submissions) from %s on %s\n",
				r.Actions, r.Submissions, r.Dir, r.Backend)
			return nil
		},
	}

	cmd.Flags().StringVar(&executor, "backend", "", "Executor to replay on: software or vulkan (default from GPUPLAY_BACKEND)")
	return cmd
}

func executorFactory(name string) (backend.Factory, error) {
	switch name {
	case config.ExecutorSoftware:
		return software.Factory, nil
	case config.ExecutorVulkan:
		return halbridge.Vulkan(), nil
	}
	return nil, fmt.Errorf("unknown backend %q: want %s or %s", name, config.ExecutorSoftware, config.ExecutorVulkan)
}
