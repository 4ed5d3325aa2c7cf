package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpuplay/internal/config"
	"github.com/gogpu/gpuplay/trace"
)

func newDumpCmd(cfg *config.Config) *cobra.Command {
	var commands bool

	cmd := &cobra.Command{
		Use:   "dump [dir]",
		Short: "List the actions of a trace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := traceDir(cfg, args)
			if err != nil {
				return err
			}
			actions, err := trace.Load(dir)
			if err != nil {
				return err
			}
			dump(cmd.OutOrStdout(), actions, commands)
			return nil
		},
	}

	cmd.Flags().BoolVar(&commands, "commands", false, "Also list the commands of each submission")
	return cmd
}

func dump(w io.Writer, actions []trace.Action, commands bool) {
	for n, a := range actions {
		switch a := a.(type) {
		case trace.Submit:
			fmt.Fprintf(w, "%4d %s index=%d commands=%d\n", n, a.Type(), a.Index, len(a.Commands))
			if commands {
				for _, c := range a.Commands {
					fmt.Fprintf(w, "     - %s\n", c.Type())
				}
			}
		default:
			fmt.Fprintf(w, "%4d %s %+v\n", n, a.Type(), a)
		}
	}
}
