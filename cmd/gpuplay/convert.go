package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpuplay/internal/config"
	"github.com/gogpu/gpuplay/trace"
)

func newConvertCmd(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "convert <src> <dst>",
		Short: "Rewrite a trace in another log format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = cfg.Format
			}
			f, err := trace.ParseFormat(format)
			if err != nil {
				return err
			}
			n, dropped, err := convert(args[0], args[1], f)
			if err != nil {
				return err
			}
			out := filepath.Join(args[1], f.FileName())
			if dropped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d actions to %s (%d dropped)\n", n, out, dropped)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d actions to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output log format: text or binary (default from GPUPLAY_TRACE_FORMAT)")
	return cmd
}

// convert copies the trace in src to dst in format f and returns how many
// actions were written and how many the writer dropped. Data files are
// copied under fresh names.
func convert(src, dst string, f trace.Format) (int, int, error) {
	actions, err := trace.Load(src)
	if err != nil {
		return 0, 0, err
	}
	w, err := trace.New(dst, trace.WithFormat(f))
	if err != nil {
		return 0, 0, err
	}

	relink := func(name string) (string, error) {
		data, err := trace.ReadBlob(src, name)
		if err != nil {
			return "", err
		}
		return w.MakeBinary(strings.TrimPrefix(filepath.Ext(name), "."), data), nil
	}
	for _, a := range actions {
		var err error
		switch v := a.(type) {
		case trace.WriteBuffer:
			v.Data, err = relink(v.Data)
			a = v
		case trace.WriteTexture:
			v.Data, err = relink(v.Data)
			a = v
		case trace.CreateShaderModule:
			v.Data, err = relink(v.Data)
			a = v
		}
		if err != nil {
			_ = w.Close()
			return 0, 0, err
		}
		w.Add(a)
	}
	if err := w.Close(); err != nil {
		return 0, 0, err
	}
	return w.Written(), len(actions) - w.Written(), nil
}
