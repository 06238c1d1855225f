package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/cobra"
)

func newInspectFileCommand(conf *ctl.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewInspectFileCommand(stdin, stdout, stderr)
	cmd.Config = conf
	ccmd := &cobra.Command{
		Use:   "inspect-file KEY",
		Short: "Show the schema and sample rows of a data file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Path = args[0]
			return cmd.Run(context.Background())
		},
	}

	flags := ccmd.Flags()
	flags.BoolVar(&cmd.Local, "local", false, "Read KEY as a path on the local filesystem instead of the store.")
	flags.IntVar(&cmd.Sample, "sample", cmd.Sample, "Number of rows to print.")
	return ccmd
}
