package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/cobra"
)

func newReadCommand(conf *ctl.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewReadCommand(stdin, stdout, stderr)
	cmd.Config = conf
	ccmd := &cobra.Command{
		Use:   "read",
		Short: "Print the rows of an entity table.",
		Long: `
Decodes the data files of an entity table and prints its rows, newest
ingest first. With --from-snapshot only committed files are read.
`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(context.Background())
		},
	}

	flags := ccmd.Flags()
	flags.StringVarP(&cmd.Entity, "entity", "e", "", "Entity or table name.")
	flags.BoolVar(&cmd.FromSnapshot, "from-snapshot", false, "Read only the files of the current snapshot.")
	flags.IntVar(&cmd.Limit, "limit", 0, "Maximum rows to print. Zero prints all.")
	return ccmd
}
