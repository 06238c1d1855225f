package cmd

import (
	"io"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/cobra"
)

func newServeCatalogCommand(conf *ctl.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewServeCatalogCommand(stdin, stdout, stderr)
	cmd.Config = conf
	ccmd := &cobra.Command{
		Use:   "serve-catalog",
		Short: "Serve the catalog over HTTP.",
		Long: `
Serves the catalog named by --catalog (usually an embedded one under a
directory) over HTTP so several ingest processes can share it.
`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return cmd.Run(ctx)
		},
	}

	flags := ccmd.Flags()
	flags.StringVarP(&cmd.Bind, "bind", "b", cmd.Bind, "Address to listen on.")
	return ccmd
}
