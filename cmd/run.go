package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/cobra"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCommand(conf *ctl.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewRunCommand(stdin, stdout, stderr)
	cmd.Config = conf
	ccmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest records into entity tables.",
		Long: `
Reads records for each entity, batches them by size and age, and writes and
commits each batch as Parquet files. One pipeline runs per entity. On
interrupt the open batches are spilled to the journal; run reconcile to
replay them.
`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return cmd.Run(ctx)
		},
	}

	flags := ccmd.Flags()
	flags.StringSliceVarP(&cmd.Entities, "entity", "e", nil, "Entities to ingest, by entity or table name. Defaults to all.")
	flags.StringVar(&cmd.Source, "source", cmd.Source, "Record source: jsonl or kafka.")
	flags.StringVarP(&cmd.Input, "input", "i", cmd.Input, "JSON lines file, - for stdin, or a directory of <table>.jsonl files for several entities.")
	return ccmd
}
