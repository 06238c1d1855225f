package cmd

import (
	"io"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/cobra"
)

func newReconcileCommand(conf *ctl.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewReconcileCommand(stdin, stdout, stderr)
	cmd.Config = conf
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finish batches left in the journal.",
		Long: `
Commits files that were uploaded but not committed, abandons uploads that
never finished, and replays batches spilled on interrupt or failure. It is
safe to run more than once.
`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return cmd.Run(ctx)
		},
	}
}
