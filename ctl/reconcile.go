package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/errors"
)

// ReconcileCommand finishes batches left in the journal by an earlier run:
// it commits uploaded files and replays spilled records.
type ReconcileCommand struct {
	Config *Config

	*lakeingest.CmdIO
}

// NewReconcileCommand returns a new instance of ReconcileCommand.
func NewReconcileCommand(stdin io.Reader, stdout, stderr io.Writer) *ReconcileCommand {
	return &ReconcileCommand{
		Config: NewConfig(),
		CmdIO:  lakeingest.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the main program execution.
func (cmd *ReconcileCommand) Run(ctx context.Context) error {
	lc, err := cmd.Config.setupLogger(cmd.CmdIO)
	if err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	defer lc.Close()
	log := cmd.Logger()

	env, err := cmd.Config.Open(log)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.Pipeline.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "committed: %d\nabandoned: %d\nreplayed: %d\nfailed: %d\n",
		res.Committed, res.Abandoned, res.Replayed, res.Failed)
	if res.Failed > 0 {
		return errors.Errorf("%d journal entries could not be reconciled", res.Failed)
	}
	return nil
}
