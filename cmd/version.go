package cmd

import (
	"fmt"
	"io"

	"github.com/featurebasedb/lakeingest"
	"github.com/spf13/cobra"
)

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(stdout, lakeingest.VersionInfo())
			return err
		},
	}
}
