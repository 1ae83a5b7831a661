package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of docshell",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n",
				name, o.build.Version, valueOr(o.build.Commit, "none"), valueOr(o.build.Date, "unknown"))
		},
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
