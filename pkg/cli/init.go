package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mchmarny/docshell/pkg/config"
)

func newInitCommand(o *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(o.cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", o.cfgFile)
			}
			if err := config.DefaultConfig().Save(o.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.cfgFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
