package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mchmarny/docshell/pkg/content"
)

func newValidateCommand(o *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config and load every routed content module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			table, err := cfg.Table()
			if err != nil {
				return err
			}
			m := cfg.Menu()

			loader, src, err := newLoader(cfg, nil)
			if err != nil {
				return err
			}
			available, err := src.List()
			if err != nil {
				return fmt.Errorf("listing content: %w", err)
			}
			files := make(map[string]bool, len(available))
			for _, ref := range available {
				files[string(ref)] = true
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var errs []error
			routed := make(map[string]bool)
			for _, ref := range table.Refs() {
				routed[ref] = true
				if !files[ref] {
					errs = append(errs, fmt.Errorf("route content %q: no matching file", ref))
					continue
				}
				if _, err := loader.Load(ctx, content.Ref(ref)); err != nil {
					errs = append(errs, err)
				}
			}

			for _, leaf := range m.Leaves() {
				if res := table.Resolve(leaf.Route); !res.Matched {
					fmt.Fprintf(out, "warning: navigation entry %q (%s) has no matching route\n", leaf.Name, leaf.Route)
				}
			}
			for _, ref := range available {
				if !routed[string(ref)] {
					fmt.Fprintf(out, "note: content %q is not routed\n", ref)
				}
			}

			if err := errors.Join(errs...); err != nil {
				return err
			}

			fmt.Fprintf(out, "ok: %d routes, %d navigation leaves, %d content modules loaded\n",
				table.Len(), len(m.Leaves()), loader.Len())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall time limit for loading content")
	return cmd
}
