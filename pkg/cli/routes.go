package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
)

type resolution struct {
	Path       string     `yaml:"path"`
	Resolves   string     `yaml:"resolves,omitempty"`
	Redirected bool       `yaml:"redirected,omitempty"`
	Matched    bool       `yaml:"matched"`
	Kind       route.Kind `yaml:"kind,omitempty"`
	Ref        string     `yaml:"ref,omitempty"`
}

type routesReport struct {
	Routes      []route.Route `yaml:"routes"`
	Resolutions []resolution  `yaml:"resolutions"`
}

func newRoutesCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes [path...]",
		Short: "Print the route table and how paths resolve",
		Long: `Prints the route table in priority order, then the resolution of each given path.
Without arguments every route path and navigation leaf is resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			table, err := cfg.Table()
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				paths = defaultPaths(table, cfg.Menu().Leaves())
			}

			report := routesReport{Routes: table.Routes()}
			for _, p := range paths {
				res := table.Resolve(p)
				r := resolution{
					Path:       res.Requested,
					Resolves:   res.Path,
					Redirected: res.Redirected,
					Matched:    res.Matched,
				}
				if res.Matched {
					r.Kind = res.Route.Kind
					r.Ref = res.Route.Ref
				}
				report.Resolutions = append(report.Resolutions, r)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encoding routes: %w", err)
			}
			return enc.Close()
		},
	}
}

// defaultPaths lists every route path followed by navigation leaves not already listed.
func defaultPaths(table *route.Table, leaves []menu.Entry) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, r := range table.Routes() {
		add(r.Path)
	}
	for _, leaf := range leaves {
		add(leaf.Route)
	}
	return paths
}
