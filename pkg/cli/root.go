package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mchmarny/docshell/pkg/config"
	"github.com/mchmarny/docshell/pkg/logger"
)

const name = "docshell"

// BuildInfo is set via ldflags at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootOptions struct {
	build    BuildInfo
	cfgFile  string
	logLevel string
}

// NewRootCommand returns the docshell command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	if build.Version == "" {
		build.Version = "dev"
	}
	o := &rootOptions{build: build}

	root := &cobra.Command{
		Use:   name,
		Short: "Browse a documentation site with a nested side menu",
		Long: `docshell serves a documentation and design-system site: a nested side menu,
a route table with redirects, and content modules loaded on demand and cached
for the lifetime of the process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.cfgFile, "config", config.DefaultFile, "config file path")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	root.AddCommand(
		newServeCommand(o),
		newValidateCommand(o),
		newRoutesCommand(o),
		newInitCommand(o),
		newVersionCommand(o),
	)

	return root
}

// Execute runs the command tree and prints a returned error to stderr.
func Execute(build BuildInfo) error {
	err := NewRootCommand(build).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// load reads and validates the configuration and installs the default logger.
// Precedence for the level is --log-level, then LOG_LEVEL, then the config file.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if v := os.Getenv(logger.EnvVarLogLevel); v != "" {
		level = v
	}
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := cfg.Log.Format
	if v := os.Getenv(logger.EnvVarLogFormat); v != "" {
		format = v
	}

	slog.SetDefault(logger.New(logger.Options{
		Module:  name,
		Version: o.build.Version,
		Level:   level,
		Format:  format,
		Writer:  cmd.ErrOrStderr(),
	}))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", o.cfgFile, err)
	}

	slog.Debug("config loaded", "file", o.cfgFile, "routes", len(cfg.Routes), "navigation", len(cfg.Navigation))
	return cfg, nil
}
