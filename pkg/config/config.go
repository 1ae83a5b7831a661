package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/mchmarny/docshell/docs"
	"github.com/mchmarny/docshell/pkg/logger"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
)

// Load reads configuration from the given YAML file, then overlays environment variable
// overrides (DOCSHELL_SECTION_KEY, e.g. DOCSHELL_SERVER_PORT -> server.port).
// A missing file yields the defaults. Navigation, routes and include patterns given in the
// file replace the defaults as a whole.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	// lists are replaced, not merged element-wise into the defaults
	nav, routes, include := cfg.Navigation, cfg.Routes, cfg.Content.Include
	cfg.Navigation, cfg.Routes, cfg.Content.Include = nil, nil, nil

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if !k.Exists("navigation") {
		cfg.Navigation = nav
	}
	if !k.Exists("routes") {
		cfg.Routes = routes
	}
	if !k.Exists("content.include") {
		cfg.Content.Include = include
	}

	return cfg, nil
}

// envKey maps DOCSHELL_CONTENT_LOAD_TIMEOUT to content.load_timeout: the first segment
// names the section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if i := strings.Index(s, "_"); i > 0 {
		return s[:i] + "." + s[i+1:]
	}
	return s
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogFormats = map[string]bool{
	logger.FormatJSON: true,
	logger.FormatText: true,
}

// Validate checks settings and builds the menu and route table. Route table problems are
// reported as route.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must be non-negative"))
	}
	if c.Content.LoadTimeout < 0 {
		errs = append(errs, errors.New("content.load_timeout must be non-negative"))
	}
	if c.Content.FallbackDelay < 0 {
		errs = append(errs, errors.New("content.fallback_delay must be non-negative"))
	}
	if c.Log.Format != "" && !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be json or text", c.Log.Format))
	}
	if c.Content.Dir != "" {
		if fi, err := os.Stat(c.Content.Dir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("content.dir %q is not a directory", c.Content.Dir))
		}
	}

	if err := c.Menu().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("navigation: %w", err))
	}
	if _, err := c.Table(); err != nil {
		errs = append(errs, fmt.Errorf("routes: %w", err))
	}

	return errors.Join(errs...)
}

// Menu builds the navigation model.
func (c *Config) Menu() *menu.Menu {
	m := menu.New(c.Site.Title, c.Navigation...)
	m.Description = c.Site.Description
	return m
}

// Table builds and validates the route table.
func (c *Config) Table() (*route.Table, error) {
	return route.New(c.Routes...)
}

// ContentFS returns the file system content modules are read from.
func (c *Config) ContentFS() fs.FS {
	if c.Content.Dir == "" {
		return docs.FS
	}
	return os.DirFS(c.Content.Dir)
}
