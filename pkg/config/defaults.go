package config

import (
	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
	"github.com/mchmarny/docshell/pkg/server"
	"github.com/mchmarny/docshell/pkg/site"
)

const (
	// DefaultFile is the config file read when --config is not given.
	DefaultFile = "docshell.yml"

	// EnvPrefix prefixes environment overrides, e.g. DOCSHELL_SERVER_PORT.
	EnvPrefix = "DOCSHELL_"

	// DefaultFallbackDelay bounds how long the resolve API waits for a pending load.
	DefaultFallbackDelay = site.DefaultFallbackDelay
)

// DefaultNavigation is the design-system side menu.
func DefaultNavigation() []menu.Entry {
	return []menu.Entry{
		{Name: "Overview", Nested: []menu.Entry{
			{Name: "Introduction", Route: "/overview/introduction"},
			{Name: "Conventions", Route: "/overview/conventions"},
		}},
		{Name: "Design", Nested: []menu.Entry{
			{Name: "Colors", Route: "/design/colors"},
			{Name: "Buttons", Route: "/design/buttons"},
			{Name: "Typography", Route: "/design/typography"},
		}},
		{Name: "Components", Nested: []menu.Entry{
			{Name: "Modals", Route: "/design/modals"},
		}},
	}
}

// DefaultRoutes is the route table for DefaultNavigation, in priority order.
func DefaultRoutes() []route.Route {
	return []route.Route{
		route.Redirect("/", "/overview/introduction"),
		route.Redirect("/overview", "/overview/introduction"),
		route.Leaf("/overview/introduction", "introduction"),
		route.Leaf("/overview/conventions", "conventions"),
		route.Redirect("/design", "/design/colors"),
		route.Leaf("/design/colors", "colors"),
		route.Leaf("/design/buttons", "buttons"),
		route.Leaf("/design/typography", "typography"),
		route.Leaf("/design/modals", "modals"),
		route.Leaf("/components", "components"),
	}
}

// DefaultConfig returns a Config serving the embedded design-system docs.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Title:       "Design System",
			Description: "Colors, typography and components",
		},
		Server: ServerConfig{
			Port:            server.DefaultPort,
			ShutdownTimeout: server.DefaultShutdownTimeout,
		},
		Content: ContentConfig{
			Include:       append([]string(nil), content.DefaultInclude...),
			LoadTimeout:   content.DefaultLoadTimeout,
			FallbackDelay: DefaultFallbackDelay,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Navigation: DefaultNavigation(),
		Routes:     DefaultRoutes(),
	}
}
