package config

import (
	"time"

	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
)

// Config is the top-level docshell configuration, corresponding to docshell.yml.
type Config struct {
	Site       SiteConfig    `yaml:"site" koanf:"site"`
	Server     ServerConfig  `yaml:"server" koanf:"server"`
	Content    ContentConfig `yaml:"content" koanf:"content"`
	Log        LogConfig     `yaml:"log" koanf:"log"`
	Navigation []menu.Entry  `yaml:"navigation" koanf:"navigation"`
	Routes     []route.Route `yaml:"routes" koanf:"routes"`
}

// SiteConfig holds presentation settings.
type SiteConfig struct {
	Title       string `yaml:"title" koanf:"title"`
	Description string `yaml:"description,omitempty" koanf:"description"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	RateLimit       int           `yaml:"rate_limit" koanf:"rate_limit"` // requests per minute per IP, 0 disables
	CORSOrigins     []string      `yaml:"cors_origins,omitempty" koanf:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" koanf:"shutdown_timeout"`
}

// ContentConfig controls where content modules come from and how they load.
type ContentConfig struct {
	Dir           string        `yaml:"dir,omitempty" koanf:"dir"` // empty uses the embedded docs
	Include       []string      `yaml:"include" koanf:"include"`
	LoadTimeout   time.Duration `yaml:"load_timeout" koanf:"load_timeout"`
	FallbackDelay time.Duration `yaml:"fallback_delay" koanf:"fallback_delay"`
	Preload       bool          `yaml:"preload" koanf:"preload"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
