// Package docs embeds the default design-system content modules.
package docs

import "embed"

//go:embed *.md
var FS embed.FS
