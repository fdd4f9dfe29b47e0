// Package docs embeds the service documentation rendered at /docs.
package docs

import "embed"

// FS contains the documentation files. Use embed.FS methods to read them.
//
//go:embed protocol.md api.md
var FS embed.FS
