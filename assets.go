// Package runboard embeds the dashboard's static files and templates.
package runboard

import "embed"

// StaticFS and TemplateFS are served when NODE_ENV is not development; dev mode reads
// frontend/ from disk so edits show up without a rebuild.
var (
	//go:embed all:frontend/static
	StaticFS embed.FS

	//go:embed all:frontend/templates
	TemplateFS embed.FS
)
