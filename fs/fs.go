package appfs

import "embed"

// FS holds the SQL migrations, the web/email templates and the static assets.
//
//go:embed migrations all:templates static
var FS embed.FS
