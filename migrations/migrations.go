// Package migrations embeds the SQL schema of the backend project.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
