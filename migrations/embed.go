// Package migrations embeds the SQL migration files for the audit index.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
