// Package migrations embeds the SQL migration files discovered by
// storage.NewMigrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
