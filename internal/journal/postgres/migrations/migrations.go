// Package migrations embeds the SQL migration files for the journal's
// Postgres backend so the binary can apply its own schema without a
// separate migration tool in the deployment pipeline.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
