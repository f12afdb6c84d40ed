// Package migrations embeds the goose SQL migrations into the binary.
package migrations

import "embed"

// Dir is the directory inside FS holding the migration files.
const Dir = "sql"

// FS holds the SQL migrations.
//
//go:embed sql/*.sql
var FS embed.FS
