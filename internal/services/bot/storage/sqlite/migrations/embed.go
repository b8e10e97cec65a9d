// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

//go:embed scripts/*.sql
var FS embed.FS

// Root is the directory inside FS holding the migration scripts.
const Root = "scripts"
