// Package sqlite embeds the SQLite schema migrations.
package sqlite

import "embed"

// Files holds the numbered .sql migration files.
//
//go:embed *.sql
var Files embed.FS
