package migrations

import "embed"

// FS holds the versioned schema migrations.
//
//go:embed *.sql
var FS embed.FS
