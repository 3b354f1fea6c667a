// Package migrations carries the PostgreSQL schema, applied at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
