// Package db embeds the SQL migrations that the server applies with
// goose at startup.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
