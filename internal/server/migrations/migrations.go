// Package migrations embeds the SQL schema migrations goose applies on
// server startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
