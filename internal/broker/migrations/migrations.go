// Package migrations embeds the broker's goose SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
