// Package migrations embeds the goose SQL migrations applied by cmd/admin and
// by the API on boot when DB_AUTO_MIGRATE is set.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
