// Package migrations embeds the SQL schema applied by the Postgres store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
