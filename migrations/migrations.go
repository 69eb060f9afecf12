// Package migrations embeds the SQL schema for the sqlite account store.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS
