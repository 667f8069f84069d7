// Package migrations embeds the goose migrations for SQL storage volumes.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
