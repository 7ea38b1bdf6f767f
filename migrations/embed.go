// Package migrations embeds SQL migration files into the binary.
//
// Importing this package for its side effect registers the files with the
// database package, so telemetryd runs migrations without the SQL files
// present on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
}
