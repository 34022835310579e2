// Package migrations embeds SQL migration files into the binary.
//
// The session archive schema ships inside the executable, so labrig can
// migrate a fresh database on any rig without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/labrig/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
