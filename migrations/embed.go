// Package migrations carries the Dwellio Core schema: the devices
// table backing the registry, the append-only audit_entries table, and
// the users tables with their unit and guest access grants. The SQL
// files ship inside the binary, so a gateway deploy is a single
// executable with no schema directory to keep in step.
//
// Importing this package (blank import from cmd/dwellio) registers the
// embedded files with the database package; db.Migrate applies them.
package migrations

import (
	"embed"

	"github.com/mbegale/dwellio-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
