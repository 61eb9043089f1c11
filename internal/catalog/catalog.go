// Package catalog holds the migration catalog shipped with the application.
//
// Steps live in sql/ as {version}_{description}.sql files and are embedded
// into the binary. A released file is never edited; schema changes are new
// files with a higher version.
package catalog

import (
	"embed"
	"sync"

	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

//go:embed sql/*.sql
var files embed.FS

var load = sync.OnceValue(func() migration.Catalog {
	return migration.MustLoadFS(files, "sql")
})

// Default returns the shipped catalog.
func Default() migration.Catalog {
	return load()
}

// ApplicationTables lists the tables created by the shipped catalog.
var ApplicationTables = []string{"WBR_book", "WBR_bookProgress", "WBR_bookTag", "WBR_chapter"}
